// Package protocol defines the wire catalogue exchanged between clients and the
// coordination server: UTF-8 JSON objects, one per line, tagged by "type".
//
// Inbound lines decode into a closed set of Command variants; outbound values
// implement Message and encode with their type tag injected.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/harmony/internal/game/grid"
)

// Type is the value of the "type" field that tags every wire object.
type Type string

const (
	TypeRegistrationRequired Type = "registration_required"
	TypeRegister             Type = "register"
	TypeRegistrationSuccess  Type = "registration_success"
	TypeRegistrationFailed   Type = "registration_failed"
	TypeJoinGame             Type = "join_game"
	TypeRoomJoined           Type = "room_joined"
	TypeWaitingForPlayers    Type = "waiting_for_players"
	TypeCountdownStart       Type = "countdown_start"
	TypeGameStart            Type = "game_start"
	TypeMove                 Type = "move"
	TypeGameState            Type = "game_state"
	TypePlayerLeft           Type = "player_left"
	TypeGameEnded            Type = "game_ended"
	TypeNewRound             Type = "new_round"
	TypeSaveResult           Type = "save_result"
	TypeSaveSuccess          Type = "save_success"
	TypeExitGame             Type = "exit_game"
)

// ErrMalformed is returned by Decode for lines that are not a tagged JSON object.
var ErrMalformed = errors.New("malformed message")

// envelope is the minimal shape shared by every wire object.
type envelope struct {
	Type Type `json:"type"`
}

// Encode serialises m as a single JSON object with its "type" tag first.
// The result carries no trailing newline; framing belongs to the transport.
//
// Precondition: m must marshal to a JSON object.
// Postcondition: Returns the encoded object or a non-nil error.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.MessageType(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encoding %s: message is not a JSON object", m.MessageType())
	}
	tag, err := json.Marshal(m.MessageType())
	if err != nil {
		return nil, fmt.Errorf("encoding %s tag: %w", m.MessageType(), err)
	}

	out := make([]byte, 0, len(body)+len(tag)+10)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// Decode parses one inbound line into its Command variant. Unrecognised but
// well-formed types decode to Unknown so callers can log and skip them.
//
// Postcondition: Returns a non-nil Command, or an error wrapping ErrMalformed.
func Decode(line []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeRegister:
		return decodeAs[Register](line)
	case TypeJoinGame:
		return decodeAs[JoinGame](line)
	case TypeMove:
		return decodeMove(line)
	case TypeNewRound:
		return decodeAs[NewRound](line)
	case TypeSaveResult:
		return decodeAs[SaveResult](line)
	case TypeExitGame:
		return ExitGame{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Unknown{Type: env.Type}, nil
	}
}

// decodeMove rejects directions outside the four known ones, so they are
// reported as protocol errors rather than dropped as direction mismatches.
func decodeMove(line []byte) (Command, error) {
	var m Move
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	dir, err := grid.ParseDirection(string(m.Direction))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Move{Direction: dir}, nil
}

func decodeAs[C Command](line []byte) (Command, error) {
	var c C
	if err := json.Unmarshal(line, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c, nil
}
