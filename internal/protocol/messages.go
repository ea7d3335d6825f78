package protocol

import "github.com/cory-johannsen/harmony/internal/game/grid"

// ReasonNotEnoughPlayers is the game_ended reason when a started room loses a member.
const ReasonNotEnoughPlayers = "not_enough_players"

// Registration failure reasons.
const (
	ReasonEmpty     = "empty"
	ReasonTooLong   = "too_long"
	ReasonDuplicate = "duplicate"
)

// Message is an outbound server message.
type Message interface {
	MessageType() Type
}

// RegistrationRequired prompts an unregistered connection for a username.
type RegistrationRequired struct {
	Message string `json:"message"`
}

// RegistrationSuccess confirms the claimed username.
type RegistrationSuccess struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// RegistrationFailed reports why a username was refused.
type RegistrationFailed struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// RoomJoined tells the joiner its direction and the room occupancy.
type RoomJoined struct {
	Direction      grid.Direction `json:"direction"`
	CurrentPlayers int            `json:"current_players"`
	TotalPlayers   int            `json:"total_players"`
}

// WaitingForPlayers reports occupancy of a room that has not started.
type WaitingForPlayers struct {
	CurrentPlayers int    `json:"current_players"`
	TotalPlayers   int    `json:"total_players"`
	Message        string `json:"message"`
}

// CountdownStart announces that a full room will start after Duration units.
type CountdownStart struct {
	Duration int `json:"duration"`
}

// GameStart carries the initial shared state of a round.
type GameStart struct {
	PlayerPos grid.Position `json:"player_pos"`
	TargetPos grid.Position `json:"target_pos"`
	GridSize  int           `json:"grid_size"`
}

// GameState carries the shared state after an applied move.
type GameState struct {
	PlayerPos       grid.Position  `json:"player_pos"`
	TargetPos       grid.Position  `json:"target_pos"`
	MovedBy         string         `json:"moved_by"`
	Direction       grid.Direction `json:"direction"`
	PositionChanged bool           `json:"position_changed"`
	GameWon         bool           `json:"game_won"`
	MovesCount      int            `json:"moves_count"`
}

// PlayerLeft tells the remaining members who left.
type PlayerLeft struct {
	Username         string   `json:"username"`
	RemainingPlayers []string `json:"remaining_players"`
	Message          string   `json:"message"`
}

// GameEnded tells members their room was torn down.
type GameEnded struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// SaveSuccess acknowledges a save_result request.
type SaveSuccess struct {
	Message string `json:"message"`
}

func (RegistrationRequired) MessageType() Type { return TypeRegistrationRequired }
func (RegistrationSuccess) MessageType() Type  { return TypeRegistrationSuccess }
func (RegistrationFailed) MessageType() Type   { return TypeRegistrationFailed }
func (RoomJoined) MessageType() Type           { return TypeRoomJoined }
func (WaitingForPlayers) MessageType() Type    { return TypeWaitingForPlayers }
func (CountdownStart) MessageType() Type       { return TypeCountdownStart }
func (GameStart) MessageType() Type            { return TypeGameStart }
func (GameState) MessageType() Type            { return TypeGameState }
func (PlayerLeft) MessageType() Type           { return TypePlayerLeft }
func (GameEnded) MessageType() Type            { return TypeGameEnded }
func (SaveSuccess) MessageType() Type          { return TypeSaveSuccess }
