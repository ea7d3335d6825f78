package protocol

import "github.com/cory-johannsen/harmony/internal/game/grid"

// Command is an inbound client request. The set of implementations is closed;
// switch on the concrete type.
type Command interface {
	CommandType() Type
	sealed()
}

// Register claims a username for the connection.
type Register struct {
	Username string `json:"username"`
}

// JoinGame asks the matchmaker for a room.
type JoinGame struct {
	PlayersCount int `json:"players_count,omitempty"`
}

// Move asks to push the shared token one cell.
type Move struct {
	Direction grid.Direction `json:"direction"`
}

// NewRound asks to restart the member's room with fresh positions.
type NewRound struct {
	PlayersCount int `json:"players_count,omitempty"`
}

// GameData is a client-submitted result summary. Every field is optional.
type GameData struct {
	PlayerPos  *grid.Position `json:"player_pos,omitempty"`
	TargetPos  *grid.Position `json:"target_pos,omitempty"`
	Status     string         `json:"status,omitempty"`
	MovesCount *int           `json:"moves_count,omitempty"`
}

// SaveResult appends GameData to the sender's result log.
type SaveResult struct {
	GameData GameData `json:"game_data"`
}

// ExitGame leaves the current room and releases the username.
type ExitGame struct{}

// Unknown is a well-formed object whose type is not part of the catalogue.
type Unknown struct {
	Type Type
}

func (Register) CommandType() Type   { return TypeRegister }
func (JoinGame) CommandType() Type   { return TypeJoinGame }
func (Move) CommandType() Type       { return TypeMove }
func (NewRound) CommandType() Type   { return TypeNewRound }
func (SaveResult) CommandType() Type { return TypeSaveResult }
func (ExitGame) CommandType() Type   { return TypeExitGame }
func (u Unknown) CommandType() Type  { return u.Type }

func (Register) sealed()   {}
func (JoinGame) sealed()   {}
func (Move) sealed()       {}
func (NewRound) sealed()   {}
func (SaveResult) sealed() {}
func (ExitGame) sealed()   {}
func (Unknown) sealed()    {}
