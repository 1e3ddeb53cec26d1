// internal/protocol/messages.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is returned when a frame is not a JSON object with a string type.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownMessageType is returned when the type tag names no known message.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// ClientMessageType tags frames sent by clients.
type ClientMessageType string

const (
	TypeJoin           ClientMessageType = "join"
	TypeStartRound     ClientMessageType = "start_round"
	TypeSubmitGuess    ClientMessageType = "submit_guess"
	TypeJudgeResult    ClientMessageType = "judge_result"
	TypeUpdateRoundArt ClientMessageType = "update_round_art"
	TypePlayAgain      ClientMessageType = "play_again"
)

// ServerMessageType tags frames sent by the room server.
type ServerMessageType string

const (
	TypeRoomState            ServerMessageType = "room_state"
	TypePlayerJoined         ServerMessageType = "player_joined"
	TypeRoundStart           ServerMessageType = "round_start"
	TypeRoundArtUpdated      ServerMessageType = "round_art_updated"
	TypeGuessReceived        ServerMessageType = "guess_received"
	TypeBothGuessed          ServerMessageType = "both_guessed"
	TypeRoundResult          ServerMessageType = "round_result"
	TypeGameOver             ServerMessageType = "game_over"
	TypeOpponentDisconnected ServerMessageType = "opponent_disconnected"
	TypeOpponentReconnected  ServerMessageType = "opponent_reconnected"
	TypeError                ServerMessageType = "error"
)

// ClientMessage is the closed set of client → server frames.
type ClientMessage interface {
	ClientType() ClientMessageType
	isClientMessage()
}

// ServerMessage is the closed set of server → client frames.
type ServerMessage interface {
	ServerType() ServerMessageType
	isServerMessage()
}

// --- Client → Server ---

// Join announces a player; it is idempotent.
type Join struct {
	Role     Role   `json:"role"`
	Nickname string `json:"nickname,omitempty"`
}

// StartRound opens a round. Host only.
type StartRound struct {
	Round  int          `json:"round"`
	Params VisualParams `json:"params"`
}

// SubmitGuess fills the sender's guess slot.
type SubmitGuess struct {
	Guess string `json:"guess"`
}

// JudgeVerdict is the host's report of the judge call. FinalComment is only
// set on the game-ending round.
type JudgeVerdict struct {
	Match        MatchLevel `json:"match"`
	Comment      string     `json:"comment"`
	FinalComment *string    `json:"finalComment,omitempty"`
}

// JudgeResult closes the round being judged. Host only.
type JudgeResult struct {
	Result JudgeVerdict `json:"result"`
}

// UpdateRoundArt attaches late art to the current round. Host only.
type UpdateRoundArt struct {
	SVGContent string `json:"svgContent"`
	Theme      string `json:"theme,omitempty"`
}

// PlayAgain resets the game and keeps presence.
type PlayAgain struct{}

func (Join) ClientType() ClientMessageType           { return TypeJoin }
func (StartRound) ClientType() ClientMessageType     { return TypeStartRound }
func (SubmitGuess) ClientType() ClientMessageType    { return TypeSubmitGuess }
func (JudgeResult) ClientType() ClientMessageType    { return TypeJudgeResult }
func (UpdateRoundArt) ClientType() ClientMessageType { return TypeUpdateRoundArt }
func (PlayAgain) ClientType() ClientMessageType      { return TypePlayAgain }

func (Join) isClientMessage()           {}
func (StartRound) isClientMessage()     {}
func (SubmitGuess) isClientMessage()    {}
func (JudgeResult) isClientMessage()    {}
func (UpdateRoundArt) isClientMessage() {}
func (PlayAgain) isClientMessage()      {}

func (m Join) MarshalJSON() ([]byte, error) {
	type wire Join
	return json.Marshal(struct {
		Type ClientMessageType `json:"type"`
		wire
	}{TypeJoin, wire(m)})
}

func (m StartRound) MarshalJSON() ([]byte, error) {
	type wire StartRound
	return json.Marshal(struct {
		Type ClientMessageType `json:"type"`
		wire
	}{TypeStartRound, wire(m)})
}

func (m SubmitGuess) MarshalJSON() ([]byte, error) {
	type wire SubmitGuess
	return json.Marshal(struct {
		Type ClientMessageType `json:"type"`
		wire
	}{TypeSubmitGuess, wire(m)})
}

func (m JudgeResult) MarshalJSON() ([]byte, error) {
	type wire JudgeResult
	return json.Marshal(struct {
		Type ClientMessageType `json:"type"`
		wire
	}{TypeJudgeResult, wire(m)})
}

func (m UpdateRoundArt) MarshalJSON() ([]byte, error) {
	type wire UpdateRoundArt
	return json.Marshal(struct {
		Type ClientMessageType `json:"type"`
		wire
	}{TypeUpdateRoundArt, wire(m)})
}

func (m PlayAgain) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ClientMessageType `json:"type"`
	}{TypePlayAgain})
}

// --- Server → Client ---

// RoomState carries a full snapshot of the room.
type RoomState struct {
	State RoomSyncState `json:"state"`
}

// PlayerJoined reports a join.
type PlayerJoined struct {
	Role Role `json:"role"`
}

// RoundStart announces a new round and its visual parameters.
type RoundStart struct {
	Round  int          `json:"round"`
	Params VisualParams `json:"params"`
}

// RoundArtUpdated patches the art of the current round.
type RoundArtUpdated struct {
	SVGContent string `json:"svgContent"`
	Theme      string `json:"theme,omitempty"`
}

// GuessReceived says which slot has guessed, without revealing the guess.
type GuessReceived struct {
	From GuessSlot `json:"from"`
}

// BothGuessed reveals both guesses once the round is ready for judging.
type BothGuessed struct {
	GuessA string `json:"guessA"`
	GuessB string `json:"guessB"`
}

// RoundResult carries the record appended to history.
type RoundResult struct {
	Record RoundRecord `json:"record"`
}

// GameOver follows the RoundResult of a terminal verdict.
type GameOver struct {
	History      []RoundRecord `json:"history"`
	FinalComment *string       `json:"finalComment"`
}

// OpponentDisconnected is sent when the other role's last connection drops.
type OpponentDisconnected struct{}

// OpponentReconnected is sent when the other role connects again.
type OpponentReconnected struct{}

// ErrorMessage reports a rejected action to the client that sent it.
type ErrorMessage struct {
	Message string `json:"message"`
}

func (RoomState) ServerType() ServerMessageType            { return TypeRoomState }
func (PlayerJoined) ServerType() ServerMessageType         { return TypePlayerJoined }
func (RoundStart) ServerType() ServerMessageType           { return TypeRoundStart }
func (RoundArtUpdated) ServerType() ServerMessageType      { return TypeRoundArtUpdated }
func (GuessReceived) ServerType() ServerMessageType        { return TypeGuessReceived }
func (BothGuessed) ServerType() ServerMessageType          { return TypeBothGuessed }
func (RoundResult) ServerType() ServerMessageType          { return TypeRoundResult }
func (GameOver) ServerType() ServerMessageType             { return TypeGameOver }
func (OpponentDisconnected) ServerType() ServerMessageType { return TypeOpponentDisconnected }
func (OpponentReconnected) ServerType() ServerMessageType  { return TypeOpponentReconnected }
func (ErrorMessage) ServerType() ServerMessageType         { return TypeError }

func (RoomState) isServerMessage()            {}
func (PlayerJoined) isServerMessage()         {}
func (RoundStart) isServerMessage()           {}
func (RoundArtUpdated) isServerMessage()      {}
func (GuessReceived) isServerMessage()        {}
func (BothGuessed) isServerMessage()          {}
func (RoundResult) isServerMessage()          {}
func (GameOver) isServerMessage()             {}
func (OpponentDisconnected) isServerMessage() {}
func (OpponentReconnected) isServerMessage()  {}
func (ErrorMessage) isServerMessage()         {}

func (m RoomState) MarshalJSON() ([]byte, error) {
	type wire RoomState
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
		wire
	}{TypeRoomState, wire(m)})
}

func (m PlayerJoined) MarshalJSON() ([]byte, error) {
	type wire PlayerJoined
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
		wire
	}{TypePlayerJoined, wire(m)})
}

func (m RoundStart) MarshalJSON() ([]byte, error) {
	type wire RoundStart
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
		wire
	}{TypeRoundStart, wire(m)})
}

func (m RoundArtUpdated) MarshalJSON() ([]byte, error) {
	type wire RoundArtUpdated
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
		wire
	}{TypeRoundArtUpdated, wire(m)})
}

func (m GuessReceived) MarshalJSON() ([]byte, error) {
	type wire GuessReceived
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
		wire
	}{TypeGuessReceived, wire(m)})
}

func (m BothGuessed) MarshalJSON() ([]byte, error) {
	type wire BothGuessed
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
		wire
	}{TypeBothGuessed, wire(m)})
}

func (m RoundResult) MarshalJSON() ([]byte, error) {
	type wire RoundResult
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
		wire
	}{TypeRoundResult, wire(m)})
}

func (m GameOver) MarshalJSON() ([]byte, error) {
	type wire GameOver
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
		wire
	}{TypeGameOver, wire(m)})
}

func (OpponentDisconnected) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
	}{TypeOpponentDisconnected})
}

func (OpponentReconnected) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
	}{TypeOpponentReconnected})
}

func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	type wire ErrorMessage
	return json.Marshal(struct {
		Type ServerMessageType `json:"type"`
		wire
	}{TypeError, wire(m)})
}

// --- Decoding ---

type envelope struct {
	Type string `json:"type"`
}

func readType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return env.Type, nil
}

func decodeClientAs[T ClientMessage](data []byte) (ClientMessage, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}

func decodeServerAs[T ServerMessage](data []byte) (ServerMessage, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}

// DecodeClient parses one client frame into its concrete message type.
func DecodeClient(data []byte) (ClientMessage, error) {
	typ, err := readType(data)
	if err != nil {
		return nil, err
	}
	switch ClientMessageType(typ) {
	case TypeJoin:
		return decodeClientAs[Join](data)
	case TypeStartRound:
		return decodeClientAs[StartRound](data)
	case TypeSubmitGuess:
		return decodeClientAs[SubmitGuess](data)
	case TypeJudgeResult:
		return decodeClientAs[JudgeResult](data)
	case TypeUpdateRoundArt:
		return decodeClientAs[UpdateRoundArt](data)
	case TypePlayAgain:
		return decodeClientAs[PlayAgain](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, typ)
	}
}

// DecodeServer parses one server frame into its concrete message type.
func DecodeServer(data []byte) (ServerMessage, error) {
	typ, err := readType(data)
	if err != nil {
		return nil, err
	}
	switch ServerMessageType(typ) {
	case TypeRoomState:
		return decodeServerAs[RoomState](data)
	case TypePlayerJoined:
		return decodeServerAs[PlayerJoined](data)
	case TypeRoundStart:
		return decodeServerAs[RoundStart](data)
	case TypeRoundArtUpdated:
		return decodeServerAs[RoundArtUpdated](data)
	case TypeGuessReceived:
		return decodeServerAs[GuessReceived](data)
	case TypeBothGuessed:
		return decodeServerAs[BothGuessed](data)
	case TypeRoundResult:
		return decodeServerAs[RoundResult](data)
	case TypeGameOver:
		return decodeServerAs[GameOver](data)
	case TypeOpponentDisconnected:
		return decodeServerAs[OpponentDisconnected](data)
	case TypeOpponentReconnected:
		return decodeServerAs[OpponentReconnected](data)
	case TypeError:
		return decodeServerAs[ErrorMessage](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, typ)
	}
}
