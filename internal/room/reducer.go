// internal/room/reducer.go
package room

import (
	"strings"
	"unicode/utf8"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
)

const maxGuessLength = 200

// Rejection texts sent back to the offending client.
const (
	errOnlyHostStarts   = "Only host can start rounds"
	errOnlyHostJudges   = "Only host can submit judge results"
	errOnlyHostArt      = "Only host can update round art"
	errRoundInProgress  = "A round is already in progress"
	errGameIsOver       = "Game is over; start a new game first"
	errWrongRoundNumber = "Round number must follow the current round"
	errNoRoundPlaying   = "No round is accepting guesses"
	errEmptyGuess       = "Guess cannot be empty"
	errGuessTooLong     = "Guess is too long"
	errNotJudging       = "No round is waiting for a verdict"
	errGuessesMissing   = "Guesses were lost; players must resubmit before judging"
	errBadMatchLevel    = "Unknown match level"
	errNoRoundForArt    = "No round to attach art to"
	errEmptyArt         = "Art content cannot be empty"
)

// Transition is the outcome of applying one event to a room: the next state
// and the ordered messages it produces. A rejected event returns the input
// state pointer untouched.
type Transition struct {
	State    *protocol.RoomSyncState
	Messages []protocol.ServerMessage
}

// GuessTransition also carries the pending guess pair, which lives outside
// the durable state.
type GuessTransition struct {
	Transition
	GuessA *string
	GuessB *string
}

// Rejected reports whether the transition left the state untouched and only
// produced an error for the sender.
func (t Transition) Rejected(prev *protocol.RoomSyncState) bool {
	return t.State == prev && len(t.Messages) == 1 && t.Messages[0].ServerType() == protocol.TypeError
}

func reject(state *protocol.RoomSyncState, msg string) Transition {
	return Transition{State: state, Messages: []protocol.ServerMessage{protocol.ErrorMessage{Message: msg}}}
}

// CreateEmptyState returns the initial room state.
func CreateEmptyState() *protocol.RoomSyncState {
	return &protocol.RoomSyncState{
		Phase:   protocol.PhaseWaiting,
		History: []protocol.RoundRecord{},
	}
}

// HandleJoin marks the role as present. Phase and round data are left alone so
// a reconnect never resets a game in progress.
func HandleJoin(state *protocol.RoomSyncState, role protocol.Role, nickname string) Transition {
	next := state.Clone()
	nickname = strings.TrimSpace(nickname)
	switch role {
	case protocol.RoleHost:
		next.HasHost = true
		if nickname != "" {
			next.HostName = nickname
		}
	case protocol.RoleGuest:
		next.HasGuest = true
		if nickname != "" {
			next.GuestName = nickname
		}
	}
	return Transition{
		State:    next,
		Messages: []protocol.ServerMessage{protocol.PlayerJoined{Role: role}},
	}
}

// HandleStartRound begins the given round. Only the host may start rounds and
// the round number must be exactly one past the current round.
func HandleStartRound(state *protocol.RoomSyncState, role protocol.Role, round int, params protocol.VisualParams) Transition {
	if role != protocol.RoleHost {
		return reject(state, errOnlyHostStarts)
	}
	switch state.Phase {
	case protocol.PhasePlaying, protocol.PhaseJudging:
		return reject(state, errRoundInProgress)
	case protocol.PhaseGameOver:
		return reject(state, errGameIsOver)
	}
	if round != state.CurrentRound+1 {
		return reject(state, errWrongRoundNumber)
	}

	next := state.Clone()
	next.Phase = protocol.PhasePlaying
	next.CurrentRound = round
	p := params
	next.CurrentParams = &p
	next.GuessASubmitted = false
	next.GuessBSubmitted = false

	return Transition{
		State:    next,
		Messages: []protocol.ServerMessage{protocol.RoundStart{Round: round, Params: params}},
	}
}

// HandleGuess records a guess into the role's slot. When both slots are
// filled the room moves to judging and both guesses are revealed.
func HandleGuess(state *protocol.RoomSyncState, role protocol.Role, guess string, pendingA, pendingB *string) GuessTransition {
	keep := func(t Transition) GuessTransition {
		return GuessTransition{Transition: t, GuessA: pendingA, GuessB: pendingB}
	}
	slot := role.Slot()
	switch state.Phase {
	case protocol.PhasePlaying:
	case protocol.PhaseJudging:
		// A room restored from the store in judging has lost its pending
		// guesses; only the missing slots may be refilled.
		if (slot == protocol.SlotA && pendingA != nil) || (slot == protocol.SlotB && pendingB != nil) {
			return keep(reject(state, errNoRoundPlaying))
		}
	default:
		return keep(reject(state, errNoRoundPlaying))
	}
	guess = strings.TrimSpace(guess)
	if guess == "" {
		return keep(reject(state, errEmptyGuess))
	}
	if utf8.RuneCountInString(guess) > maxGuessLength {
		return keep(reject(state, errGuessTooLong))
	}

	next := state.Clone()
	a, b := pendingA, pendingB
	if slot == protocol.SlotA {
		a = &guess
		next.GuessASubmitted = true
	} else {
		b = &guess
		next.GuessBSubmitted = true
	}

	msgs := []protocol.ServerMessage{protocol.GuessReceived{From: slot}}
	if a != nil && b != nil {
		next.Phase = protocol.PhaseJudging
		msgs = append(msgs, protocol.BothGuessed{GuessA: *a, GuessB: *b})
	}

	return GuessTransition{
		Transition: Transition{State: next, Messages: msgs},
		GuessA:     a,
		GuessB:     b,
	}
}

// HandleJudgeResult closes the current round with the host's verdict. The
// round is appended to history and a terminal verdict ends the game.
func HandleJudgeResult(state *protocol.RoomSyncState, role protocol.Role, result protocol.JudgeVerdict, guessA, guessB string) Transition {
	if role != protocol.RoleHost {
		return reject(state, errOnlyHostJudges)
	}
	if state.Phase != protocol.PhaseJudging {
		return reject(state, errNotJudging)
	}
	if !result.Match.Valid() {
		return reject(state, errBadMatchLevel)
	}
	if guessA == "" || guessB == "" {
		return reject(state, errGuessesMissing)
	}

	next := state.Clone()
	record := protocol.RoundRecord{
		Round:   next.CurrentRound,
		GuessA:  guessA,
		GuessB:  guessB,
		Match:   result.Match,
		Comment: result.Comment,
	}
	if next.CurrentParams != nil {
		record.Params = *next.CurrentParams
	}
	next.History = append(next.History, record)
	next.LastResult = &protocol.LastResult{Match: result.Match, Comment: result.Comment}
	next.GuessASubmitted = false
	next.GuessBSubmitted = false
	if result.FinalComment != nil {
		fc := *result.FinalComment
		next.FinalComment = &fc
	}

	msgs := []protocol.ServerMessage{protocol.RoundResult{Record: record}}
	if result.Match.Terminal() {
		next.Phase = protocol.PhaseGameOver
		history := make([]protocol.RoundRecord, len(next.History))
		copy(history, next.History)
		msgs = append(msgs, protocol.GameOver{History: history, FinalComment: next.FinalComment})
	} else {
		next.Phase = protocol.PhaseRoundResult
	}

	return Transition{State: next, Messages: msgs}
}

// HandlePlayAgain resets the game while keeping who is in the room.
func HandlePlayAgain(state *protocol.RoomSyncState) Transition {
	next := CreateEmptyState()
	next.HasHost = state.HasHost
	next.HasGuest = state.HasGuest
	next.HostName = state.HostName
	next.GuestName = state.GuestName
	return Transition{
		State:    next,
		Messages: []protocol.ServerMessage{protocol.RoomState{State: *next}},
	}
}
