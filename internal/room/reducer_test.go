package room

import (
	"testing"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params(scene string, seed int64) protocol.VisualParams {
	return protocol.VisualParams{Seed: seed, SceneID: scene}
}

func strPtr(s string) *string { return &s }

func messageTypes(msgs []protocol.ServerMessage) []protocol.ServerMessageType {
	out := make([]protocol.ServerMessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.ServerType()
	}
	return out
}

// playRound drives one round from start to verdict and returns the final state.
func playRound(t *testing.T, state *protocol.RoomSyncState, round int, a, b string, match protocol.MatchLevel) (*protocol.RoomSyncState, []protocol.ServerMessage) {
	t.Helper()
	tr := HandleStartRound(state, protocol.RoleHost, round, params("scene", int64(round)))
	require.NotSame(t, state, tr.State)

	gt := HandleGuess(tr.State, protocol.RoleHost, a, nil, nil)
	gt = HandleGuess(gt.State, protocol.RoleGuest, b, gt.GuessA, gt.GuessB)
	require.Equal(t, protocol.PhaseJudging, gt.State.Phase)

	jr := HandleJudgeResult(gt.State, protocol.RoleHost, protocol.JudgeVerdict{Match: match, Comment: "c"}, *gt.GuessA, *gt.GuessB)
	return jr.State, jr.Messages
}

func TestCreateEmptyState(t *testing.T) {
	s := CreateEmptyState()
	assert.Equal(t, protocol.PhaseWaiting, s.Phase)
	assert.Zero(t, s.CurrentRound)
	assert.Nil(t, s.CurrentParams)
	assert.NotNil(t, s.History)
	assert.Empty(t, s.History)
	assert.Nil(t, s.LastResult)
	assert.Nil(t, s.FinalComment)
	assert.False(t, s.GuessASubmitted || s.GuessBSubmitted)
}

func TestHandleJoinIsIdempotent(t *testing.T) {
	s := CreateEmptyState()

	first := HandleJoin(s, protocol.RoleHost, "")
	second := HandleJoin(first.State, protocol.RoleHost, "")

	assert.True(t, second.State.HasHost)
	assert.False(t, second.State.HasGuest)
	assert.Equal(t, *first.State, *second.State)
	assert.Equal(t, []protocol.ServerMessage{protocol.PlayerJoined{Role: protocol.RoleHost}}, second.Messages)
	assert.False(t, s.HasHost, "input state must not be mutated")
}

func TestHandleJoinKeepsGameInProgress(t *testing.T) {
	s := HandleStartRound(CreateEmptyState(), protocol.RoleHost, 1, params("a", 1)).State

	tr := HandleJoin(s, protocol.RoleGuest, "  pip ")
	assert.Equal(t, protocol.PhasePlaying, tr.State.Phase)
	assert.Equal(t, 1, tr.State.CurrentRound)
	assert.Equal(t, "pip", tr.State.GuestName)
	assert.True(t, tr.State.HasGuest)
}

func TestGuestCannotStartRound(t *testing.T) {
	s := CreateEmptyState()

	tr := HandleStartRound(s, protocol.RoleGuest, 1, params("a", 1))

	assert.Same(t, s, tr.State)
	require.Len(t, tr.Messages, 1)
	assert.Equal(t, protocol.ErrorMessage{Message: "Only host can start rounds"}, tr.Messages[0])
	assert.True(t, tr.Rejected(s))
	assert.Equal(t, protocol.PhaseWaiting, s.Phase)
	assert.Zero(t, s.CurrentRound)
}

func TestGuestCannotJudge(t *testing.T) {
	s := HandleStartRound(CreateEmptyState(), protocol.RoleHost, 1, params("a", 1)).State
	gt := HandleGuess(s, protocol.RoleHost, "cat", nil, nil)
	gt = HandleGuess(gt.State, protocol.RoleGuest, "dog", gt.GuessA, gt.GuessB)
	judging := gt.State

	tr := HandleJudgeResult(judging, protocol.RoleGuest, protocol.JudgeVerdict{Match: protocol.MatchPerfect}, "cat", "dog")

	assert.Same(t, judging, tr.State)
	assert.Equal(t, []protocol.ServerMessageType{protocol.TypeError}, messageTypes(tr.Messages))
	assert.Equal(t, protocol.PhaseJudging, judging.Phase)
	assert.Empty(t, judging.History)
}

func TestStartRoundIncrementsByOne(t *testing.T) {
	s := CreateEmptyState()
	for round := 1; round <= 4; round++ {
		prev := s.CurrentRound
		var msgs []protocol.ServerMessage
		s, msgs = playRound(t, s, round, "x", "x", protocol.MatchClose)
		assert.Equal(t, prev+1, s.CurrentRound)
		assert.Equal(t, []protocol.ServerMessageType{protocol.TypeRoundResult}, messageTypes(msgs))
	}

	skip := HandleStartRound(s, protocol.RoleHost, s.CurrentRound+2, params("b", 9))
	assert.Same(t, s, skip.State)
	repeat := HandleStartRound(s, protocol.RoleHost, s.CurrentRound, params("b", 9))
	assert.Same(t, s, repeat.State)
}

func TestStartRoundPhaseGates(t *testing.T) {
	playing := HandleStartRound(CreateEmptyState(), protocol.RoleHost, 1, params("a", 1))
	require.Equal(t, []protocol.ServerMessage{protocol.RoundStart{Round: 1, Params: params("a", 1)}}, playing.Messages)

	again := HandleStartRound(playing.State, protocol.RoleHost, 2, params("b", 2))
	assert.Same(t, playing.State, again.State)

	over, _ := playRound(t, CreateEmptyState(), 1, "sun", "moon", protocol.MatchOpposite)
	require.Equal(t, protocol.PhaseGameOver, over.Phase)
	afterOver := HandleStartRound(over, protocol.RoleHost, 2, params("c", 3))
	assert.Same(t, over, afterOver.State)
}

func TestStartRoundClearsSubmittedFlags(t *testing.T) {
	s := CreateEmptyState()
	s.Phase = protocol.PhaseRoundResult
	s.CurrentRound = 2
	s.GuessASubmitted = true

	tr := HandleStartRound(s, protocol.RoleHost, 3, params("a", 1))
	assert.False(t, tr.State.GuessASubmitted)
	assert.False(t, tr.State.GuessBSubmitted)
	assert.Equal(t, protocol.PhasePlaying, tr.State.Phase)
	require.NotNil(t, tr.State.CurrentParams)
	assert.Equal(t, "a", tr.State.CurrentParams.SceneID)
}

func TestGuessPairing(t *testing.T) {
	s := HandleStartRound(CreateEmptyState(), protocol.RoleHost, 1, params("a", 1)).State

	guest := HandleGuess(s, protocol.RoleGuest, "dog", nil, nil)
	assert.Equal(t, protocol.PhasePlaying, guest.State.Phase)
	assert.True(t, guest.State.GuessBSubmitted)
	assert.False(t, guest.State.GuessASubmitted)
	assert.Nil(t, guest.GuessA)
	require.NotNil(t, guest.GuessB)
	assert.Equal(t, []protocol.ServerMessage{protocol.GuessReceived{From: protocol.SlotB}}, guest.Messages)

	// resubmission overwrites the slot without advancing
	guest = HandleGuess(guest.State, protocol.RoleGuest, "wolf", guest.GuessA, guest.GuessB)
	assert.Equal(t, protocol.PhasePlaying, guest.State.Phase)
	assert.Equal(t, "wolf", *guest.GuessB)

	host := HandleGuess(guest.State, protocol.RoleHost, " cat ", guest.GuessA, guest.GuessB)
	assert.Equal(t, protocol.PhaseJudging, host.State.Phase)
	assert.Equal(t, []protocol.ServerMessage{
		protocol.GuessReceived{From: protocol.SlotA},
		protocol.BothGuessed{GuessA: "cat", GuessB: "wolf"},
	}, host.Messages)
}

func TestGuessRejections(t *testing.T) {
	waiting := CreateEmptyState()
	tr := HandleGuess(waiting, protocol.RoleHost, "cat", nil, nil)
	assert.Same(t, waiting, tr.State)
	assert.Nil(t, tr.GuessA)

	playing := HandleStartRound(waiting, protocol.RoleHost, 1, params("a", 1)).State
	pending := strPtr("dog")
	tr = HandleGuess(playing, protocol.RoleHost, "   ", nil, pending)
	assert.Same(t, playing, tr.State)
	assert.Same(t, pending, tr.GuessB, "pending guesses pass through a rejection")

	long := make([]rune, maxGuessLength+1)
	for i := range long {
		long[i] = 'x'
	}
	tr = HandleGuess(playing, protocol.RoleHost, string(long), nil, nil)
	assert.Same(t, playing, tr.State)
}

func TestTerminalVerdicts(t *testing.T) {
	cases := []struct {
		match protocol.MatchLevel
		phase protocol.RoomPhase
		types []protocol.ServerMessageType
	}{
		{protocol.MatchPerfect, protocol.PhaseRoundResult, []protocol.ServerMessageType{protocol.TypeRoundResult}},
		{protocol.MatchClose, protocol.PhaseRoundResult, []protocol.ServerMessageType{protocol.TypeRoundResult}},
		{protocol.MatchDifferent, protocol.PhaseGameOver, []protocol.ServerMessageType{protocol.TypeRoundResult, protocol.TypeGameOver}},
		{protocol.MatchOpposite, protocol.PhaseGameOver, []protocol.ServerMessageType{protocol.TypeRoundResult, protocol.TypeGameOver}},
	}
	for _, tc := range cases {
		t.Run(string(tc.match), func(t *testing.T) {
			s, msgs := playRound(t, CreateEmptyState(), 1, "a", "b", tc.match)
			assert.Equal(t, tc.phase, s.Phase)
			assert.Equal(t, tc.types, messageTypes(msgs))
			assert.False(t, s.GuessASubmitted || s.GuessBSubmitted)
			require.NotNil(t, s.LastResult)
			assert.Equal(t, tc.match, s.LastResult.Match)
		})
	}
}

func TestJudgeResultRejections(t *testing.T) {
	playing := HandleStartRound(CreateEmptyState(), protocol.RoleHost, 1, params("a", 1)).State
	tr := HandleJudgeResult(playing, protocol.RoleHost, protocol.JudgeVerdict{Match: protocol.MatchPerfect}, "", "")
	assert.Same(t, playing, tr.State, "verdict before both guesses")

	gt := HandleGuess(playing, protocol.RoleHost, "a", nil, nil)
	gt = HandleGuess(gt.State, protocol.RoleGuest, "b", gt.GuessA, gt.GuessB)
	tr = HandleJudgeResult(gt.State, protocol.RoleHost, protocol.JudgeVerdict{Match: "meh"}, "a", "b")
	assert.Same(t, gt.State, tr.State, "unknown match level")
}

func TestJudgingAcceptsOnlyMissingGuesses(t *testing.T) {
	playing := HandleStartRound(CreateEmptyState(), protocol.RoleHost, 1, params("a", 1)).State
	gt := HandleGuess(playing, protocol.RoleHost, "cat", nil, nil)
	gt = HandleGuess(gt.State, protocol.RoleGuest, "dog", gt.GuessA, gt.GuessB)
	judging := gt.State
	require.Equal(t, protocol.PhaseJudging, judging.Phase)

	tr := HandleGuess(judging, protocol.RoleHost, "cow", gt.GuessA, gt.GuessB)
	assert.Same(t, judging, tr.State, "slot already holds a guess")
	assert.Equal(t, "cat", *tr.GuessA)

	// Pending guesses are gone, as after a reload.
	tr = HandleGuess(judging, protocol.RoleGuest, "dog", nil, nil)
	assert.Equal(t, protocol.PhaseJudging, tr.State.Phase)
	assert.Equal(t, []protocol.ServerMessage{protocol.GuessReceived{From: protocol.SlotB}}, tr.Messages)

	tr = HandleGuess(tr.State, protocol.RoleHost, "cat", tr.GuessA, tr.GuessB)
	assert.Equal(t, protocol.PhaseJudging, tr.State.Phase)
	assert.Equal(t, []protocol.ServerMessage{
		protocol.GuessReceived{From: protocol.SlotA},
		protocol.BothGuessed{GuessA: "cat", GuessB: "dog"},
	}, tr.Messages)
}

func TestJudgeResultNeedsBothGuesses(t *testing.T) {
	playing := HandleStartRound(CreateEmptyState(), protocol.RoleHost, 1, params("a", 1)).State
	gt := HandleGuess(playing, protocol.RoleHost, "cat", nil, nil)
	gt = HandleGuess(gt.State, protocol.RoleGuest, "dog", gt.GuessA, gt.GuessB)

	tr := HandleJudgeResult(gt.State, protocol.RoleHost, protocol.JudgeVerdict{Match: protocol.MatchPerfect}, "", "dog")
	assert.Same(t, gt.State, tr.State)
	assert.Equal(t, []protocol.ServerMessage{protocol.ErrorMessage{Message: errGuessesMissing}}, tr.Messages)
	assert.Empty(t, tr.State.History)
}

func TestHistoryIsAppendOnly(t *testing.T) {
	s := CreateEmptyState()
	var snapshots [][]protocol.RoundRecord
	for round := 1; round <= 3; round++ {
		s, _ = playRound(t, s, round, "g", "g", protocol.MatchPerfect)
		snap := make([]protocol.RoundRecord, len(s.History))
		copy(snap, s.History)
		snapshots = append(snapshots, snap)
	}

	for i, snap := range snapshots {
		assert.Len(t, snap, i+1)
		assert.Equal(t, snap, s.History[:len(snap)], "earlier records unchanged")
	}
	for i := 1; i < len(s.History); i++ {
		assert.LessOrEqual(t, s.History[i-1].Round, s.History[i].Round)
	}
}

func TestJudgeResultDoesNotAliasHistory(t *testing.T) {
	s, _ := playRound(t, CreateEmptyState(), 1, "a", "b", protocol.MatchClose)
	before := s.History[0]

	next, _ := playRound(t, s, 2, "c", "d", protocol.MatchClose)
	next.History[0].Comment = "rewritten"

	assert.Equal(t, before, s.History[0])
}

func TestFinalCommentOnlyWhenSupplied(t *testing.T) {
	s := HandleStartRound(CreateEmptyState(), protocol.RoleHost, 1, params("a", 1)).State
	gt := HandleGuess(s, protocol.RoleHost, "a", nil, nil)
	gt = HandleGuess(gt.State, protocol.RoleGuest, "b", gt.GuessA, gt.GuessB)

	tr := HandleJudgeResult(gt.State, protocol.RoleHost, protocol.JudgeVerdict{
		Match:        protocol.MatchDifferent,
		Comment:      "apart",
		FinalComment: strPtr("you lasted one round"),
	}, "a", "b")
	require.NotNil(t, tr.State.FinalComment)
	assert.Equal(t, "you lasted one round", *tr.State.FinalComment)

	over, ok := tr.Messages[1].(protocol.GameOver)
	require.True(t, ok)
	require.NotNil(t, over.FinalComment)
	assert.Equal(t, "you lasted one round", *over.FinalComment)

	plain, _ := playRound(t, CreateEmptyState(), 1, "a", "b", protocol.MatchDifferent)
	assert.Nil(t, plain.FinalComment)
}

func TestHappyPathTwoRoundsThenLoss(t *testing.T) {
	s := CreateEmptyState()
	s = HandleJoin(s, protocol.RoleHost, "").State
	s = HandleJoin(s, protocol.RoleGuest, "").State

	s = HandleStartRound(s, protocol.RoleHost, 1, params("p1", 1)).State
	gt := HandleGuess(s, protocol.RoleHost, "cat", nil, nil)
	gt = HandleGuess(gt.State, protocol.RoleGuest, "cat", gt.GuessA, gt.GuessB)
	assert.Equal(t, protocol.PhaseJudging, gt.State.Phase)
	assert.Contains(t, gt.Messages, protocol.ServerMessage(protocol.BothGuessed{GuessA: "cat", GuessB: "cat"}))

	tr := HandleJudgeResult(gt.State, protocol.RoleHost, protocol.JudgeVerdict{Match: protocol.MatchPerfect, Comment: "x"}, *gt.GuessA, *gt.GuessB)
	assert.Equal(t, protocol.PhaseRoundResult, tr.State.Phase)
	assert.Len(t, tr.State.History, 1)

	s = HandleStartRound(tr.State, protocol.RoleHost, 2, params("p2", 2)).State
	assert.Equal(t, 2, s.CurrentRound)
	gt = HandleGuess(s, protocol.RoleGuest, "tree", nil, nil)
	gt = HandleGuess(gt.State, protocol.RoleHost, "boat", gt.GuessA, gt.GuessB)

	tr = HandleJudgeResult(gt.State, protocol.RoleHost, protocol.JudgeVerdict{Match: protocol.MatchDifferent, Comment: "y"}, *gt.GuessA, *gt.GuessB)
	assert.Equal(t, protocol.PhaseGameOver, tr.State.Phase)
	require.Len(t, tr.Messages, 2)
	over, ok := tr.Messages[1].(protocol.GameOver)
	require.True(t, ok)
	require.Len(t, over.History, 2)
	assert.Equal(t, "cat", over.History[0].GuessA)
	assert.Equal(t, "boat", over.History[1].GuessA)
	assert.Equal(t, "tree", over.History[1].GuessB)
	assert.Equal(t, "p2", over.History[1].Params.SceneID)
}

func TestPlayAgainKeepsPresence(t *testing.T) {
	s := CreateEmptyState()
	s.HasHost = true
	s.HasGuest = true
	s.HostName = "mo"
	s.CurrentRound = 5
	s.Phase = protocol.PhaseGameOver
	s.History = []protocol.RoundRecord{{Round: 1}, {Round: 2}, {Round: 3}, {Round: 4}, {Round: 5}}
	s.FinalComment = strPtr("done")

	tr := HandlePlayAgain(s)

	assert.Equal(t, protocol.PhaseWaiting, tr.State.Phase)
	assert.True(t, tr.State.HasHost)
	assert.True(t, tr.State.HasGuest)
	assert.Equal(t, "mo", tr.State.HostName)
	assert.Zero(t, tr.State.CurrentRound)
	assert.Empty(t, tr.State.History)
	assert.Nil(t, tr.State.FinalComment)
	assert.Nil(t, tr.State.CurrentParams)
	assert.Equal(t, []protocol.ServerMessage{protocol.RoomState{State: *tr.State}}, tr.Messages)
	assert.Len(t, s.History, 5, "input state must not be mutated")
}
