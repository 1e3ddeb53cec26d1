// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNotHost is returned for actions only the host may take.
var ErrNotHost = errors.New("orchestrator: only the host can do that")

// ViewPhase is the phase a participant's UI shows. It refines the room phase
// with local knowledge, e.g. lobby means both players are present.
type ViewPhase string

const (
	ViewWaiting     ViewPhase = "waiting"
	ViewLobby       ViewPhase = "lobby"
	ViewPlaying     ViewPhase = "playing"
	ViewJudging     ViewPhase = "judging"
	ViewRoundResult ViewPhase = "roundResult"
	ViewGameOver    ViewPhase = "gameOver"
)

const (
	DefaultFallbackComment      = "The judge could not be reached, so this round counts as different."
	DefaultFallbackFinalComment = "Thanks for playing!"
	defaultArtRetries           = 2
)

// Config wires an Orchestrator. Judge and Art are only used by the host;
// zero values fall back to the defaults above.
type Config struct {
	Role   protocol.Role
	Sender Sender
	Judge  Judge
	Art    ArtGenerator
	Logger *logrus.Logger

	ArtMode              ArtMode
	ArtRetries           int
	FallbackComment      string
	FallbackFinalComment string
}

// artJob is background art generation for one round.
type artJob struct {
	round   int
	cancel  context.CancelFunc
	done    chan struct{}
	started chan struct{} // closed once start_round for this round is sent

	// Set once done is closed.
	art Art
	ok  bool

	// patch asks the job to send update_round_art when it finishes, because
	// the round already started with the fallback scene.
	patch bool
}

// judgeRun is a judge call in flight.
type judgeRun struct {
	cancel context.CancelFunc
}

// Orchestrator interprets server messages for one participant. For the host
// it also runs the judge and the art generator and feeds their results back
// into the room.
type Orchestrator struct {
	role   protocol.Role
	sender Sender
	judge  Judge
	art    ArtGenerator
	log    *logrus.Entry
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc
	tasks  errgroup.Group

	mu                sync.Mutex
	state             protocol.RoomSyncState
	opponentConnected bool
	lastError         string
	judgedRound       int
	judging           *judgeRun

	prefetch *artJob // art for the next round
	patching *artJob // art for the current round, which started without it
}

// New returns an Orchestrator for cfg.Role. Call Close to stop its background work.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.ArtMode == "" {
		cfg.ArtMode = ArtModeScript
	}
	if cfg.ArtRetries <= 0 {
		cfg.ArtRetries = defaultArtRetries
	}
	if cfg.FallbackComment == "" {
		cfg.FallbackComment = DefaultFallbackComment
	}
	if cfg.FallbackFinalComment == "" {
		cfg.FallbackFinalComment = DefaultFallbackFinalComment
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		role:              cfg.Role,
		sender:            cfg.Sender,
		judge:             cfg.Judge,
		art:               cfg.Art,
		log:               cfg.Logger.WithField("role", cfg.Role),
		cfg:               cfg,
		ctx:               ctx,
		cancel:            cancel,
		state:             protocol.RoomSyncState{Phase: protocol.PhaseWaiting, History: []protocol.RoundRecord{}},
		opponentConnected: true,
	}
}

func (o *Orchestrator) isHost() bool { return o.role == protocol.RoleHost }

// Phase returns the phase the UI should show.
func (o *Orchestrator) Phase() ViewPhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return viewPhase(&o.state)
}

func viewPhase(s *protocol.RoomSyncState) ViewPhase {
	switch s.Phase {
	case protocol.PhasePlaying:
		return ViewPlaying
	case protocol.PhaseJudging:
		return ViewJudging
	case protocol.PhaseRoundResult:
		return ViewRoundResult
	case protocol.PhaseGameOver:
		return ViewGameOver
	}
	if s.HasHost && s.HasGuest {
		return ViewLobby
	}
	return ViewWaiting
}

// State returns a copy of the locally tracked room state.
func (o *Orchestrator) State() protocol.RoomSyncState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return *o.state.Clone()
}

func (o *Orchestrator) OpponentConnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opponentConnected
}

// LastError is the most recent error message the server sent us.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// HandleMessage folds one server message into the local view. Use it as the
// client's OnMessage callback.
func (o *Orchestrator) HandleMessage(msg protocol.ServerMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := &o.state
	switch m := msg.(type) {
	case protocol.RoomState:
		if m.State.CurrentRound < s.CurrentRound {
			o.log.Debug("Room was reset, dropping game-scoped work")
			o.resetGameUnsafe()
		}
		o.state = *m.State.Clone()

	case protocol.PlayerJoined:
		if m.Role == protocol.RoleHost {
			s.HasHost = true
		} else {
			s.HasGuest = true
		}

	case protocol.RoundStart:
		params := m.Params
		s.Phase = protocol.PhasePlaying
		s.CurrentRound = m.Round
		s.CurrentParams = &params
		s.GuessASubmitted, s.GuessBSubmitted = false, false
		if o.isHost() {
			o.startPrefetchUnsafe(m.Round + 1)
		}

	case protocol.RoundArtUpdated:
		if s.CurrentParams != nil {
			s.CurrentParams.SVGContent = m.SVGContent
			s.CurrentParams.Theme = m.Theme
		}

	case protocol.GuessReceived:
		// Guesses arriving while judging are being resubmitted after the
		// server lost them, so the verdict must be computed again.
		if s.Phase == protocol.PhaseJudging && o.isHost() {
			o.cancelJudgeUnsafe()
			o.judgedRound = 0
		}
		if m.From == protocol.SlotA {
			s.GuessASubmitted = true
		} else {
			s.GuessBSubmitted = true
		}

	case protocol.BothGuessed:
		s.Phase = protocol.PhaseJudging
		s.GuessASubmitted, s.GuessBSubmitted = true, true
		if o.isHost() && o.judgedRound < s.CurrentRound {
			o.judgedRound = s.CurrentRound
			o.scheduleJudgeUnsafe(s.CurrentRound, m.GuessA, m.GuessB)
		}

	case protocol.RoundResult:
		s.History = append(s.History, m.Record)
		s.LastResult = &protocol.LastResult{Match: m.Record.Match, Comment: m.Record.Comment}
		s.GuessASubmitted, s.GuessBSubmitted = false, false
		if m.Record.Match.Terminal() {
			s.Phase = protocol.PhaseGameOver
		} else {
			s.Phase = protocol.PhaseRoundResult
		}

	case protocol.GameOver:
		s.Phase = protocol.PhaseGameOver
		s.History = append([]protocol.RoundRecord(nil), m.History...)
		s.FinalComment = m.FinalComment
		o.cancelPrefetchUnsafe()

	case protocol.OpponentDisconnected:
		o.opponentConnected = false

	case protocol.OpponentReconnected:
		o.opponentConnected = true

	case protocol.ErrorMessage:
		o.lastError = m.Message
		o.log.Warnf("Server rejected action: %s", m.Message)

	default:
		o.log.Warnf("Unhandled server message %T", msg)
	}
}

// SubmitGuess sends this participant's guess for the current round.
func (o *Orchestrator) SubmitGuess(ctx context.Context, guess string) error {
	return o.sender.Send(ctx, protocol.SubmitGuess{Guess: guess})
}

// PlayAgain drops art and judge work in flight and asks the room to start over.
func (o *Orchestrator) PlayAgain(ctx context.Context) error {
	o.mu.Lock()
	o.resetGameUnsafe()
	o.mu.Unlock()
	return o.sender.Send(ctx, protocol.PlayAgain{})
}

// StartNextRound starts round N+1. It never waits for art: prefetched art is
// used if ready, otherwise the round ships with the fallback scene and the art
// follows as update_round_art.
func (o *Orchestrator) StartNextRound(ctx context.Context) error {
	if !o.isHost() {
		return ErrNotHost
	}

	o.mu.Lock()
	round := o.state.CurrentRound + 1
	sceneID, seed := FallbackScene(round, o.sceneIDsUnsafe())
	coherence := Coherence(round)
	params := protocol.VisualParams{Seed: seed, Coherence: &coherence, SceneID: sceneID}

	p := o.prefetch
	if p == nil || p.round != round {
		o.cancelPrefetchUnsafe()
		p = o.launchArtUnsafe(round)
	}
	o.prefetch = nil
	o.cancelPatchingUnsafe()
	select {
	case <-p.done:
		if p.ok {
			params.SVGContent = p.art.Content
			params.Theme = p.art.Theme
		}
		p.cancel()
	default:
		p.patch = true
		o.patching = p
	}
	o.mu.Unlock()

	err := o.sender.Send(ctx, protocol.StartRound{Round: round, Params: params})
	if err != nil {
		p.cancel()
	}
	close(p.started)
	return err
}

// Close stops background work and waits for it to finish.
func (o *Orchestrator) Close() {
	o.cancel()
	_ = o.tasks.Wait()
}

func (o *Orchestrator) resetGameUnsafe() {
	o.cancelPrefetchUnsafe()
	o.cancelPatchingUnsafe()
	o.cancelJudgeUnsafe()
	o.judgedRound = 0
}

func (o *Orchestrator) cancelJudgeUnsafe() {
	if o.judging != nil {
		o.judging.cancel()
		o.judging = nil
	}
}

func (o *Orchestrator) sceneIDsUnsafe() []string {
	var ids []string
	for _, rec := range o.state.History {
		ids = append(ids, rec.Params.SceneID)
	}
	if p := o.state.CurrentParams; p != nil && (len(ids) == 0 || ids[len(ids)-1] != p.SceneID) {
		ids = append(ids, p.SceneID)
	}
	return ids
}

func (o *Orchestrator) themesUnsafe() []string {
	var themes []string
	for _, rec := range o.state.History {
		if rec.Params.Theme != "" {
			themes = append(themes, rec.Params.Theme)
		}
	}
	if p := o.state.CurrentParams; p != nil && p.Theme != "" {
		themes = append(themes, p.Theme)
	}
	return themes
}

// scheduleJudgeUnsafe runs the judge in the background and sends the verdict.
// A judge failure becomes a fallback verdict, never a protocol error.
func (o *Orchestrator) scheduleJudgeUnsafe(round int, guessA, guessB string) {
	history := append([]protocol.RoundRecord(nil), o.state.History...)
	var params protocol.VisualParams
	if o.state.CurrentParams != nil {
		params = *o.state.CurrentParams
	}
	log := o.log.WithField("round", round)

	o.cancelJudgeUnsafe()
	ctx, cancel := context.WithCancel(o.ctx)
	run := &judgeRun{cancel: cancel}
	o.judging = run

	o.tasks.Go(func() error {
		defer func() {
			cancel()
			o.mu.Lock()
			if o.judging == run {
				o.judging = nil
			}
			o.mu.Unlock()
		}()
		verdict := o.callJudge(ctx, JudgeRequest{Round: round, GuessA: guessA, GuessB: guessB, History: history}, log)

		result := protocol.JudgeVerdict{Match: verdict.Match, Comment: verdict.Comment}
		if verdict.Match.Terminal() {
			final := append(history, protocol.RoundRecord{
				Round: round, Params: params, GuessA: guessA, GuessB: guessB,
				Match: verdict.Match, Comment: verdict.Comment,
			})
			summary := o.callFinal(ctx, JudgeRequest{Round: round, GuessA: guessA, GuessB: guessB, History: final, IsFinal: true}, log)
			result.FinalComment = &summary
		}

		if ctx.Err() != nil {
			return nil
		}
		if err := o.sender.Send(ctx, protocol.JudgeResult{Result: result}); err != nil {
			log.Errorf("Failed to send judge result: %v", err)
		}
		return nil
	})
}

func (o *Orchestrator) callJudge(ctx context.Context, req JudgeRequest, log *logrus.Entry) Verdict {
	fallback := Verdict{Match: protocol.MatchDifferent, Comment: o.cfg.FallbackComment}
	if o.judge == nil {
		return fallback
	}
	v, err := o.judge.Judge(ctx, req)
	if err != nil {
		log.Warnf("Judge failed, using fallback verdict: %v", err)
		return fallback
	}
	if !v.Match.Valid() {
		log.Warnf("Judge returned unknown match level %q, using fallback verdict", v.Match)
		return fallback
	}
	return v
}

func (o *Orchestrator) callFinal(ctx context.Context, req JudgeRequest, log *logrus.Entry) string {
	if o.judge == nil {
		return o.cfg.FallbackFinalComment
	}
	v, err := o.judge.Judge(ctx, req)
	if err != nil || v.Comment == "" {
		log.Warnf("Final comment unavailable: %v", err)
		return o.cfg.FallbackFinalComment
	}
	return v.Comment
}

func (o *Orchestrator) startPrefetchUnsafe(round int) {
	if p := o.prefetch; p != nil && p.round == round {
		return
	}
	o.cancelPrefetchUnsafe()
	o.prefetch = o.launchArtUnsafe(round)
}

func (o *Orchestrator) cancelPrefetchUnsafe() {
	if o.prefetch != nil {
		o.prefetch.cancel()
		o.prefetch = nil
	}
}

func (o *Orchestrator) cancelPatchingUnsafe() {
	if o.patching != nil {
		o.patching.cancel()
		o.patching = nil
	}
}

func (o *Orchestrator) launchArtUnsafe(round int) *artJob {
	ctx, cancel := context.WithCancel(o.ctx)
	p := &artJob{round: round, cancel: cancel, done: make(chan struct{}), started: make(chan struct{})}

	req := ArtRequest{Mode: o.cfg.ArtMode, Coherence: Coherence(round), PreviousThemes: o.themesUnsafe()}
	log := o.log.WithField("round", round)

	o.tasks.Go(func() error {
		defer cancel()
		art, ok := o.generate(ctx, req, log)

		o.mu.Lock()
		p.art, p.ok = art, ok
		close(p.done)
		patch := p.patch && ok && o.patching == p && ctx.Err() == nil
		if o.patching == p {
			o.patching = nil
		}
		o.mu.Unlock()

		if patch {
			select {
			case <-p.started:
			case <-ctx.Done():
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			msg := protocol.UpdateRoundArt{SVGContent: art.Content, Theme: art.Theme}
			if err := o.sender.Send(ctx, msg); err != nil {
				log.Warnf("Failed to send round art: %v", err)
			}
		}
		return nil
	})
	return p
}

// generate calls the art generator with a bounded number of retries. ok is
// false when the round should keep its fallback scene.
func (o *Orchestrator) generate(ctx context.Context, req ArtRequest, log *logrus.Entry) (Art, bool) {
	if o.art == nil {
		return Art{}, false
	}
	for attempt := 0; attempt <= o.cfg.ArtRetries; attempt++ {
		if ctx.Err() != nil {
			return Art{}, false
		}
		art, err := o.art.Generate(ctx, req)
		if err != nil {
			log.Debugf("Art attempt %d failed: %v", attempt+1, err)
			continue
		}
		if art.Fallback || art.Content == "" {
			log.Debug("Art generator fell back, keeping local scene")
			return Art{}, false
		}
		return art, true
	}
	log.Warn("Art generation failed, keeping local scene")
	return Art{}, false
}
