// internal/orchestrator/collaborators.go
package orchestrator

import (
	"context"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
)

// JudgeRequest is one call to the external judge. IsFinal asks for a closing
// summary of the whole game instead of a round verdict.
type JudgeRequest struct {
	Round   int
	GuessA  string
	GuessB  string
	History []protocol.RoundRecord
	IsFinal bool
}

// Verdict is the judge's answer for one round.
type Verdict struct {
	Match   protocol.MatchLevel
	Comment string
}

// Judge compares two guesses.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (Verdict, error)
}

// ArtMode selects the output format asked of the art generator.
type ArtMode string

const (
	ArtModeScript ArtMode = "script"
	ArtModeJSON   ArtMode = "json"
)

// ArtRequest describes the next image. Coherence is in [0,1]; higher keeps
// closer to PreviousThemes.
type ArtRequest struct {
	Mode           ArtMode
	Coherence      float64
	PreviousThemes []string
}

// Art is a generated image. Fallback means the generator gave up and the
// caller should draw its own scene.
type Art struct {
	Content  string
	Fallback bool
	Theme    string
}

// ArtGenerator produces round artwork.
type ArtGenerator interface {
	Generate(ctx context.Context, req ArtRequest) (Art, error)
}

// Sender delivers client messages to the room. *client.Client implements it.
type Sender interface {
	Send(ctx context.Context, msg protocol.ClientMessage) error
}
