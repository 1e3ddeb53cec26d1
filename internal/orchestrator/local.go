// internal/orchestrator/local.go
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
)

// LocalJudge compares guesses by their words. It stands in for the remote
// judge in offline play and never returns opposite.
type LocalJudge struct{}

var _ Judge = LocalJudge{}

func (LocalJudge) Judge(_ context.Context, req JudgeRequest) (Verdict, error) {
	if req.IsFinal {
		matched := 0
		for _, rec := range req.History {
			if !rec.Match.Terminal() {
				matched++
			}
		}
		return Verdict{Comment: fmt.Sprintf("You stayed in sync for %d of %d rounds.", matched, len(req.History))}, nil
	}

	a, b := words(req.GuessA), words(req.GuessB)
	switch {
	case len(a) == 0 || len(b) == 0:
		return Verdict{Match: protocol.MatchDifferent, Comment: "Nothing to compare."}, nil
	case strings.Join(a, " ") == strings.Join(b, " "):
		return Verdict{Match: protocol.MatchPerfect, Comment: "Same thought, same words."}, nil
	case overlaps(a, b):
		return Verdict{Match: protocol.MatchClose, Comment: "Close enough to keep going."}, nil
	default:
		return Verdict{Match: protocol.MatchDifferent, Comment: "Your minds wandered apart."}, nil
	}
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	for _, w := range b {
		if set[w] {
			return true
		}
	}
	return false
}
