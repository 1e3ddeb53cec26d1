// internal/protocol/state.go
package protocol

// Role identifies which seat a connection occupies in a room.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Valid reports whether r is one of the two seats a room supports.
func (r Role) Valid() bool {
	return r == RoleHost || r == RoleGuest
}

// Slot is the guess slot a role writes into: A for the host, B for the guest.
func (r Role) Slot() GuessSlot {
	if r == RoleHost {
		return SlotA
	}
	return SlotB
}

// GuessSlot names one of the two guess slots on the wire.
type GuessSlot string

const (
	SlotA GuessSlot = "A"
	SlotB GuessSlot = "B"
)

// RoomPhase is the authoritative phase of a room.
type RoomPhase string

const (
	PhaseWaiting     RoomPhase = "waiting"
	PhasePlaying     RoomPhase = "playing"
	PhaseJudging     RoomPhase = "judging"
	PhaseRoundResult RoomPhase = "roundResult"
	PhaseGameOver    RoomPhase = "gameOver"
)

// MatchLevel is the judge's verdict on how closely two guesses agree.
type MatchLevel string

const (
	MatchPerfect   MatchLevel = "perfect"
	MatchClose     MatchLevel = "close"
	MatchDifferent MatchLevel = "different"
	MatchOpposite  MatchLevel = "opposite"
)

// Valid reports whether m is a known verdict.
func (m MatchLevel) Valid() bool {
	switch m {
	case MatchPerfect, MatchClose, MatchDifferent, MatchOpposite:
		return true
	}
	return false
}

// Terminal reports whether the verdict ends the game.
func (m MatchLevel) Terminal() bool {
	return m == MatchDifferent || m == MatchOpposite
}

// VisualParams identifies the artwork shown for a round. SVGContent and Theme
// arrive after the round has started; until then clients render the
// deterministic scene named by SceneID.
type VisualParams struct {
	Seed       int64    `json:"seed"`
	Coherence  *float64 `json:"coherence,omitempty"`
	SceneID    string   `json:"sceneId"`
	SVGContent string   `json:"svgContent,omitempty"`
	Theme      string   `json:"theme,omitempty"`
}

// RoundRecord is one completed round. Records are append-only.
type RoundRecord struct {
	Round   int          `json:"round"`
	Params  VisualParams `json:"params"`
	GuessA  string       `json:"guessA"`
	GuessB  string       `json:"guessB"`
	Match   MatchLevel   `json:"match"`
	Comment string       `json:"comment"`
}

// LastResult is the most recent verdict.
type LastResult struct {
	Match   MatchLevel `json:"match"`
	Comment string     `json:"comment"`
}

// RoomSyncState is the durable, server-owned snapshot of a room. It never
// carries guess text; only whether each side has submitted.
type RoomSyncState struct {
	Phase           RoomPhase     `json:"phase"`
	HasHost         bool          `json:"hasHost"`
	HasGuest        bool          `json:"hasGuest"`
	HostName        string        `json:"hostName,omitempty"`
	GuestName       string        `json:"guestName,omitempty"`
	CurrentRound    int           `json:"currentRound"`
	CurrentParams   *VisualParams `json:"currentParams"`
	History         []RoundRecord `json:"history"`
	LastResult      *LastResult   `json:"lastResult"`
	FinalComment    *string       `json:"finalComment"`
	GuessASubmitted bool          `json:"guessASubmitted"`
	GuessBSubmitted bool          `json:"guessBSubmitted"`
}

// Clone returns a deep copy so a transition never aliases the previous state.
func (s *RoomSyncState) Clone() *RoomSyncState {
	next := *s
	if s.CurrentParams != nil {
		p := s.CurrentParams.clone()
		next.CurrentParams = &p
	}
	next.History = make([]RoundRecord, len(s.History))
	for i, rec := range s.History {
		rec.Params = rec.Params.clone()
		next.History[i] = rec
	}
	if s.LastResult != nil {
		lr := *s.LastResult
		next.LastResult = &lr
	}
	if s.FinalComment != nil {
		fc := *s.FinalComment
		next.FinalComment = &fc
	}
	return &next
}

func (p VisualParams) clone() VisualParams {
	if p.Coherence != nil {
		c := *p.Coherence
		p.Coherence = &c
	}
	return p
}
