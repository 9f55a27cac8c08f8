package odds

import "time"

// MinResponse is the smallest number a player may pick.
const MinResponse = 1

// Role identifies which side of a match a player is on.
type Role int

const (
	RoleChallenger Role = iota
	RoleChallengee
)

func (r Role) String() string {
	switch r {
	case RoleChallenger:
		return "challenger"
	case RoleChallengee:
		return "challengee"
	}
	return "unknown"
}

// Other returns the opposing role.
func (r Role) Other() Role {
	if r == RoleChallenger {
		return RoleChallengee
	}
	return RoleChallenger
}

// RoleFromFlag converts the wire-level isChallenger flag.
func RoleFromFlag(isChallenger bool) Role {
	if isChallenger {
		return RoleChallenger
	}
	return RoleChallengee
}

// Winner names the side that won a completed match.
type Winner string

const (
	WinnerChallenger Winner = "challenger"
	WinnerChallengee Winner = "challengee"
)

// Challenger is the player who created the match.
type Challenger struct {
	Name     string `json:"name"`
	Response *int   `json:"response,omitempty"`
}

// Challengee is the player who accepted the match and set its ceiling.
type Challengee struct {
	Name     string `json:"name,omitempty"`
	Response *int   `json:"response,omitempty"`
}

// GameResult is set once both players have answered.
type GameResult struct {
	Winner             Winner    `json:"winner"`
	ChallengerResponse int       `json:"challengerResponse"`
	ChallengeeResponse int       `json:"challengeeResponse"`
	CompletedAt        time.Time `json:"completedAt"`
}

// Match is the persisted document for one game, keyed by Code.
type Match struct {
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Challenger  Challenger  `json:"challenger"`
	Challengee  *Challengee `json:"challengee,omitempty"`
	Max         *int        `json:"max,omitempty"`
	GameResult  *GameResult `json:"gameResult,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Patch holds the top-level fields to merge into a Match. A nil field is left
// untouched; a non-nil field replaces the stored value wholesale.
type Patch struct {
	Challenger *Challenger `json:"challenger,omitempty"`
	Challengee *Challengee `json:"challengee,omitempty"`
	Max        *int        `json:"max,omitempty"`
	GameResult *GameResult `json:"gameResult,omitempty"`
}

func (p Patch) IsEmpty() bool {
	return p.Challenger == nil && p.Challengee == nil && p.Max == nil && p.GameResult == nil
}

// NewMatch builds a freshly created match.
func NewMatch(code, description, challengerName string, createdAt time.Time) *Match {
	return &Match{
		Code:        code,
		Description: description,
		Challenger:  Challenger{Name: challengerName},
		CreatedAt:   Timestamp(createdAt),
	}
}

// Timestamp normalizes t to the precision and zone used in stored documents.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Response returns the recorded response for role, if any.
func (m *Match) Response(role Role) (int, bool) {
	switch role {
	case RoleChallenger:
		if m.Challenger.Response != nil {
			return *m.Challenger.Response, true
		}
	case RoleChallengee:
		if m.Challengee != nil && m.Challengee.Response != nil {
			return *m.Challengee.Response, true
		}
	}
	return 0, false
}

func (m *Match) HasResponded(role Role) bool {
	_, ok := m.Response(role)
	return ok
}

func (m *Match) IsCompleted() bool {
	return m.GameResult != nil
}

// Clone returns a deep copy so callers never share nested pointers with a store.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Challenger.Response = cloneInt(m.Challenger.Response)
	if m.Challengee != nil {
		ce := *m.Challengee
		ce.Response = cloneInt(m.Challengee.Response)
		c.Challengee = &ce
	}
	c.Max = cloneInt(m.Max)
	if m.GameResult != nil {
		gr := *m.GameResult
		c.GameResult = &gr
	}
	return &c
}

// Merge applies p to a copy of m, one top-level field at a time.
func Merge(m *Match, p Patch) *Match {
	merged := m.Clone()
	if p.Challenger != nil {
		ch := *p.Challenger
		ch.Response = cloneInt(p.Challenger.Response)
		merged.Challenger = ch
	}
	if p.Challengee != nil {
		ce := *p.Challengee
		ce.Response = cloneInt(p.Challengee.Response)
		merged.Challengee = &ce
	}
	if p.Max != nil {
		merged.Max = cloneInt(p.Max)
	}
	if p.GameResult != nil {
		gr := *p.GameResult
		merged.GameResult = &gr
	}
	return merged
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
