package odds

import "time"

type State string

const (
	StateCreated      State = "created"
	StateCeilingSet   State = "ceiling_set"
	StateOneResponded State = "one_responded"
	StateCompleted    State = "completed"
)

// StateOf derives the lifecycle state from which fields are present.
func StateOf(m *Match) State {
	switch {
	case m.GameResult != nil:
		return StateCompleted
	case m.Max == nil:
		return StateCreated
	case m.HasResponded(RoleChallenger) || m.HasResponded(RoleChallengee):
		return StateOneResponded
	default:
		return StateCeilingSet
	}
}

// SetCeiling validates the challengee's ceiling and returns the fields to
// merge. A second attempt conflicts whatever its payload. It never mutates m.
func SetCeiling(m *Match, max int, challengeeName string) (Patch, error) {
	if m.Max != nil {
		return Patch{}, Conflict(ReasonAlreadySet, "Max value already set")
	}
	if max <= 0 {
		return Patch{}, Validationf("Max value must be a positive number")
	}
	if challengeeName == "" {
		return Patch{}, Validationf("Challengee name is required")
	}
	return Patch{
		Max:        Int(max),
		Challengee: &Challengee{Name: challengeeName},
	}, nil
}

// SubmitResponse records value for role. When the other side has already
// answered the returned patch also carries the game result.
func SubmitResponse(m *Match, value int, role Role, now time.Time) (Patch, error) {
	if m.Max == nil {
		return Patch{}, Validationf("Max value not set yet")
	}
	if value < MinResponse || value > *m.Max {
		return Patch{}, Validationf("Response must be between %d and %d", MinResponse, *m.Max)
	}
	if m.HasResponded(role) {
		return Patch{}, Conflict(ReasonAlreadyResponded, capitalize(role.String())+" has already responded")
	}
	if m.IsCompleted() {
		return Patch{}, Conflict(ReasonCompleted, "Match is already completed")
	}

	var patch Patch
	switch role {
	case RoleChallenger:
		patch.Challenger = &Challenger{Name: m.Challenger.Name, Response: Int(value)}
	case RoleChallengee:
		ce := Challengee{Response: Int(value)}
		if m.Challengee != nil {
			ce.Name = m.Challengee.Name
		}
		patch.Challengee = &ce
	default:
		return Patch{}, Validationf("Unknown role %d", role)
	}

	other, ok := m.Response(role.Other())
	if !ok {
		return patch, nil
	}

	challengerResponse, challengeeResponse := value, other
	if role == RoleChallengee {
		challengerResponse, challengeeResponse = other, value
	}
	patch.GameResult = &GameResult{
		Winner:             Decide(challengerResponse, challengeeResponse),
		ChallengerResponse: challengerResponse,
		ChallengeeResponse: challengeeResponse,
		CompletedAt:        Timestamp(now),
	}
	return patch, nil
}

// Decide applies the odds rule: matching numbers go to the challenger,
// anything else to the challengee.
func Decide(challengerResponse, challengeeResponse int) Winner {
	if challengerResponse == challengeeResponse {
		return WinnerChallenger
	}
	return WinnerChallengee
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
