package account

// State is the activation state of an Account.
type State string

const (
	StateUnverified               State = "unverified"
	StatePendingReview            State = "pending_review"
	StatePendingEmailVerification State = "pending_email_verification"
	StateActive                   State = "active"
	StateRejected                 State = "rejected"
)

// Trigger is the event allowed to fire a transition.
type Trigger string

const (
	TriggerRegistration      Trigger = "registration"
	TriggerEmailVerification Trigger = "email_verification"
	TriggerAdmin             Trigger = "admin"
)

// transitions is the activation graph: {role: {from: {to: trigger}}}.
// Anything missing from it is an invalid transition.
var transitions = map[Role]map[State]map[State]Trigger{
	RoleInstructor: {
		StateUnverified: {
			StatePendingReview: TriggerRegistration,
		},
		StatePendingReview: {
			StateActive:   TriggerAdmin,
			StateRejected: TriggerAdmin,
		},
	},
	RoleStudent: {
		StateUnverified: {
			StatePendingEmailVerification: TriggerRegistration,
		},
		StatePendingEmailVerification: {
			StateActive: TriggerEmailVerification,
		},
	},
}

// PendingState is the state a freshly registered account of role waits in.
func PendingState(role Role) State {
	if role == RoleInstructor {
		return StatePendingReview
	}
	return StatePendingEmailVerification
}

// ValidState reports whether an account of role may ever be in state.
func ValidState(role Role, state State) bool {
	if state == StateUnverified {
		_, ok := transitions[role]
		return ok
	}
	for _, edges := range transitions[role] {
		if _, ok := edges[state]; ok {
			return true
		}
	}
	return false
}

// CheckTransition validates moving an account of role from `from` to `to` when trig fires.
// Moving to the current state is always allowed (no-op).
func CheckTransition(role Role, from, to State, trig Trigger) error {
	if from == to {
		return nil
	}
	if t, ok := transitions[role][from][to]; ok && t == trig {
		return nil
	}
	return ErrInvalidTransition.Errorf("%s account cannot move from %s to %s on %s", role, from, to, trig)
}
