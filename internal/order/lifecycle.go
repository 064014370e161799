package order

import "fmt"

// rule describes who may trigger one legal transition.
type rule struct {
	// roles that may always trigger the transition.
	roles map[Role]bool
	// owningUser permits the owning customer (RoleUser) as well.
	owningUser bool
}

var staffAdmin = map[Role]bool{RoleStaff: true, RoleAdmin: true}

// transitions is the single source of truth for the order state machine.
// Every call site consults it through CanTransition rather than duplicating
// role conditionals.
var transitions = map[Status]map[Status]rule{
	StatusPending: {
		StatusInProgress: {roles: staffAdmin},
		// Fast path: the owning customer pays before the kitchen starts.
		StatusPaid:      {owningUser: true},
		StatusCancelled: {roles: staffAdmin},
	},
	StatusInProgress: {
		StatusServed:    {roles: staffAdmin},
		StatusCancelled: {roles: staffAdmin},
	},
	StatusServed: {
		StatusPaid:      {roles: staffAdmin, owningUser: true},
		StatusCancelled: {roles: staffAdmin},
	},
}

// TransitionError reports a transition outside the legal table. It is
// raised locally, before any network call is attempted.
type TransitionError struct {
	From Status
	To   Status
}

// Error implements error.
func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}

// CanTransition reports whether the actor role may move an order from one
// status to another. owner indicates the actor is the order's owning
// customer.
func CanTransition(role Role, from, to Status, owner bool) bool {
	r, ok := transitions[from][to]
	if !ok {
		return false
	}
	if r.roles != nil && r.roles[role] {
		return true
	}
	if r.owningUser && role == RoleUser && owner {
		return true
	}
	return false
}

// checkTransition validates a transition attempt against the table.
func checkTransition(actor Actor, o *Order, to Status) error {
	if !CanTransition(actor.Role, o.Status, to, actor.owns(o)) {
		return TransitionError{From: o.Status, To: to}
	}
	return nil
}

// canMutateItems reports whether an existing order's items may still be
// revised: only through the staff revision path, and only while the order
// is PENDING or IN_PROGRESS. Terminal orders accept no item mutation.
func canMutateItems(actor Actor, o *Order) bool {
	if o.Status.IsTerminal() {
		return false
	}
	if o.Status != StatusPending && o.Status != StatusInProgress {
		return false
	}
	return actor.Role == RoleStaff || actor.Role == RoleAdmin
}
