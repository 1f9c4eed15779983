// Package orderstatus enforces the order lifecycle:
//
//	pending → confirmed → preparing → ready → out_for_delivery → delivered
//
// with cancelled reachable from every non-terminal status. delivered and
// cancelled are terminal.
//
// Transition only validates. Callers own persistence and must serialize
// concurrent transitions of the same order (a per-order lock or a
// compare-and-set on the stored status), otherwise two requests read from
// the same stale status can both pass validation.
package orderstatus

import (
	"fmt"
	"strings"
)

// Status is the workflow position of an order.
type Status string

const (
	Pending        Status = "pending"
	Confirmed      Status = "confirmed"
	Preparing      Status = "preparing"
	Ready          Status = "ready"
	OutForDelivery Status = "out_for_delivery"
	Delivered      Status = "delivered"
	Cancelled      Status = "cancelled"
)

// successors is the forward chain.
var successors = map[Status]Status{
	Pending:        Confirmed,
	Confirmed:      Preparing,
	Preparing:      Ready,
	Ready:          OutForDelivery,
	OutForDelivery: Delivered,
}

// All lists every status in workflow order.
var All = []Status{Pending, Confirmed, Preparing, Ready, OutForDelivery, Delivered, Cancelled}

// Parse reads a status name, ignoring case and surrounding space.
func Parse(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &UnknownStatusError{Value: s}
	}
	return st, nil
}

// Valid reports whether s is one of the seven statuses.
func (s Status) Valid() bool {
	_, forward := successors[s]
	return forward || s == Delivered || s == Cancelled
}

// IsTerminal reports whether s has no outgoing transition.
func (s Status) IsTerminal() bool {
	return s == Delivered || s == Cancelled
}

// Next returns the forward successor of s.
func (s Status) Next() (Status, bool) {
	next, ok := successors[s]
	return next, ok
}

func (s Status) String() string { return string(s) }

// Transition validates moving an order from current to requested and
// returns the new status.
func Transition(current, requested Status) (Status, error) {
	if !current.Valid() {
		return current, &UnknownStatusError{Value: string(current)}
	}
	if !requested.Valid() {
		return current, &UnknownStatusError{Value: string(requested)}
	}
	if current.IsTerminal() {
		return current, &AlreadyFinalizedError{Current: current, Requested: requested}
	}
	if requested == Cancelled {
		return Cancelled, nil
	}
	if next, _ := current.Next(); next == requested {
		return requested, nil
	}
	return current, &IllegalTransitionError{From: current, To: requested}
}

// Allowed lists the statuses Transition accepts from current. Admin tools
// offer only these choices.
func Allowed(current Status) []Status {
	if !current.Valid() || current.IsTerminal() {
		return nil
	}
	next, _ := current.Next()
	return []Status{next, Cancelled}
}

// AlreadyFinalizedError rejects any transition out of a terminal status.
type AlreadyFinalizedError struct {
	Current   Status
	Requested Status
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("order is already %s and cannot move to %s", e.Current, e.Requested)
}

// IllegalTransitionError rejects skipping ahead or moving backward.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	next, _ := e.From.Next()
	return fmt.Sprintf("illegal status transition %s -> %s (expected %s or %s)", e.From, e.To, next, Cancelled)
}

// UnknownStatusError reports a value outside the enumeration.
type UnknownStatusError struct {
	Value string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown order status %q", e.Value)
}
