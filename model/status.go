package model

import (
	"fmt"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusViewed  InvoiceStatus = "viewed"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// IsFinal reports whether no transition leaves s.
func (s InvoiceStatus) IsFinal() bool { return s == InvoiceStatusPaid }

// IsOutstanding is true for invoices that were delivered and await payment.
func (s InvoiceStatus) IsOutstanding() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusViewed
}

// Allowed transitions (self transitions are no-ops and always allowed):
//
//	draft   -> sent | paid
//	sent    -> viewed | overdue | paid
//	viewed  -> overdue | paid
//	overdue -> paid
//	paid    -> (final)
var allowedTransitions = map[InvoiceStatus]map[InvoiceStatus]bool{
	InvoiceStatusDraft:   {InvoiceStatusSent: true, InvoiceStatusPaid: true},
	InvoiceStatusSent:    {InvoiceStatusViewed: true, InvoiceStatusOverdue: true, InvoiceStatusPaid: true},
	InvoiceStatusViewed:  {InvoiceStatusOverdue: true, InvoiceStatusPaid: true},
	InvoiceStatusOverdue: {InvoiceStatusPaid: true},
}

// IsPastDue reports whether the due date lies strictly before the calendar
// date of ref.
func IsPastDue(inv *Invoice, ref time.Time) bool {
	return schedule.Day(inv.DueDate).Before(schedule.Day(ref))
}

// ComputeStatus returns the effective status of inv at ref. Delivered but
// unpaid invoices whose due date has passed count as overdue even when the
// persisted status has not caught up yet.
func ComputeStatus(inv *Invoice, ref time.Time) InvoiceStatus {
	if inv.Status.IsOutstanding() && IsPastDue(inv, ref) {
		return InvoiceStatusOverdue
	}
	return inv.Status
}

// ApplyTransition moves inv to the status to. It returns changed=false for a
// transition into the current status. A move to sent stamps LastSentDate; a
// move to overdue requires the invoice to be past due at now.
func ApplyTransition(inv *Invoice, to InvoiceStatus, now time.Time) (changed bool, err error) {
	if !to.Valid() {
		return false, invalid("status", fmt.Sprintf("unknown status %q", to))
	}
	from := inv.Status
	if from == to {
		return false, nil
	}
	if !allowedTransitions[from][to] {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if to == InvoiceStatusOverdue && !IsPastDue(inv, now) {
		return false, fmt.Errorf("%w: invoice %d is not past due", ErrInvalidTransition, inv.ID)
	}
	inv.Status = to
	if to == InvoiceStatusSent {
		t := now.UTC()
		inv.LastSentDate = &t
	}
	return true, nil
}
