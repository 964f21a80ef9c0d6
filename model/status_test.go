package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/fixtures"
	"github.com/njrobinson96/InvoiceNinja2/model"
)

func TestApplyTransition(t *testing.T) {
	now := time.Date(2024, time.March, 10, 15, 30, 0, 0, time.UTC)
	pastDue := fixtures.Day(2024, time.March, 1)
	notDue := fixtures.Day(2024, time.March, 20)

	tests := []struct {
		name        string
		from        model.InvoiceStatus
		to          model.InvoiceStatus
		due         time.Time
		wantChanged bool
		wantErr     error
	}{
		{"draft to sent", model.InvoiceStatusDraft, model.InvoiceStatusSent, notDue, true, nil},
		{"draft to paid", model.InvoiceStatusDraft, model.InvoiceStatusPaid, notDue, true, nil},
		{"draft to viewed", model.InvoiceStatusDraft, model.InvoiceStatusViewed, notDue, false, model.ErrInvalidTransition},
		{"draft to overdue", model.InvoiceStatusDraft, model.InvoiceStatusOverdue, pastDue, false, model.ErrInvalidTransition},
		{"sent to viewed", model.InvoiceStatusSent, model.InvoiceStatusViewed, notDue, true, nil},
		{"sent to overdue past due", model.InvoiceStatusSent, model.InvoiceStatusOverdue, pastDue, true, nil},
		{"sent to overdue not due", model.InvoiceStatusSent, model.InvoiceStatusOverdue, notDue, false, model.ErrInvalidTransition},
		{"sent to draft", model.InvoiceStatusSent, model.InvoiceStatusDraft, notDue, false, model.ErrInvalidTransition},
		{"viewed to paid", model.InvoiceStatusViewed, model.InvoiceStatusPaid, notDue, true, nil},
		{"viewed to sent", model.InvoiceStatusViewed, model.InvoiceStatusSent, notDue, false, model.ErrInvalidTransition},
		{"overdue to paid", model.InvoiceStatusOverdue, model.InvoiceStatusPaid, pastDue, true, nil},
		{"overdue to sent", model.InvoiceStatusOverdue, model.InvoiceStatusSent, pastDue, false, model.ErrInvalidTransition},
		{"paid to sent", model.InvoiceStatusPaid, model.InvoiceStatusSent, notDue, false, model.ErrInvalidTransition},
		{"paid to draft", model.InvoiceStatusPaid, model.InvoiceStatusDraft, notDue, false, model.ErrInvalidTransition},
		{"paid to paid", model.InvoiceStatusPaid, model.InvoiceStatusPaid, notDue, false, nil},
		{"draft to draft", model.InvoiceStatusDraft, model.InvoiceStatusDraft, notDue, false, nil},
		{"unknown target", model.InvoiceStatusDraft, model.InvoiceStatus("void"), notDue, false, model.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &model.Invoice{Status: tt.from, DueDate: tt.due}
			changed, err := model.ApplyTransition(inv, tt.to, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if inv.Status != tt.from {
					t.Errorf("status changed to %q on error", inv.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
			if inv.Status != tt.to {
				t.Errorf("status = %q, want %q", inv.Status, tt.to)
			}
		})
	}
}

func TestApplyTransition_SentStampsLastSentDate(t *testing.T) {
	now := time.Date(2024, time.March, 10, 15, 30, 0, 0, time.UTC)
	inv := &model.Invoice{Status: model.InvoiceStatusDraft, DueDate: fixtures.Day(2024, time.April, 1)}

	if _, err := model.ApplyTransition(inv, model.InvoiceStatusSent, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if inv.LastSentDate == nil || !inv.LastSentDate.Equal(now) {
		t.Errorf("LastSentDate = %v, want %v", inv.LastSentDate, now)
	}
}

func TestComputeStatus(t *testing.T) {
	ref := fixtures.Day(2024, time.January, 10)
	tests := []struct {
		status model.InvoiceStatus
		due    time.Time
		want   model.InvoiceStatus
	}{
		{model.InvoiceStatusSent, fixtures.Day(2024, time.January, 5), model.InvoiceStatusOverdue},
		{model.InvoiceStatusViewed, fixtures.Day(2024, time.January, 9), model.InvoiceStatusOverdue},
		{model.InvoiceStatusSent, fixtures.Day(2024, time.January, 10), model.InvoiceStatusSent},
		{model.InvoiceStatusSent, fixtures.Day(2024, time.January, 20), model.InvoiceStatusSent},
		{model.InvoiceStatusDraft, fixtures.Day(2024, time.January, 1), model.InvoiceStatusDraft},
		{model.InvoiceStatusPaid, fixtures.Day(2024, time.January, 1), model.InvoiceStatusPaid},
		{model.InvoiceStatusOverdue, fixtures.Day(2024, time.January, 1), model.InvoiceStatusOverdue},
	}
	for _, tt := range tests {
		inv := &model.Invoice{Status: tt.status, DueDate: tt.due}
		if got := model.ComputeStatus(inv, ref); got != tt.want {
			t.Errorf("ComputeStatus(%s, due %s) = %s, want %s",
				tt.status, tt.due.Format(time.DateOnly), got, tt.want)
		}
	}
}

func TestInvoiceStatusPredicates(t *testing.T) {
	if !model.InvoiceStatusPaid.IsFinal() {
		t.Error("paid should be final")
	}
	if model.InvoiceStatusOverdue.IsFinal() {
		t.Error("overdue should not be final")
	}
	if !model.InvoiceStatusViewed.IsOutstanding() || model.InvoiceStatusDraft.IsOutstanding() {
		t.Error("IsOutstanding mismatch")
	}
	if model.InvoiceStatus("").Valid() {
		t.Error("empty status should be invalid")
	}
}
