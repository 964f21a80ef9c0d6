package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		freq schedule.Frequency
		want time.Time
	}{
		{"weekly", schedule.Date(2024, 1, 15), schedule.Weekly, schedule.Date(2024, 1, 22)},
		{"weekly across year end", schedule.Date(2023, 12, 28), schedule.Weekly, schedule.Date(2024, 1, 4)},
		{"biweekly", schedule.Date(2024, 2, 20), schedule.Biweekly, schedule.Date(2024, 3, 5)},
		{"monthly plain", schedule.Date(2024, 1, 15), schedule.Monthly, schedule.Date(2024, 2, 15)},
		{"monthly clamps leap year", schedule.Date(2024, 1, 31), schedule.Monthly, schedule.Date(2024, 2, 29)},
		{"monthly clamps common year", schedule.Date(2023, 1, 31), schedule.Monthly, schedule.Date(2023, 2, 28)},
		{"monthly day 31 to 30 day month", schedule.Date(2024, 3, 31), schedule.Monthly, schedule.Date(2024, 4, 30)},
		{"monthly december rolls year", schedule.Date(2024, 12, 10), schedule.Monthly, schedule.Date(2025, 1, 10)},
		{"quarterly", schedule.Date(2024, 1, 15), schedule.Quarterly, schedule.Date(2024, 4, 15)},
		{"quarterly clamps", schedule.Date(2023, 11, 30), schedule.Quarterly, schedule.Date(2024, 2, 29)},
		{"biannually", schedule.Date(2024, 8, 31), schedule.Biannually, schedule.Date(2025, 2, 28)},
		{"annually", schedule.Date(2023, 6, 1), schedule.Annually, schedule.Date(2024, 6, 1)},
		{"annually leap day", schedule.Date(2024, 2, 29), schedule.Annually, schedule.Date(2025, 2, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schedule.NextOccurrence(tt.from, tt.freq)
			if err != nil {
				t.Fatalf("NextOccurrence: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence(%s, %s) = %s, want %s",
					tt.from.Format(time.DateOnly), tt.freq, got.Format(time.DateOnly), tt.want.Format(time.DateOnly))
			}
		})
	}
}

func TestNextOccurrence_TruncatesToUTCDate(t *testing.T) {
	from := time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)
	got, err := schedule.NextOccurrence(from, schedule.Monthly)
	if err != nil {
		t.Fatal(err)
	}
	if want := schedule.Date(2024, 2, 15); !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
	if got.Hour() != 0 || got.Location() != time.UTC {
		t.Errorf("result should be midnight UTC, got %s", got)
	}
}

func TestNextOccurrence_UnknownFrequency(t *testing.T) {
	_, err := schedule.NextOccurrence(schedule.Date(2024, 1, 1), "daily")
	if !errors.Is(err, schedule.ErrUnknownFrequency) {
		t.Errorf("err = %v, want ErrUnknownFrequency", err)
	}
}

func TestNextOccurrence_MonotonicAdvance(t *testing.T) {
	starts := []time.Time{
		schedule.Date(2024, 1, 31),
		schedule.Date(2024, 2, 29),
		schedule.Date(2023, 12, 31),
		schedule.Date(2024, 8, 30),
		schedule.Date(2025, 5, 1),
	}
	for _, f := range schedule.Frequencies() {
		for _, start := range starts {
			first, err := schedule.NextOccurrence(start, f)
			if err != nil {
				t.Fatal(err)
			}
			second, err := schedule.NextOccurrence(first, f)
			if err != nil {
				t.Fatal(err)
			}
			if !first.After(start) || !second.After(first) {
				t.Errorf("%s from %s: %s, %s is not strictly increasing", f,
					start.Format(time.DateOnly), first.Format(time.DateOnly), second.Format(time.DateOnly))
			}
		}
	}
}

func TestFrequencyValid(t *testing.T) {
	for _, f := range schedule.Frequencies() {
		if !f.Valid() {
			t.Errorf("%s should be valid", f)
		}
	}
	for _, f := range []schedule.Frequency{"", "daily", "Monthly"} {
		if f.Valid() {
			t.Errorf("%q should be invalid", f)
		}
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		due  time.Time
		want int
	}{
		{schedule.Date(2024, 1, 11), 1},
		{schedule.Date(2024, 1, 12), 2},
		{schedule.Date(2024, 1, 10), 0},
		{schedule.Date(2024, 2, 9), 30},
	}
	for _, tt := range tests {
		if got := schedule.DaysUntil(now, tt.due); got != tt.want {
			t.Errorf("DaysUntil(%s) = %d, want %d", tt.due.Format(time.DateOnly), got, tt.want)
		}
	}
}
