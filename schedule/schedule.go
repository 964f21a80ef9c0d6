// Package schedule computes the dates on which recurring invoice templates
// fall due. All arithmetic happens on calendar dates in UTC.
package schedule

import (
	"fmt"
	"time"
)

// Frequency is the cadence of a recurring template.
type Frequency string

const (
	Weekly     Frequency = "weekly"
	Biweekly   Frequency = "biweekly"
	Monthly    Frequency = "monthly"
	Quarterly  Frequency = "quarterly"
	Biannually Frequency = "biannually"
	Annually   Frequency = "annually"
)

var frequencies = []Frequency{Weekly, Biweekly, Monthly, Quarterly, Biannually, Annually}

// Frequencies returns all known frequencies in ascending period length.
func Frequencies() []Frequency {
	out := make([]Frequency, len(frequencies))
	copy(out, frequencies)
	return out
}

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	for _, k := range frequencies {
		if k == f {
			return true
		}
	}
	return false
}

// ErrUnknownFrequency is returned for a frequency outside the known set.
var ErrUnknownFrequency = fmt.Errorf("unknown frequency")

// Day truncates t to midnight UTC of its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date returns midnight UTC for the given calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddDays adds n calendar days to the date of t.
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}

// NextOccurrence returns the occurrence following current for the given
// frequency. Month based frequencies keep the day of month and clamp it to the
// last day of the target month, so Jan 31 monthly yields Feb 28 (or 29).
func NextOccurrence(current time.Time, f Frequency) (time.Time, error) {
	d := Day(current)
	switch f {
	case Weekly:
		return d.AddDate(0, 0, 7), nil
	case Biweekly:
		return d.AddDate(0, 0, 14), nil
	case Monthly:
		return addMonthsClamped(d, 1), nil
	case Quarterly:
		return addMonthsClamped(d, 3), nil
	case Biannually:
		return addMonthsClamped(d, 6), nil
	case Annually:
		return addMonthsClamped(d, 12), nil
	}
	return time.Time{}, fmt.Errorf("%w %q", ErrUnknownFrequency, string(f))
}

// addMonthsClamped avoids time.AddDate's normalisation, which would turn
// Jan 31 + 1 month into Mar 3.
func addMonthsClamped(d time.Time, months int) time.Time {
	y, m, day := d.Date()
	total := int(m) - 1 + months
	ty := y + total/12
	tm := time.Month(total%12 + 1)
	if last := daysIn(ty, tm); day > last {
		day = last
	}
	return Date(ty, tm, day)
}

func daysIn(year int, month time.Month) int {
	// day 0 of the following month is the last day of month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysUntil returns the number of days from now until t, rounded up.
// A date in the past yields zero or a negative value.
func DaysUntil(now, t time.Time) int {
	diff := t.Sub(now)
	days := diff / (24 * time.Hour)
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return int(days)
}
