package appointment

import (
	"fmt"
	"time"
)

// The clinic runs on a fixed half-hour grid from 07:00 through 22:00
// inclusive. Labels are 12-hour with an AM/PM suffix, which is what the
// client renders and what bookings store.
const (
	gridOpenMinute  = 7 * 60
	gridCloseMinute = 22 * 60
	slotMinutes     = 30

	slotLayout = "03:04 PM"
)

// Slot is one grid cell of a dentist's day.
type Slot struct {
	Label    string `json:"label"`
	Occupied bool   `json:"occupied"`
}

// SlotGrid returns the canonical grid labels in day order.
func SlotGrid() []string {
	grid := make([]string, 0, (gridCloseMinute-gridOpenMinute)/slotMinutes+1)
	for m := gridOpenMinute; m <= gridCloseMinute; m += slotMinutes {
		grid = append(grid, FormatSlot(m))
	}
	return grid
}

// FormatSlot renders minutes-since-midnight as a grid label.
func FormatSlot(minute int) string {
	t := time.Date(0, 1, 1, minute/60, minute%60, 0, 0, time.UTC)
	return t.Format(slotLayout)
}

// ParseSlotLabel converts a slot label back to minutes since midnight. Both
// zero-padded ("07:00 AM") and bare ("7:00 AM") hours are accepted.
func ParseSlotLabel(label string) (int, error) {
	t, err := time.Parse(slotLayout, label)
	if err != nil {
		t, err = time.Parse("3:04 PM", label)
		if err != nil {
			return 0, fmt.Errorf("invalid slot label %q", label)
		}
	}
	return t.Hour()*60 + t.Minute(), nil
}

// OccupiedSlots computes the set of blocked grid labels for one dentist-day.
// Only SCHEDULED appointments block; an appointment starting at minute s with
// duration d blocks every grid slot whose minute value falls in [s, s+d).
// Pure: the same appointment list always yields the same set.
func OccupiedSlots(appts []Appointment) map[string]bool {
	occupied := make(map[string]bool)
	for _, a := range appts {
		if a.Status != StatusScheduled || a.DurationMinutes <= 0 {
			continue
		}
		start, err := ParseSlotLabel(a.TimeLabel)
		if err != nil {
			continue
		}
		end := start + a.DurationMinutes
		for m := gridOpenMinute; m <= gridCloseMinute; m += slotMinutes {
			if m >= start && m < end {
				occupied[FormatSlot(m)] = true
			}
		}
	}
	return occupied
}

// DaySchedule renders the full grid with per-slot occupancy, for clients that
// offer the remaining options.
func DaySchedule(appts []Appointment) []Slot {
	occupied := OccupiedSlots(appts)
	grid := SlotGrid()
	out := make([]Slot, 0, len(grid))
	for _, label := range grid {
		out = append(out, Slot{Label: label, Occupied: occupied[label]})
	}
	return out
}

// spanFree reports whether every grid slot covered by [start, start+duration)
// is unoccupied.
func spanFree(occupied map[string]bool, start, duration int) bool {
	end := start + duration
	for m := gridOpenMinute; m <= gridCloseMinute; m += slotMinutes {
		if m >= start && m < end && occupied[FormatSlot(m)] {
			return false
		}
	}
	return true
}

// overlaps reports whether an appointment's span intersects [start, start+duration).
func overlaps(a Appointment, start, duration int) bool {
	s, err := ParseSlotLabel(a.TimeLabel)
	if err != nil {
		return false
	}
	e := s + a.DurationMinutes
	return s < start+duration && start < e
}
