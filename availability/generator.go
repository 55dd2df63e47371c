package availability

import (
	"time"

	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/timegrid"
)

// Generate returns the ordered candidate slot starts the profile offers on
// date's calendar day. It only describes the shape of the calendar; existing
// bookings are Admit's concern.
//
// Every slot starts at Start + k*SlotDuration, begins strictly before End and
// does not intersect any break window.
func Generate(date time.Time, p models.AvailabilityProfile) []time.Time {
	if p.Status() == models.StatusAway || !p.WorksOn(date.Weekday()) || p.SlotDuration <= 0 {
		return nil
	}
	start, ok := timegrid.ParseHHMM(p.Start)
	if !ok {
		return nil
	}
	end, ok := timegrid.ParseHHMM(p.End)
	if !ok || end <= start {
		return nil
	}
	breaks := breakMinutes(p.BreakTimes)

	slots := make([]time.Time, 0, (end-start)/p.SlotDuration+1)
	for m := start; m < end; m += p.SlotDuration {
		if intersectsBreak(m, m+p.SlotDuration, breaks) {
			continue
		}
		slots = append(slots, timegrid.At(date, m))
	}
	return slots
}

type minuteRange struct {
	start, end int
}

func breakMinutes(windows []models.BreakWindow) []minuteRange {
	ranges := make([]minuteRange, 0, len(windows))
	for _, w := range windows {
		s, okStart := timegrid.ParseHHMM(w.Start)
		e, okEnd := timegrid.ParseHHMM(w.End)
		if !okStart || !okEnd || e <= s {
			continue
		}
		ranges = append(ranges, minuteRange{start: s, end: e})
	}
	return ranges
}

// intersectsBreak treats both the slot and the breaks as half-open ranges.
func intersectsBreak(slotStart, slotEnd int, breaks []minuteRange) bool {
	for _, b := range breaks {
		if slotStart < b.end && b.start < slotEnd {
			return true
		}
	}
	return false
}
