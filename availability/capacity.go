package availability

import "github.com/meinhoongagan/availability-engine/models"

// EffectiveMax resolves how many bookings a calendar may hold per day for the
// profile's current status. A limited calendar is capped at MinPerDay. Away
// is not a capacity concern: it only closes the owner's calendar, which Admit
// checks before any counting.
func EffectiveMax(p models.AvailabilityProfile) int {
	if p.Status() == models.StatusLimited {
		return p.MinPerDay
	}
	return p.MaxPerDay
}
