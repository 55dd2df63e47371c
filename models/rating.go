package models

// Rating is post-completion feedback, at most one per user per appointment.
type Rating struct {
	UserID   string `json:"userId"`
	Rating   int    `json:"rating" validate:"min=1,max=5"`
	Feedback string `json:"feedback"`
}

// RatedBy reports whether userID already left a rating on a.
func (a *Appointment) RatedBy(userID string) bool {
	for _, r := range a.Ratings {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
