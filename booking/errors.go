package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/meinhoongagan/availability-engine/models"
)

var (
	ErrNotFound           = errors.New("booking: appointment not found")
	ErrNotParty           = errors.New("booking: only the two parties may act on an appointment")
	ErrNotParticipant     = errors.New("booking: only the participant may accept or decline")
	ErrInvalidTransition  = errors.New("booking: transition not allowed")
	ErrInsufficientNotice = errors.New("booking: cancellation notice is insufficient")
	ErrAlreadyRated       = errors.New("booking: already rated by this user")
	ErrStaleUpdate        = errors.New("booking: appointment was changed by someone else, reload and retry")

	// ErrRemoteRejected means the commit-time re-check failed, usually because
	// a concurrent booking took the slot first.
	ErrRemoteRejected = errors.New("booking: the slot is no longer available")
)

// TransitionError reports an action attempted from a state that does not allow it.
type TransitionError struct {
	From   models.AppointmentStatus
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking: cannot %s an appointment that is %s", e.Action, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NoticeError is returned by Cancel when the start is closer than the
// required notice.
type NoticeError struct {
	Required  time.Duration
	Remaining time.Duration
}

func (e *NoticeError) Error() string {
	return fmt.Sprintf("booking: cancellation needs %s notice, only %s left",
		roundDuration(e.Required), roundDuration(e.Remaining))
}

func (e *NoticeError) Is(target error) bool {
	return target == ErrInsufficientNotice
}

func roundDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Minute).String()
}
