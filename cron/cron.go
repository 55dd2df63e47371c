package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/timegrid"
)

// DefaultSpec runs every job once a minute.
const DefaultSpec = "@every 1m"

// Appointments is the slice of the appointment repository the jobs need.
type Appointments interface {
	DueReminders(ctx context.Context, now time.Time, lead time.Duration) ([]models.Appointment, error)
	DueStarts(ctx context.Context, now time.Time) ([]models.Appointment, error)
	MarkReminded(ctx context.Context, id string, at time.Time) error
	MarkStartNotified(ctx context.Context, id string, at time.Time) error
}

// Completer moves elapsed confirmed appointments to completed.
type Completer interface {
	CompleteElapsed(ctx context.Context) ([]models.Appointment, error)
}

// Announcer pushes lifecycle events to the parties.
type Announcer interface {
	AppointmentReminder(ctx context.Context, a models.Appointment)
	AppointmentStarted(ctx context.Context, a models.Appointment)
}

type Users interface {
	Get(ctx context.Context, id string) (models.User, error)
}

type Mailer interface {
	Enabled() bool
	Send(to, subject, body string) error
}

// Scheduler owns the periodic appointment jobs: reminders, start
// announcements and auto-completion.
type Scheduler struct {
	cron         *cron.Cron
	spec         string
	appointments Appointments
	completer    Completer
	announcer    Announcer
	users        Users
	mailer       Mailer
	lead         time.Duration
	location     *time.Location
	now          func() time.Time
	logger       *slog.Logger
}

type Option func(*Scheduler)

func WithSpec(spec string) Option {
	return func(s *Scheduler) { s.spec = spec }
}

// WithMail enables reminder e-mails; users resolves the recipients.
func WithMail(users Users, mailer Mailer) Option {
	return func(s *Scheduler) {
		s.users = users
		s.mailer = mailer
	}
}

func WithLead(lead time.Duration) Option {
	return func(s *Scheduler) { s.lead = lead }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func NewScheduler(appointments Appointments, completer Completer, announcer Announcer, opts ...Option) *Scheduler {
	s := &Scheduler{
		spec:         DefaultSpec,
		appointments: appointments,
		completer:    completer,
		announcer:    announcer,
		lead:         time.Hour,
		location:     time.Local,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithLocation(s.location))
	return s
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule appointment jobs: %w", err)
	}
	s.cron.Start()
	s.logger.Info("appointment scheduler started", "spec", s.spec, "reminder_lead", s.lead.String())
	return nil
}

// Stop halts the runner and returns a context that is done when the running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce executes every job one time. Each job logs its own failures so one
// failing query does not starve the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.sendReminders(ctx)
	s.announceStarts(ctx)
	s.completeElapsed(ctx)
}

func (s *Scheduler) sendReminders(ctx context.Context) {
	now := s.now()
	due, err := s.appointments.DueReminders(ctx, now, s.lead)
	if err != nil {
		s.logger.Error("fetch appointments for reminders", "error", err)
		return
	}

	for _, a := range due {
		if s.announcer != nil {
			s.announcer.AppointmentReminder(ctx, a)
		}
		s.emailReminder(ctx, a)
		if err := s.appointments.MarkReminded(ctx, a.ID, now); err != nil {
			s.logger.Error("stamp reminder", "appointment_id", a.ID, "error", err)
			continue
		}
		s.logger.Info("sent appointment reminder", "appointment_id", a.ID, "start", a.StartTime)
	}
}

func (s *Scheduler) announceStarts(ctx context.Context) {
	now := s.now()
	started, err := s.appointments.DueStarts(ctx, now)
	if err != nil {
		s.logger.Error("fetch started appointments", "error", err)
		return
	}

	for _, a := range started {
		if s.announcer != nil {
			s.announcer.AppointmentStarted(ctx, a)
		}
		if err := s.appointments.MarkStartNotified(ctx, a.ID, now); err != nil {
			s.logger.Error("stamp start notification", "appointment_id", a.ID, "error", err)
		}
	}
}

func (s *Scheduler) completeElapsed(ctx context.Context) {
	if s.completer == nil {
		return
	}
	done, err := s.completer.CompleteElapsed(ctx)
	if err != nil {
		s.logger.Error("complete elapsed appointments", "error", err)
		return
	}
	if len(done) > 0 {
		s.logger.Info("completed elapsed appointments", "count", len(done))
	}
}

func (s *Scheduler) emailReminder(ctx context.Context, a models.Appointment) {
	if s.mailer == nil || s.users == nil || !s.mailer.Enabled() {
		return
	}
	for _, userID := range []string{a.CreatorID, a.ParticipantID} {
		user, err := s.users.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("reminder recipient lookup failed", "appointment_id", a.ID, "user_id", userID, "error", err)
			continue
		}
		if user.Email == "" {
			continue
		}
		subject, body := reminderEmail(a, user, s.location)
		if err := s.mailer.Send(user.Email, subject, body); err != nil {
			s.logger.Warn("reminder e-mail failed", "appointment_id", a.ID, "user_id", userID, "error", err)
		}
	}
}

// reminderEmail builds the reminder subject and HTML body.
func reminderEmail(a models.Appointment, to models.User, loc *time.Location) (string, string) {
	start := a.StartTime.In(loc)
	end := a.EndTime.In(loc)
	subject := fmt.Sprintf("Reminder: Upcoming Appointment - %s", a.Title)
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>This is a reminder for your upcoming appointment.</p>
		<p><strong>Details:</strong></p>
		<ul>
			<li><strong>Title:</strong> %s</li>
			<li><strong>Date:</strong> %s</li>
			<li><strong>Time:</strong> %s - %s</li>
			<li><strong>Meeting type:</strong> %s</li>
			<li><strong>Status:</strong> %s</li>
		</ul>
		<p>If you need to reschedule or cancel, please do so as soon as possible.</p>
	`, to.Name, a.Title, timegrid.FormatYMD(start),
		timegrid.To12Hour(timegrid.ClockOf(start)), timegrid.To12Hour(timegrid.ClockOf(end)),
		a.MeetingType, a.Status)
	return subject, body
}
