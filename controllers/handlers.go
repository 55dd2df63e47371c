package controllers

import (
	"context"
	"log/slog"
	"time"

	"github.com/meinhoongagan/availability-engine/availability"
	"github.com/meinhoongagan/availability-engine/booking"
	"github.com/meinhoongagan/availability-engine/models"
)

// UserStore is the user lookup the auth and booking handlers need.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
}

// Handlers holds the services behind the REST API.
type Handlers struct {
	availability *availability.Service
	bookings     *booking.Service
	users        UserStore
	secret       string
	tokenTTL     time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

type Option func(*Handlers)

func WithClock(now func() time.Time) Option {
	return func(h *Handlers) { h.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) { h.logger = logger }
}

func NewHandlers(avail *availability.Service, bookings *booking.Service, users UserStore, secret string, tokenTTL time.Duration, opts ...Option) *Handlers {
	h := &Handlers{
		availability: avail,
		bookings:     bookings,
		users:        users,
		secret:       secret,
		tokenTTL:     tokenTTL,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
