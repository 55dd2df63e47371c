package realtime

import "context"

// Message is an envelope addressed either to a set of users or to everyone.
type Message struct {
	Users     []string `json:"users,omitempty"`
	Broadcast bool     `json:"broadcast,omitempty"`
	Envelope  Envelope `json:"envelope"`
}

// Bus fans messages out to every hub instance, this one included.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe calls deliver for every published message until ctx is done.
	Subscribe(ctx context.Context, deliver func(Message)) error
}
