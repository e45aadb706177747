// Package reminder implements the reminder scheduling engine: the time
// rule helpers, the job registry, the scheduler that keeps live timers
// consistent with the durable store, and the command-level service.
package reminder

import (
	"context"
	"errors"
	"time"
)

// Kind discriminates how a reminder is triggered. It is immutable after
// creation; switching a recurring reminder to one-shot (or back) requires
// deleting and re-creating it.
type Kind string

const (
	KindRecurring Kind = "recurring"
	KindOneShot   Kind = "oneshot"
)

// MaxMessageLen caps the free-text message carried by a reminder,
// counted in runes.
const MaxMessageLen = 1000

// Reminder is the sole persistent entity. The store owns durability;
// the scheduler owns the derived "is a timer armed" fact, which must be
// re-derivable from the store alone (the basis for crash recovery).
type Reminder struct {
	ID        int64
	ChannelID string
	Kind      Kind

	// Days and TimeOfDay are authoritative for recurring reminders.
	// Days holds weekday numbers 0-6 with 0 = Sunday, sorted ascending.
	Days      []int
	TimeOfDay string // "HH:MM"

	// FireAt is authoritative for one-shot reminders.
	FireAt time.Time

	Message   string
	Active    bool
	Paused    bool
	CreatedBy string
	CreatedAt time.Time
}

func (r *Reminder) IsOneShot() bool { return r.Kind == KindOneShot }

// ErrNotFound is returned by stores when no reminder matches the lookup.
var ErrNotFound = errors.New("reminder not found")

// ErrAlreadyArmed is returned by the registry when Arm is called for an id
// that already holds a live timer. Callers must Disarm first; silently
// replacing an entry would leak the previous timer.
var ErrAlreadyArmed = errors.New("reminder already armed")

// ErrChatNotFound is returned by a Channel when the target chat no longer
// exists or the bot was removed from it.
var ErrChatNotFound = errors.New("chat not found")

// ValidationError carries a user-facing reason for rejecting a command
// before any state change.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErr(reason string) error { return &ValidationError{Reason: reason} }

// Fields is a partial update applied by Store.Update. Nil members are
// left untouched.
type Fields struct {
	Days      *[]int
	TimeOfDay *string
	FireAt    *time.Time
	Message   *string
	Active    *bool
	Paused    *bool
}

// Store is the durable source of truth for reminders. Implementations
// must provide row-level atomicity for single-record read-modify-write.
type Store interface {
	Create(ctx context.Context, r *Reminder) (*Reminder, error)
	GetByID(ctx context.Context, id int64) (*Reminder, error)
	Update(ctx context.Context, id int64, f Fields) (*Reminder, error)
	// SoftDelete marks the reminder inactive. It is scoped by channel so a
	// command issued in one chat can never delete another chat's reminder.
	SoftDelete(ctx context.Context, id int64, channelID string) error
	ListActiveForChannel(ctx context.Context, channelID string) ([]Reminder, error)
	ListAllActive(ctx context.Context) ([]Reminder, error)
}

// ChatInfo describes a resolved delivery target.
type ChatInfo struct {
	ID      string
	Title   string
	Members []Member
}

// Member is a mentionable chat member.
type Member struct {
	ID   int64
	Name string
}

// Channel delivers reminder messages. Resolve returns ErrChatNotFound when
// the chat is gone for good; any other Send/Resolve error is treated as
// transient by the fire path.
type Channel interface {
	Resolve(ctx context.Context, channelID string) (*ChatInfo, error)
	Send(ctx context.Context, channelID string, text string, mentions []Member) error
}
