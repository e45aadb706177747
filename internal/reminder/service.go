package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	logx "remindbot/pkg/logx"
)

// Service is the command-level surface: it validates input, writes the
// store, and only then touches timer state through the scheduler
// (write-then-arm, never arm-then-write).
type Service struct {
	store Store
	sched *Scheduler
	log   logx.Logger
}

func NewService(store Store, sched *Scheduler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, sched: sched, log: log}
}

func validateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return validationErr("message must not be empty")
	}
	if utf8.RuneCountInString(msg) > MaxMessageLen {
		return validationErr(fmt.Sprintf("message too long (max %d characters)", MaxMessageLen))
	}
	return nil
}

// CreateRecurring validates and persists a weekly reminder, then arms it.
func (s *Service) CreateRecurring(ctx context.Context, channelID string, days []int, timeOfDay, message, createdBy string) (*Reminder, error) {
	if !ValidDays(days) {
		return nil, validationErr("days must be numbers 0-6 (0=Sunday), at least one")
	}
	if !ValidTime(timeOfDay) {
		return nil, validationErr("time must be HH:MM (hour 00-23, minute 00-59)")
	}
	if err := validateMessage(message); err != nil {
		return nil, err
	}

	r, err := s.store.Create(ctx, &Reminder{
		ChannelID: channelID,
		Kind:      KindRecurring,
		Days:      days,
		TimeOfDay: timeOfDay,
		Message:   message,
		Active:    true,
		CreatedBy: createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	if err := s.sched.ScheduleRecurring(r); err != nil {
		return nil, err
	}
	s.log.Info("reminder created", logx.Int64("id", r.ID), logx.String("chat", channelID))
	return r, nil
}

// CreateOneShot validates and persists a one-shot reminder, then arms it.
// A fire time at or before now is rejected outright, never silently
// dropped or fired immediately.
func (s *Service) CreateOneShot(ctx context.Context, channelID string, dateStr, timeOfDay, message, createdBy string) (*Reminder, error) {
	if !ValidTime(timeOfDay) {
		return nil, validationErr("time must be HH:MM (hour 00-23, minute 00-59)")
	}
	loc := s.sched.Location()
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return nil, validationErr("date must be YYYY-MM-DD or DD-MM-YYYY")
	}
	fireAt, err := CombineDateTime(date, timeOfDay, loc)
	if err != nil {
		return nil, validationErr("time must be HH:MM (hour 00-23, minute 00-59)")
	}
	if !fireAt.After(s.sched.now()) {
		return nil, validationErr("that date and time has already passed")
	}
	if err := validateMessage(message); err != nil {
		return nil, err
	}

	r, err := s.store.Create(ctx, &Reminder{
		ChannelID: channelID,
		Kind:      KindOneShot,
		TimeOfDay: timeOfDay,
		FireAt:    fireAt,
		Message:   message,
		Active:    true,
		CreatedBy: createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create one-shot reminder: %w", err)
	}
	if err := s.sched.ScheduleOneShot(r); err != nil {
		return nil, err
	}
	s.log.Info("one-shot created", logx.Int64("id", r.ID), logx.Time("fire_at", fireAt))
	return r, nil
}

// getOwned fetches id and rejects records the caller's channel does not
// own or that are already inactive. NotFound and wrong-channel are
// deliberately the same answer so ids can't be probed across chats.
func (s *Service) getOwned(ctx context.Context, channelID string, id int64) (*Reminder, error) {
	r, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, validationErr("reminder not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	if r.ChannelID != channelID {
		return nil, validationErr("reminder not found in this chat")
	}
	if !r.Active {
		return nil, validationErr("reminder is no longer active")
	}
	return r, nil
}

// Edit updates a single field and reschedules. Supported fields:
//
//	time    - both kinds; for one-shots the fire time is recomputed
//	message - both kinds
//	days    - recurring only
//	date    - one-shot only; fire time is recomputed
func (s *Service) Edit(ctx context.Context, channelID string, id int64, field, value string) (*Reminder, error) {
	r, err := s.getOwned(ctx, channelID, id)
	if err != nil {
		return nil, err
	}

	var f Fields
	loc := s.sched.Location()
	switch strings.ToLower(field) {
	case "time":
		if !ValidTime(value) {
			return nil, validationErr("time must be HH:MM (hour 00-23, minute 00-59)")
		}
		f.TimeOfDay = &value
		if r.IsOneShot() {
			fireAt, err := CombineDateTime(r.FireAt.In(loc), value, loc)
			if err != nil {
				return nil, validationErr("time must be HH:MM (hour 00-23, minute 00-59)")
			}
			if !fireAt.After(s.sched.now()) {
				return nil, validationErr("that date and time has already passed")
			}
			f.FireAt = &fireAt
		}
	case "message":
		if err := validateMessage(value); err != nil {
			return nil, err
		}
		f.Message = &value
	case "days":
		if r.IsOneShot() {
			return nil, validationErr("one-shot reminders have no days; edit the date instead")
		}
		days, err := ParseDays(value)
		if err != nil {
			return nil, validationErr("days must be numbers 0-6 (0=Sunday), comma-separated")
		}
		f.Days = &days
	case "date":
		if !r.IsOneShot() {
			return nil, validationErr("recurring reminders have no date; edit the days instead")
		}
		date, err := ParseDate(value, loc)
		if err != nil {
			return nil, validationErr("date must be YYYY-MM-DD or DD-MM-YYYY")
		}
		fireAt, err := CombineDateTime(date, r.TimeOfDay, loc)
		if err != nil {
			return nil, fmt.Errorf("recompute fire time: %w", err)
		}
		if !fireAt.After(s.sched.now()) {
			return nil, validationErr("that date and time has already passed")
		}
		f.FireAt = &fireAt
	default:
		return nil, validationErr("unknown field; use time, message, days or date")
	}

	updated, err := s.store.Update(ctx, id, f)
	if err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	if err := s.sched.Reschedule(updated); err != nil {
		return nil, err
	}
	s.log.Info("reminder edited", logx.Int64("id", id), logx.String("field", field))
	return updated, nil
}

// Pause stops a recurring reminder's timer without losing the record.
// Pausing an already-paused reminder is idempotent. One-shots cannot be
// paused; deleting is the equivalent.
func (s *Service) Pause(ctx context.Context, channelID string, id int64) error {
	r, err := s.getOwned(ctx, channelID, id)
	if err != nil {
		return err
	}
	if r.IsOneShot() {
		return validationErr("only recurring reminders can be paused; delete the one-shot instead")
	}
	if r.Paused {
		return validationErr("reminder is already paused")
	}
	paused := true
	if _, err := s.store.Update(ctx, id, Fields{Paused: &paused}); err != nil {
		return fmt.Errorf("pause reminder: %w", err)
	}
	s.sched.StopJob(id)
	s.log.Info("reminder paused", logx.Int64("id", id))
	return nil
}

// Resume re-arms a paused recurring reminder.
func (s *Service) Resume(ctx context.Context, channelID string, id int64) error {
	r, err := s.getOwned(ctx, channelID, id)
	if err != nil {
		return err
	}
	if r.IsOneShot() {
		return validationErr("only recurring reminders can be resumed")
	}
	if !r.Paused {
		return validationErr("reminder is already running")
	}
	paused := false
	updated, err := s.store.Update(ctx, id, Fields{Paused: &paused})
	if err != nil {
		return fmt.Errorf("resume reminder: %w", err)
	}
	if err := s.sched.Reschedule(updated); err != nil {
		return err
	}
	s.log.Info("reminder resumed", logx.Int64("id", id))
	return nil
}

// Delete disarms and soft-deletes. The stop comes first so the timer can
// never fire between the store write and the disarm; fire's re-read makes
// the reverse order safe too, but there is no reason to rely on it.
func (s *Service) Delete(ctx context.Context, channelID string, id int64) error {
	if _, err := s.getOwned(ctx, channelID, id); err != nil {
		return err
	}
	s.sched.StopJob(id)
	if err := s.store.SoftDelete(ctx, id, channelID); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	s.log.Info("reminder deleted", logx.Int64("id", id))
	return nil
}

// List returns the channel's active reminders, paused ones included.
func (s *Service) List(ctx context.Context, channelID string) ([]Reminder, error) {
	return s.store.ListActiveForChannel(ctx, channelID)
}

// Location exposes the scheduler timezone for display formatting.
func (s *Service) Location() *time.Location { return s.sched.Location() }

// Status describes the live scheduler state for debug commands.
type Status struct {
	Armed    int
	Timezone string
	Now      time.Time
}

func (s *Service) Status() Status {
	return Status{
		Armed:    s.sched.ArmedCount(),
		Timezone: s.sched.Location().String(),
		Now:      s.sched.now().In(s.sched.Location()),
	}
}
