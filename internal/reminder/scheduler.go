package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"
)

// SchedulerConfig controls trigger behavior.
type SchedulerConfig struct {
	Timezone    string        // IANA TZ, e.g. "Asia/Jakarta"
	SendTimeout time.Duration // caller-side bound on a single delivery
}

// Scheduler bridges store records to live timers. It is the only caller of
// Registry.Arm/Disarm. Recurring reminders ride a shared cron runner; one
// shots use time.AfterFunc.
type Scheduler struct {
	log     logx.Logger
	store   Store
	channel Channel
	reg     *Registry

	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location

	sendTimeout time.Duration

	// now is swappable for tests.
	now func() time.Time
}

const defaultSendTimeout = 15 * time.Second

func NewScheduler(cfg SchedulerConfig, store Store, channel Channel, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := loadLocation(cfg.Timezone, log)
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		log:         log,
		store:       store,
		channel:     channel,
		reg:         NewRegistry(),
		parser:      parser,
		c:           cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		loc:         loc,
		sendTimeout: timeout,
		now:         time.Now,
	}
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Location returns the scheduler timezone. Validation of one-shot fire
// times must happen in this location.
func (s *Scheduler) Location() *time.Location { return s.loc }

// ArmedCount exposes the registry size for status commands.
func (s *Scheduler) ArmedCount() int { return s.reg.Count() }

func (s *Scheduler) Start() {
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()))
}

// Stop halts the cron runner and cancels all armed timers. In-flight fire
// callbacks are allowed to finish; they re-read store state and self-skip
// if the record changed underneath them.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.reg.DisarmAll()
	s.log.Info("scheduler stopped")
}

// ScheduleRecurring arms a recurring timer for r. A paused record is a
// logged no-op: pause means "exists, active, no live timer".
func (s *Scheduler) ScheduleRecurring(r *Reminder) error {
	_, err := s.scheduleRecurring(r)
	return err
}

// scheduleRecurring reports whether a timer was actually armed, so
// LoadAll can count paused no-ops separately.
func (s *Scheduler) scheduleRecurring(r *Reminder) (bool, error) {
	if r.Paused {
		s.log.Debug("reminder paused, not arming", logx.Int64("id", r.ID))
		return false, nil
	}
	h, m, err := ParseTime(r.TimeOfDay)
	if err != nil {
		return false, fmt.Errorf("reminder %d: %w", r.ID, err)
	}
	expr := BuildCronExpr(r.Days, h, m)
	id := r.ID
	entry, err := s.c.AddFunc(expr, func() { s.fire(id) })
	if err != nil {
		return false, fmt.Errorf("reminder %d: bad cron expr %q: %w", r.ID, expr, err)
	}
	if err := s.reg.Arm(id, JobRecurring, func() { s.c.Remove(entry) }); err != nil {
		s.c.Remove(entry)
		return false, err
	}
	s.log.Info("reminder armed", logx.Int64("id", id), logx.String("expr", expr))
	return true, nil
}

// ScheduleOneShot arms a one-shot timer for r. A fire time at or before
// now is a logged skip, not an error: the record is stale (e.g. the
// process was down past its fire time) and stays active but unscheduled
// until a human deletes or re-dates it.
func (s *Scheduler) ScheduleOneShot(r *Reminder) error {
	_, err := s.scheduleOneShot(r)
	return err
}

func (s *Scheduler) scheduleOneShot(r *Reminder) (bool, error) {
	delay := r.FireAt.Sub(s.now())
	if delay <= 0 {
		s.log.Warn("one-shot fire time already passed, not arming",
			logx.Int64("id", r.ID), logx.Time("fire_at", r.FireAt))
		return false, nil
	}
	id := r.ID
	// The callback must not run before the registry entry exists: with a
	// near-zero delay, retireOneShot's disarm could otherwise precede Arm
	// and leave a live entry for an already-retired id.
	armed := make(chan bool, 1)
	timer := time.AfterFunc(delay, func() {
		if !<-armed {
			return
		}
		s.fire(id)
		s.retireOneShot(id)
	})
	if err := s.reg.Arm(id, JobOneShot, func() { timer.Stop() }); err != nil {
		timer.Stop()
		armed <- false
		return false, err
	}
	armed <- true
	s.log.Info("one-shot armed", logx.Int64("id", id), logx.Time("fire_at", r.FireAt))
	return true, nil
}

// StopJob disarms the timer for id, reporting whether one was found.
// Absent ids are fine: delete after pause finds nothing to disarm.
func (s *Scheduler) StopJob(id int64) bool {
	found := s.reg.Disarm(id)
	if found {
		s.log.Debug("reminder disarmed", logx.Int64("id", id))
	}
	return found
}

// Reschedule is the single arm path used by edit and resume: stop
// unconditionally, then arm per kind. Repeating it in any order can never
// leave a duplicate timer.
func (s *Scheduler) Reschedule(r *Reminder) error {
	s.StopJob(r.ID)
	if r.IsOneShot() {
		return s.ScheduleOneShot(r)
	}
	return s.ScheduleRecurring(r)
}

// LoadAll re-derives all timer state from the store. It is the sole
// recovery mechanism after a restart: one-shots whose fire time passed
// during downtime are skipped (see ScheduleOneShot), recurring reminders
// resume on their normal cadence with no catch-up.
func (s *Scheduler) LoadAll(ctx context.Context) (int, error) {
	reminders, err := s.store.ListAllActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("load reminders: %w", err)
	}
	armed := 0
	for i := range reminders {
		r := &reminders[i]
		var ok bool
		var err error
		if r.IsOneShot() {
			ok, err = s.scheduleOneShot(r)
		} else {
			ok, err = s.scheduleRecurring(r)
		}
		if err != nil {
			s.log.Error("failed to arm reminder on load", logx.Int64("id", r.ID), logx.Err(err))
			continue
		}
		if ok {
			armed++
		}
	}
	s.log.Info("reminders loaded", logx.Int("records", len(reminders)), logx.Int("armed", armed))
	return armed, nil
}

// fire runs at a reminder's scheduled instant. It trusts nothing captured
// at arm time: the authoritative record is re-read so a pause/delete that
// raced the timer wins. Errors never escape; a panic here must not take
// down the process or corrupt the registry.
func (s *Scheduler) fire(id int64) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic in fire callback",
				logx.Int64("id", id), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.log.Warn("fire: record unavailable, skipping", logx.Int64("id", id), logx.Err(err))
		return
	}
	if !r.Active {
		s.log.Debug("fire: reminder no longer active, skipping", logx.Int64("id", id))
		return
	}
	if r.Paused {
		s.log.Debug("fire: reminder paused, skipping", logx.Int64("id", id))
		return
	}

	chat, err := s.channel.Resolve(ctx, r.ChannelID)
	if errors.Is(err, ErrChatNotFound) {
		// The chat is gone for good. Retrying forever would spam the log
		// every cycle, so the record is retired instead.
		s.log.Warn("fire: chat not found, deactivating reminder",
			logx.Int64("id", id), logx.String("chat", r.ChannelID))
		s.deactivate(ctx, id)
		s.reg.Disarm(id)
		return
	}
	if err != nil {
		s.log.Warn("fire: chat resolve failed, occurrence lost", logx.Int64("id", id), logx.Err(err))
		return
	}

	text := BuildFireMessage(r, s.loc)
	if err := s.channel.Send(ctx, r.ChannelID, text, chat.Members); err != nil {
		s.log.Warn("fire: send failed, occurrence lost", logx.Int64("id", id), logx.Err(err))
		return
	}
	s.log.Info("reminder delivered", logx.Int64("id", id), logx.String("chat", r.ChannelID),
		logx.Int("mentions", len(chat.Members)))
}

// retireOneShot deactivates a one-shot record immediately after its single
// fire attempt, success or failure: there is no next occurrence to fall
// back to, so the attempt itself consumes the record.
func (s *Scheduler) retireOneShot(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	s.deactivate(ctx, id)
	// The timer self-consumed, but disarm anyway so the registry can never
	// hold an entry for a retired id.
	s.reg.Disarm(id)
	s.log.Info("one-shot retired", logx.Int64("id", id))
}

func (s *Scheduler) deactivate(ctx context.Context, id int64) {
	inactive := false
	if _, err := s.store.Update(ctx, id, Fields{Active: &inactive}); err != nil {
		s.log.Error("failed to deactivate reminder", logx.Int64("id", id), logx.Err(err))
	}
}
