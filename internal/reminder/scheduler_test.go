package reminder

import (
	"context"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func newTestScheduler(t *testing.T, store Store, channel Channel) *Scheduler {
	t.Helper()
	s := NewScheduler(SchedulerConfig{Timezone: "UTC"}, store, channel, logx.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func mustCreate(t *testing.T, store Store, r *Reminder) *Reminder {
	t.Helper()
	created, err := store.Create(context.Background(), r)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return created
}

func recurring(channelID string) *Reminder {
	return &Reminder{
		ChannelID: channelID,
		Kind:      KindRecurring,
		Days:      []int{1, 2, 3, 4, 5},
		TimeOfDay: "09:00",
		Message:   "Standup",
		Active:    true,
	}
}

// waitUntil polls cond for up to 2s. Timer-driven assertions use this
// instead of fixed sleeps.
func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestScheduleRecurringArms(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{}
	s := newTestScheduler(t, store, ch)

	r := mustCreate(t, store, recurring("chat-1"))
	if err := s.ScheduleRecurring(r); err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}
	if s.ArmedCount() != 1 {
		t.Fatalf("ArmedCount = %d, want 1", s.ArmedCount())
	}
	if kind, ok := s.reg.Kind(r.ID); !ok || kind != JobRecurring {
		t.Fatalf("registry kind = %v, %v", kind, ok)
	}
}

func TestScheduleRecurringPausedIsNoop(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(t, store, &fakeChannel{})

	r := recurring("chat-1")
	r.Paused = true
	r = mustCreate(t, store, r)
	if err := s.ScheduleRecurring(r); err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}
	if s.ArmedCount() != 0 {
		t.Fatalf("ArmedCount = %d, want 0 for paused record", s.ArmedCount())
	}
}

func TestRescheduleNeverDuplicates(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(t, store, &fakeChannel{})

	r := mustCreate(t, store, recurring("chat-1"))
	if err := s.ScheduleRecurring(r); err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}
	// Edit/pause/resume all funnel through Reschedule; repeating it in any
	// order must leave exactly one armed timer.
	for i := 0; i < 5; i++ {
		if err := s.Reschedule(r); err != nil {
			t.Fatalf("Reschedule #%d: %v", i, err)
		}
	}
	if s.ArmedCount() != 1 {
		t.Fatalf("ArmedCount = %d, want 1", s.ArmedCount())
	}
}

func TestStopThenScheduleIsSafe(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(t, store, &fakeChannel{})

	r := mustCreate(t, store, recurring("chat-1"))
	if err := s.ScheduleRecurring(r); err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}
	if !s.StopJob(r.ID) {
		t.Fatal("StopJob found nothing to disarm")
	}
	if err := s.ScheduleRecurring(r); err != nil {
		t.Fatalf("ScheduleRecurring after stop: %v", err)
	}
	if s.ArmedCount() != 1 {
		t.Fatalf("ArmedCount = %d, want 1", s.ArmedCount())
	}
}

func TestScheduleOneShotPastIsSkipped(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(t, store, &fakeChannel{})

	r := mustCreate(t, store, &Reminder{
		ChannelID: "chat-1",
		Kind:      KindOneShot,
		FireAt:    time.Now().Add(-time.Hour),
		Message:   "too late",
		Active:    true,
	})
	if err := s.ScheduleOneShot(r); err != nil {
		t.Fatalf("ScheduleOneShot: %v", err)
	}
	if s.ArmedCount() != 0 {
		t.Fatalf("ArmedCount = %d, want 0 for stale one-shot", s.ArmedCount())
	}
	// Stale skip leaves the record active until a human deals with it.
	got, err := store.GetByID(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Active {
		t.Fatal("stale one-shot was deactivated; skip must not mutate the record")
	}
}

func TestOneShotFiresOnceAndRetires(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{members: []Member{{ID: 11, Name: "Ana"}, {ID: 12, Name: "Ben"}}}
	s := newTestScheduler(t, store, ch)

	r := mustCreate(t, store, &Reminder{
		ChannelID: "chat-1",
		Kind:      KindOneShot,
		FireAt:    time.Now().Add(40 * time.Millisecond),
		TimeOfDay: "09:00",
		Message:   "ship it",
		Active:    true,
	})
	if err := s.ScheduleOneShot(r); err != nil {
		t.Fatalf("ScheduleOneShot: %v", err)
	}
	if s.ArmedCount() != 1 {
		t.Fatalf("ArmedCount = %d, want 1", s.ArmedCount())
	}

	waitUntil(t, func() bool {
		got, _ := store.GetByID(context.Background(), r.ID)
		return got != nil && !got.Active
	}, "one-shot was not retired after firing")

	if n := ch.sendCount(); n != 1 {
		t.Fatalf("sends = %d, want exactly 1", n)
	}
	if s.ArmedCount() != 0 {
		t.Fatalf("ArmedCount = %d after fire, want 0", s.ArmedCount())
	}
	ch.mu.Lock()
	mentions := ch.mentions[0]
	ch.mu.Unlock()
	if len(mentions) != 2 {
		t.Fatalf("mentions = %d, want 2", len(mentions))
	}
}

func TestOneShotRetiredEvenWhenSendFails(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{sendErr: context.DeadlineExceeded}
	s := newTestScheduler(t, store, ch)

	r := mustCreate(t, store, &Reminder{
		ChannelID: "chat-1",
		Kind:      KindOneShot,
		FireAt:    time.Now().Add(40 * time.Millisecond),
		Message:   "lost occurrence",
		Active:    true,
	})
	if err := s.ScheduleOneShot(r); err != nil {
		t.Fatalf("ScheduleOneShot: %v", err)
	}

	// A failed attempt still counts as attempted: no next occurrence
	// exists to fall back to, so the record must retire regardless.
	waitUntil(t, func() bool {
		got, _ := store.GetByID(context.Background(), r.ID)
		return got != nil && !got.Active
	}, "one-shot was not retired after failed send")
	if s.ArmedCount() != 0 {
		t.Fatalf("ArmedCount = %d, want 0", s.ArmedCount())
	}
}

func TestOneShotRapidFireLeavesNoEntry(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{}
	s := newTestScheduler(t, store, ch)

	// Near-zero delays make the retire path race the arm path; whatever
	// the interleaving, a retired id must never keep a registry entry.
	var ids []int64
	for i := 0; i < 20; i++ {
		r := mustCreate(t, store, &Reminder{
			ChannelID: "chat-1",
			Kind:      KindOneShot,
			FireAt:    time.Now().Add(time.Millisecond),
			Message:   "now-ish",
			Active:    true,
		})
		if err := s.ScheduleOneShot(r); err != nil {
			t.Fatalf("ScheduleOneShot #%d: %v", i, err)
		}
		ids = append(ids, r.ID)
	}

	waitUntil(t, func() bool {
		for _, id := range ids {
			got, _ := store.GetByID(context.Background(), id)
			if got == nil || got.Active {
				return false
			}
		}
		return true
	}, "not all one-shots retired")

	if s.ArmedCount() != 0 {
		t.Fatalf("ArmedCount = %d after all retired, want 0", s.ArmedCount())
	}
	for _, id := range ids {
		if _, ok := s.reg.Kind(id); ok {
			t.Fatalf("registry still holds entry for retired id %d", id)
		}
	}
}

func TestFireSkipsDeletedAndPaused(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{}
	s := newTestScheduler(t, store, ch)

	r := mustCreate(t, store, recurring("chat-1"))

	inactive := false
	if _, err := store.Update(context.Background(), r.ID, Fields{Active: &inactive}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	s.fire(r.ID)
	if ch.sendCount() != 0 {
		t.Fatal("fire delivered for an inactive record")
	}

	active, paused := true, true
	if _, err := store.Update(context.Background(), r.ID, Fields{Active: &active, Paused: &paused}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	s.fire(r.ID)
	if ch.sendCount() != 0 {
		t.Fatal("fire delivered for a paused record")
	}
}

func TestFireUnknownIDIsHarmless(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{}
	s := newTestScheduler(t, store, ch)

	s.fire(999)
	if ch.sendCount() != 0 {
		t.Fatal("fire delivered for unknown id")
	}
}

func TestFireChatGoneDeactivates(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{resolveErr: ErrChatNotFound}
	s := newTestScheduler(t, store, ch)

	r := mustCreate(t, store, recurring("chat-gone"))
	if err := s.ScheduleRecurring(r); err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}

	s.fire(r.ID)

	got, err := store.GetByID(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Active {
		t.Fatal("record still active after chat-not-found")
	}
	if s.ArmedCount() != 0 {
		t.Fatalf("ArmedCount = %d, want 0 after chat-not-found", s.ArmedCount())
	}
	if ch.sendCount() != 0 {
		t.Fatal("send attempted for unresolved chat")
	}
}

func TestFireTransientResolveErrorKeepsRecord(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{resolveErr: context.DeadlineExceeded}
	s := newTestScheduler(t, store, ch)

	r := mustCreate(t, store, recurring("chat-1"))
	if err := s.ScheduleRecurring(r); err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}

	s.fire(r.ID)

	got, _ := store.GetByID(context.Background(), r.ID)
	if !got.Active {
		t.Fatal("transient resolve error must not deactivate the record")
	}
	if s.ArmedCount() != 1 {
		t.Fatalf("ArmedCount = %d, want 1 (recurring waits for next cycle)", s.ArmedCount())
	}
}

func TestLoadAllRebuildsRegistry(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(t, store, &fakeChannel{})

	mustCreate(t, store, recurring("chat-1"))
	paused := recurring("chat-1")
	paused.Paused = true
	mustCreate(t, store, paused)
	mustCreate(t, store, &Reminder{
		ChannelID: "chat-2",
		Kind:      KindOneShot,
		FireAt:    time.Now().Add(time.Hour),
		Message:   "future",
		Active:    true,
	})
	mustCreate(t, store, &Reminder{
		ChannelID: "chat-2",
		Kind:      KindOneShot,
		FireAt:    time.Now().Add(-time.Hour),
		Message:   "stale",
		Active:    true,
	})
	deleted := recurring("chat-3")
	deleted.Active = false
	created, _ := store.Create(context.Background(), deleted)
	_ = store.SoftDelete(context.Background(), created.ID, "chat-3")

	armed, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	// Armed: the live recurring + the future one-shot. The paused record,
	// the stale one-shot, and the deleted record stay unarmed, and the
	// reported count must not include them.
	if armed != 2 {
		t.Fatalf("LoadAll reported %d armed, want 2", armed)
	}
	if s.ArmedCount() != 2 {
		t.Fatalf("ArmedCount = %d, want 2", s.ArmedCount())
	}
}
