package reminder

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*Reminder

	createErr error
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[int64]*Reminder{}}
}

func (s *fakeStore) Create(_ context.Context, r *Reminder) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextID++
	cp := *r
	cp.ID = s.nextID
	cp.CreatedAt = time.Now()
	s.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) Update(_ context.Context, id int64, f Fields) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	r, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	if f.Days != nil {
		r.Days = append([]int(nil), (*f.Days)...)
	}
	if f.TimeOfDay != nil {
		r.TimeOfDay = *f.TimeOfDay
	}
	if f.FireAt != nil {
		r.FireAt = *f.FireAt
	}
	if f.Message != nil {
		r.Message = *f.Message
	}
	if f.Active != nil {
		r.Active = *f.Active
	}
	if f.Paused != nil {
		r.Paused = *f.Paused
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) SoftDelete(_ context.Context, id int64, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.ChannelID != channelID {
		return ErrNotFound
	}
	r.Active = false
	return nil
}

func (s *fakeStore) ListActiveForChannel(_ context.Context, channelID string) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reminder
	for _, r := range s.rows {
		if r.Active && r.ChannelID == channelID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAllActive(_ context.Context) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reminder
	for _, r := range s.rows {
		if r.Active {
			out = append(out, *r)
		}
	}
	return out, nil
}

// fakeChannel records deliveries.
type fakeChannel struct {
	mu         sync.Mutex
	resolveErr error
	sendErr    error
	members    []Member
	sends      []string
	mentions   [][]Member
}

func (c *fakeChannel) Resolve(_ context.Context, channelID string) (*ChatInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolveErr != nil {
		return nil, c.resolveErr
	}
	return &ChatInfo{ID: channelID, Members: append([]Member(nil), c.members...)}, nil
}

func (c *fakeChannel) Send(_ context.Context, _ string, text string, mentions []Member) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sends = append(c.sends, text)
	c.mentions = append(c.mentions, mentions)
	return nil
}

func (c *fakeChannel) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}
