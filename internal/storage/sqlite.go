// Package storage persists reminders in SQLite. It is the durable source
// of truth across restarts; all in-memory timer state is re-derived from
// it at startup.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type SQLiteStore struct {
	db  *sql.DB
	log logx.Logger
}

var _ reminder.Store = (*SQLiteStore)(nil)

func Open(cfg Config, log logx.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &SQLiteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const reminderCols = `id, channel_id, kind, days, time_of_day, fire_at, message, active, paused, created_by, created_at`

func (s *SQLiteStore) Create(ctx context.Context, r *reminder.Reminder) (*reminder.Reminder, error) {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(channel_id, kind, days, time_of_day, fire_at, message, active, paused, created_by, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.ChannelID, string(r.Kind), encodeDays(r.Days), r.TimeOfDay, encodeTime(r.FireAt),
		r.Message, boolInt(r.Active), boolInt(r.Paused), r.CreatedBy, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reminder.ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, f reminder.Fields) (*reminder.Reminder, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	if f.Days != nil {
		sets = append(sets, "days = ?")
		args = append(args, encodeDays(*f.Days))
	}
	if f.TimeOfDay != nil {
		sets = append(sets, "time_of_day = ?")
		args = append(args, *f.TimeOfDay)
	}
	if f.FireAt != nil {
		sets = append(sets, "fire_at = ?")
		args = append(args, encodeTime(*f.FireAt))
	}
	if f.Message != nil {
		sets = append(sets, "message = ?")
		args = append(args, *f.Message)
	}
	if f.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, boolInt(*f.Active))
	}
	if f.Paused != nil {
		sets = append(sets, "paused = ?")
		args = append(args, boolInt(*f.Paused))
	}
	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, reminder.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, id int64, channelID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET active = 0 WHERE id = ? AND channel_id = ?`, id, channelID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return reminder.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListActiveForChannel(ctx context.Context, channelID string) ([]reminder.Reminder, error) {
	return s.list(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE channel_id = ? AND active = 1 ORDER BY id`, channelID)
}

func (s *SQLiteStore) ListAllActive(ctx context.Context) ([]reminder.Reminder, error) {
	return s.list(ctx, `SELECT `+reminderCols+` FROM reminders WHERE active = 1 ORDER BY id`)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*reminder.Reminder, error) {
	var (
		r              reminder.Reminder
		kind           string
		days           string
		fireAt         sql.NullString
		active, paused int
		createdAt      string
	)
	err := row.Scan(&r.ID, &r.ChannelID, &kind, &days, &r.TimeOfDay, &fireAt,
		&r.Message, &active, &paused, &r.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	r.Kind = reminder.Kind(kind)
	r.Active = active != 0
	r.Paused = paused != 0
	if r.Days, err = decodeDays(days); err != nil {
		return nil, fmt.Errorf("reminder %d: %w", r.ID, err)
	}
	if fireAt.Valid && fireAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, fireAt.String)
		if err != nil {
			return nil, fmt.Errorf("reminder %d: bad fire_at: %w", r.ID, err)
		}
		r.FireAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = t
	}
	return &r, nil
}

func encodeDays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

func decodeDays(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad day %q", p)
		}
		days = append(days, d)
	}
	return days, nil
}

func encodeTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
