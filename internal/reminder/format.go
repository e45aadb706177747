package reminder

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const fireFrame = "🔔━━━━━━━━━━━━━━━━━━🔔"

// BuildFireMessage renders the delivery banner for a reminder. The
// schedule line shows the clock time for recurring reminders and the
// absolute timestamp for one-shots.
func BuildFireMessage(r *Reminder, loc *time.Location) string {
	when := r.TimeOfDay
	if r.IsOneShot() {
		when = FormatDateTime(r.FireAt.In(loc))
	}
	var b strings.Builder
	b.WriteString(fireFrame + "\n")
	b.WriteString("⚠️ REMINDER ⚠️\n")
	b.WriteString(fireFrame + "\n\n")
	b.WriteString(r.Message)
	b.WriteString("\n\n⏰ ")
	b.WriteString(when)
	b.WriteString("\n" + fireFrame)
	return b.String()
}

// FormatDateTime renders an absolute timestamp for display.
func FormatDateTime(t time.Time) string {
	return t.Format("02 Jan 2006, 15:04")
}

// TruncateMessage shortens a message for list previews. The cut is on a
// rune boundary; slicing bytes could split a multi-byte rune and produce
// invalid UTF-8, which Telegram rejects.
func TruncateMessage(msg string, maxLen int) string {
	if utf8.RuneCountInString(msg) <= maxLen {
		return msg
	}
	return string([]rune(msg)[:maxLen]) + "..."
}

// Describe renders a one-line schedule summary, used in command replies.
func Describe(r *Reminder, loc *time.Location) string {
	if r.IsOneShot() {
		return fmt.Sprintf("once at %s", FormatDateTime(r.FireAt.In(loc)))
	}
	return fmt.Sprintf("%s at %s", DaysToNames(r.Days), r.TimeOfDay)
}
