package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
)

type handlerFunc func(ctx context.Context, msg kit.Message, rest string) (string, error)

func (r *Router) commands() map[string]handlerFunc {
	return map[string]handlerFunc{
		"addreminder":    r.cmdAddReminder,
		"remindonce":     r.cmdRemindOnce,
		"editreminder":   r.cmdEditReminder,
		"pausereminder":  r.cmdPauseReminder,
		"resumereminder": r.cmdResumeReminder,
		"delreminder":    r.cmdDeleteReminder,
		"reminders":      r.cmdListReminders,
		"reminderstatus": r.cmdStatus,
		"reminderhelp":   r.cmdHelp,
	}
}

func channelID(msg kit.Message) string { return strconv.FormatInt(msg.ChatID, 10) }

func author(msg kit.Message) string {
	if msg.FromUsername != "" {
		return msg.FromUsername
	}
	return strconv.FormatInt(msg.FromID, 10)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, &reminder.ValidationError{Reason: "id must be a number"}
	}
	return id, nil
}

// /addreminder <days> <time> <message>
// e.g. /addreminder 1,2,3,4,5 09:00 Standup in 15 minutes
func (r *Router) cmdAddReminder(ctx context.Context, msg kit.Message, rest string) (string, error) {
	parts := strings.SplitN(rest, " ", 3)
	if len(parts) < 3 {
		return usageAdd, nil
	}
	days, err := reminder.ParseDays(parts[0])
	if err != nil {
		return "", &reminder.ValidationError{Reason: "days must be numbers 0-6 (0=Sunday), comma-separated"}
	}
	rem, err := r.svc.CreateRecurring(ctx, channelID(msg), days, parts[1], parts[2], author(msg))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ %s\n📅 %s\n⏰ %s\n💬 %s\n🆔 %s",
		b("Reminder added!"),
		esc(reminder.DaysToNames(rem.Days)), esc(rem.TimeOfDay),
		esc(reminder.TruncateMessage(rem.Message, 100)),
		code(strconv.FormatInt(rem.ID, 10))), nil
}

// /remindonce <date> <time> <message>
// e.g. /remindonce 2024-12-25 09:00 Merry Christmas!
func (r *Router) cmdRemindOnce(ctx context.Context, msg kit.Message, rest string) (string, error) {
	parts := strings.SplitN(rest, " ", 3)
	if len(parts) < 3 {
		return usageOnce, nil
	}
	rem, err := r.svc.CreateOneShot(ctx, channelID(msg), parts[0], parts[1], parts[2], author(msg))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ %s\n📅 %s\n💬 %s\n🆔 %s\n\nIt retires itself after firing.",
		b("One-shot reminder added!"),
		esc(reminder.FormatDateTime(rem.FireAt.In(r.svc.Location()))),
		esc(reminder.TruncateMessage(rem.Message, 100)),
		code(strconv.FormatInt(rem.ID, 10))), nil
}

// /editreminder <id> <field> <value>
func (r *Router) cmdEditReminder(ctx context.Context, msg kit.Message, rest string) (string, error) {
	parts := strings.SplitN(rest, " ", 3)
	if len(parts) < 3 {
		return usageEdit, nil
	}
	id, err := parseID(parts[0])
	if err != nil {
		return "", err
	}
	rem, err := r.svc.Edit(ctx, channelID(msg), id, parts[1], parts[2])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ %s\nNow: %s", b(fmt.Sprintf("Reminder %d updated!", id)), esc(reminder.Describe(rem, r.svc.Location()))), nil
}

func (r *Router) cmdPauseReminder(ctx context.Context, msg kit.Message, rest string) (string, error) {
	if rest == "" {
		return "Usage: /pausereminder [id]", nil
	}
	id, err := parseID(rest)
	if err != nil {
		return "", err
	}
	if err := r.svc.Pause(ctx, channelID(msg), id); err != nil {
		return "", err
	}
	return fmt.Sprintf("⏸️ Reminder %s paused. Use /resumereminder %d to continue.", code(strconv.FormatInt(id, 10)), id), nil
}

func (r *Router) cmdResumeReminder(ctx context.Context, msg kit.Message, rest string) (string, error) {
	if rest == "" {
		return "Usage: /resumereminder [id]", nil
	}
	id, err := parseID(rest)
	if err != nil {
		return "", err
	}
	if err := r.svc.Resume(ctx, channelID(msg), id); err != nil {
		return "", err
	}
	return fmt.Sprintf("▶️ Reminder %s is running again.", code(strconv.FormatInt(id, 10))), nil
}

func (r *Router) cmdDeleteReminder(ctx context.Context, msg kit.Message, rest string) (string, error) {
	if rest == "" {
		return "Usage: /delreminder [id]", nil
	}
	id, err := parseID(rest)
	if err != nil {
		return "", err
	}
	if err := r.svc.Delete(ctx, channelID(msg), id); err != nil {
		return "", err
	}
	return fmt.Sprintf("🗑️ Reminder %s deleted.", code(strconv.FormatInt(id, 10))), nil
}

func (r *Router) cmdListReminders(ctx context.Context, msg kit.Message, _ string) (string, error) {
	items, err := r.svc.List(ctx, channelID(msg))
	if err != nil {
		return "", fmt.Errorf("list reminders: %w", err)
	}
	if len(items) == 0 {
		return "📭 No active reminders in this chat.", nil
	}

	var sb strings.Builder
	sb.WriteString(b("📋 Active reminders") + "\n\n")
	for i := range items {
		rem := &items[i]
		icon := "✅"
		suffix := ""
		if rem.Paused {
			icon = "⏸️"
			suffix = " (paused)"
		}
		sb.WriteString(fmt.Sprintf("%s %s%s — %s\n", icon, code(strconv.FormatInt(rem.ID, 10)), suffix, esc(reminder.Describe(rem, r.svc.Location()))))
		sb.WriteString("   💬 " + esc(reminder.TruncateMessage(rem.Message, 50)) + "\n")
	}
	sb.WriteString(fmt.Sprintf("\nTotal: %d", len(items)))
	return sb.String(), nil
}

func (r *Router) cmdStatus(_ context.Context, _ kit.Message, _ string) (string, error) {
	st := r.svc.Status()
	return fmt.Sprintf("⏱️ %d timer(s) armed, timezone %s, now %s",
		st.Armed, esc(st.Timezone), esc(st.Now.Format("2006-01-02 15:04"))), nil
}

func (r *Router) cmdHelp(_ context.Context, _ kit.Message, _ string) (string, error) {
	return strings.Join([]string{
		b("Reminder commands"),
		"",
		code("/addreminder [days] [time] [message]") + " — weekly reminder (days 0-6, 0=Sunday)",
		code("/remindonce [date] [time] [message]") + " — fires once, then retires",
		code("/editreminder [id] [field] [value]") + " — field: time, message, days, date",
		code("/pausereminder [id]") + " / " + code("/resumereminder [id]"),
		code("/delreminder [id]"),
		code("/reminders") + " — list this chat's reminders",
		code("/reminderstatus") + " — armed timer count",
	}, "\n"), nil
}

const (
	usageAdd = "Usage: /addreminder [days] [time] [message]\nExample: <code>/addreminder 1,2,3,4,5 09:00 Good morning!</code>"

	usageOnce = "Usage: /remindonce [date] [time] [message]\nExample: <code>/remindonce 2024-12-25 09:00 Merry Christmas!</code>\nDates: YYYY-MM-DD or DD-MM-YYYY"

	usageEdit = "Usage: /editreminder [id] [field] [value]\nFields: time, message, days (recurring), date (one-shot)\nExample: <code>/editreminder 5 time 10:30</code>"
)
