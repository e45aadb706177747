// Package router parses reminder commands from chat messages and replies
// with the outcome. Every rejection names the validation rule that failed.
package router

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const commandTimeout = 30 * time.Second

type Router struct {
	adapter kit.Adapter
	svc     *reminder.Service
	log     logx.Logger
}

func New(adapter kit.Adapter, svc *reminder.Service, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{adapter: adapter, svc: svc, log: log}
}

// Run consumes updates until ctx is done. Each command runs in its own
// goroutine; a panicking handler is recovered and answered with a generic
// failure so the poll loop never dies.
func (r *Router) Run(ctx context.Context, in <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-in:
			if !ok {
				return nil
			}
			if up.Message == nil {
				continue
			}
			msg := *up.Message
			go r.dispatch(ctx, msg)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, msg kit.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command handler",
				logx.String("text", msg.Text), logx.Any("panic", rec),
				logx.Stack(string(debug.Stack())))
			r.reply(ctx, msg, "❌ Something went wrong, try again.")
		}
	}()

	name, rest := splitCommand(msg.Text)
	if name == "" {
		return
	}
	h, ok := r.commands()[name]
	if !ok {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	reply, err := h(cctx, msg, rest)
	if err != nil {
		if vErr, isVal := err.(*reminder.ValidationError); isVal {
			r.reply(cctx, msg, "❌ "+esc(vErr.Reason))
			return
		}
		r.log.Error("command failed", logx.String("command", name), logx.Err(err))
		r.reply(cctx, msg, "❌ Something went wrong, try again.")
		return
	}
	if reply != "" {
		r.reply(cctx, msg, reply)
	}
}

func (r *Router) reply(ctx context.Context, msg kit.Message, text string) {
	err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, text,
		&kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
	}
}

// splitCommand extracts the command name (lowercased, "@botname" suffix
// stripped) and the remainder of the line.
func splitCommand(text string) (name, rest string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, tail, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(tail)
}
