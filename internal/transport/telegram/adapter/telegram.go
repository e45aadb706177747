// Package adapter connects the bot to Telegram via long polling.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec caps outgoing messages. Telegram starts throttling bots
	// around 30 msg/s globally; the default here is 20.
	RatePerSec int
}

// Adapter is the Telegram transport. Besides the kit.Adapter surface used
// by the command router, it implements reminder.Channel for the fire path:
// Resolve maps a channel id to the chat and its mentionable members, Send
// delivers the banner with mention links appended.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- kit.Update)

	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	done    chan struct{}

	// droppedUpdates counts updates dropped because the consumer was
	// slower than the poll loop; logged on Stop to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		up := kit.Update{
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
			},
		}
		a.sendUpdate(up)
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		a.bot.Start()
	}()
	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()

	a.log.Info("telegram adapter started", logx.String("bot", a.bot.Me.Username))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	a.bot.Stop()
	select {
	case <-a.done:
	case <-ctx.Done():
	}
	if n := atomic.LoadUint64(&a.droppedUpdates); n > 0 {
		a.log.Warn("updates dropped (slow consumer)", logx.Any("count", n))
	}
	a.log.Info("telegram adapter stopped")
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	sendOpt := &tele.SendOptions{}
	if opt != nil {
		sendOpt.ParseMode = opt.ParseMode
		sendOpt.DisableWebPagePreview = opt.DisablePreview
	}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), text, sendOpt)
	return err
}

// ---- reminder.Channel ----

// Resolve looks up the chat behind channelID and returns its mentionable
// members. The Bot API exposes only administrators of a group, not full
// membership, so those are the mention targets.
func (a *Adapter) Resolve(ctx context.Context, channelID string) (*reminder.ChatInfo, error) {
	chatID, err := parseChannelID(channelID)
	if err != nil {
		return nil, reminder.ErrChatNotFound
	}
	chat, err := a.bot.ChatByID(chatID)
	if err != nil {
		if errors.Is(err, tele.ErrChatNotFound) {
			return nil, reminder.ErrChatNotFound
		}
		return nil, fmt.Errorf("resolve chat %s: %w", channelID, err)
	}

	info := &reminder.ChatInfo{ID: channelID, Title: chat.Title}
	admins, err := a.bot.AdminsOf(chat)
	if err != nil {
		// Private chats have no admin list; deliver without mentions.
		a.log.Debug("admin list unavailable", logx.String("chat", channelID), logx.Err(err))
		return info, nil
	}
	for _, m := range admins {
		if m.User == nil || m.User.IsBot {
			continue
		}
		name := m.User.FirstName
		if name == "" {
			name = m.User.Username
		}
		info.Members = append(info.Members, reminder.Member{ID: m.User.ID, Name: name})
	}
	return info, nil
}

// Send delivers a reminder banner. The text is escaped for HTML parse
// mode and mention links are appended so every member gets pinged.
func (a *Adapter) Send(ctx context.Context, channelID string, text string, mentions []reminder.Member) error {
	chatID, err := parseChannelID(channelID)
	if err != nil {
		return reminder.ErrChatNotFound
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	body := escapeHTML(text)
	if len(mentions) > 0 {
		links := make([]string, 0, len(mentions))
		for _, m := range mentions {
			links = append(links, mentionLink(m))
		}
		body += "\n\n" + strings.Join(links, " ")
	}
	_, err = a.bot.Send(tele.ChatID(chatID), body, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if errors.Is(err, tele.ErrChatNotFound) {
		return reminder.ErrChatNotFound
	}
	return err
}

func parseChannelID(channelID string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(channelID), 10, 64)
}

func mentionLink(m reminder.Member) string {
	name := m.Name
	if name == "" {
		name = strconv.FormatInt(m.ID, 10)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, m.ID, escapeHTML(name))
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
