// Package notify renders message records into chat text and delivers
// them through a Telegram-compatible bot sendMessage endpoint.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nugget/imapnotify/internal/config"
	"github.com/nugget/imapnotify/internal/httpkit"
	"github.com/nugget/imapnotify/internal/message"
)

// errorBodyLimit caps how much of a failed API response is logged.
const errorBodyLimit = 512

// Render formats a record as the HTML notification text. Subject and
// Date are inserted as-is.
func Render(rec message.Record) string {
	return "<b>New email!</b>\n" +
		"<code>Sender: " + rec.From + "\n" +
		"Topic: " + rec.Subject + "\n" +
		"Date: " + rec.Date + "</code>\n" +
		"#piter-ix #email"
}

// SilentHours is a set of local hours (0-23) in which notifications
// are delivered without sound.
type SilentHours map[int]struct{}

// NewSilentHours builds a set from a list of hours.
func NewSilentHours(hours []int) SilentHours {
	s := make(SilentHours, len(hours))
	for _, h := range hours {
		s[h] = struct{}{}
	}
	return s
}

// IsQuiet reports whether hour is one of the silent hours.
func IsQuiet(hour int, silent SilentHours) bool {
	_, ok := silent[hour]
	return ok
}

// Notifier sends rendered records to every configured recipient.
type Notifier struct {
	domain     string
	token      string
	recipients []config.ChatID
	silent     SilentHours
	client     *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default httpkit client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithClock replaces time.Now for quiet-hour checks.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// WithLogger sets the logger for per-recipient diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// New creates a Notifier for the given bot and recipients.
func New(bot config.BotConfig, recipients []config.Recipient, silent SilentHours, opts ...Option) *Notifier {
	n := &Notifier{
		domain: bot.Domain,
		token:  bot.Token,
		silent: silent,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, r := range recipients {
		n.recipients = append(n.recipients, r.ID)
	}
	for _, o := range opts {
		o(n)
	}
	if n.client == nil {
		clientOpts := []httpkit.ClientOption{httpkit.WithUserAgent(bot.UserAgent)}
		if bot.Timeout > 0 {
			clientOpts = append(clientOpts, httpkit.WithTimeout(bot.Timeout))
		}
		n.client = httpkit.NewClient(clientOpts...)
	}
	return n
}

// Notify sends rec to every recipient in order and reports whether at
// least one send was answered with HTTP 200. Individual failures are
// logged and do not stop delivery to the remaining recipients.
func (n *Notifier) Notify(ctx context.Context, rec message.Record) bool {
	text := Render(rec)
	quiet := IsQuiet(n.now().Hour(), n.silent)

	delivered := false
	for _, chat := range n.recipients {
		if err := n.send(ctx, chat, text, quiet); err != nil {
			n.logger.Warn("notification not delivered", "chat_id", chat, "error", err)
			continue
		}
		n.logger.Debug("notification delivered", "chat_id", chat, "quiet", quiet)
		delivered = true
	}
	return delivered
}

func (n *Notifier) send(ctx context.Context, chat config.ChatID, text string, quiet bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint(chat, text, quiet), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", httpkit.StripURL(err))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return httpkit.StripURL(err)
	}

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, errorBodyLimit)
		return fmt.Errorf("bot API returned %d: %s", resp.StatusCode, body)
	}

	httpkit.DrainAndClose(resp.Body, 64*1024)
	return nil
}

// endpoint builds the sendMessage URL for one recipient.
func (n *Notifier) endpoint(chat config.ChatID, text string, quiet bool) string {
	disable := "0"
	if quiet {
		disable = "1"
	}

	q := url.Values{}
	q.Set("chat_id", string(chat))
	q.Set("text", text)
	q.Set("disable_notification", disable)
	q.Set("parse_mode", "html")

	u := url.URL{
		Scheme:   "https",
		Host:     n.domain,
		Path:     "/bot" + n.token + "/sendMessage",
		RawQuery: q.Encode(),
	}
	return u.String()
}
