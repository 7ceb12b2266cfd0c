package bridge

import (
	"strings"

	"github.com/nugget/imapnotify/internal/config"
	"github.com/nugget/imapnotify/internal/message"
)

// Filter decides which messages produce a notification. Patterns are
// literal substrings: "*@*" matches only the text "*@*".
type Filter struct {
	// From patterns suppress a notification when found in the
	// (HTML-escaped) sender.
	From []string

	// To patterns enable a notification when found in To or Cc.
	To []string
}

// NewFilter copies the configured patterns.
func NewFilter(cfg config.FilterConfig) Filter {
	return Filter{
		From: append([]string(nil), cfg.From...),
		To:   append([]string(nil), cfg.To...),
	}
}

// Match reports whether rec is addressed to a watched recipient and
// was not sent by an excluded sender.
func (f Filter) Match(rec message.Record) bool {
	return f.addressed(rec) && !containsAny(rec.From, f.From)
}

func (f Filter) addressed(rec message.Record) bool {
	return containsAny(rec.To, f.To) || containsAny(rec.Cc, f.To)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
