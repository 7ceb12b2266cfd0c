// Package bridge runs one notification pass: search the inbox for
// unseen mail, decode and filter each message, notify, and hand the
// message back to the inbox as unseen when nobody could be reached.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"

	"github.com/nugget/imapnotify/internal/message"
)

// Mailbox is the subset of an IMAP session a pass needs.
type Mailbox interface {
	SearchUnseen(ctx context.Context) ([]imap.UID, error)
	FetchRaw(ctx context.Context, uid imap.UID) ([]byte, error)
	ClearSeen(ctx context.Context, uid imap.UID) error
}

// Sender delivers a record and reports whether anyone received it.
type Sender interface {
	Notify(ctx context.Context, rec message.Record) bool
}

// Summary counts what happened to each unseen message in one pass.
type Summary struct {
	RunID    uuid.UUID `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	// Unseen is the number of messages the search returned.
	Unseen   int `json:"unseen"`
	Notified int `json:"notified"`
	Skipped  int `json:"skipped"`
	Reverted int `json:"reverted"`
	Failed   int `json:"failed"`
}

// Runner executes notification passes against a mailbox.
type Runner struct {
	mbox   Mailbox
	sender Sender
	filter Filter
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates a Runner. A nil logger uses slog.Default.
func NewRunner(mbox Mailbox, sender Sender, filter Filter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		mbox:   mbox,
		sender: sender,
		filter: filter,
		logger: logger,
		now:    time.Now,
	}
}

// Run performs one pass. Messages are handled one at a time in the
// order the server listed them. Per-message failures are logged and
// counted; only a failed search or a cancelled context ends the pass
// with an error. The returned Summary is valid in both cases.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	sum := Summary{Started: r.now()}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	sum.RunID = id
	log := r.logger.With("run_id", id.String())

	uids, err := r.mbox.SearchUnseen(ctx)
	if err != nil {
		sum.Finished = r.now()
		return sum, fmt.Errorf("search unseen: %w", err)
	}
	sum.Unseen = len(uids)
	log.Debug("unseen messages found", "count", len(uids))

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			log.Info("pass interrupted", "remaining", sum.Unseen-sum.handled())
			sum.Finished = r.now()
			return sum, err
		}

		// UID 0 is never assigned by a server; treat it as an empty
		// search token.
		if uid == 0 {
			sum.Unseen--
			continue
		}

		r.handle(ctx, log, uid, &sum)
	}

	if err := ctx.Err(); err != nil {
		log.Info("pass interrupted", "remaining", sum.Unseen-sum.handled())
		sum.Finished = r.now()
		return sum, err
	}

	sum.Finished = r.now()
	log.Info("pass complete",
		"unseen", sum.Unseen,
		"notified", sum.Notified,
		"skipped", sum.Skipped,
		"reverted", sum.Reverted,
		"failed", sum.Failed,
		"elapsed", sum.Finished.Sub(sum.Started).Round(time.Millisecond),
	)
	return sum, nil
}

// handle moves a single message through fetch, decode, filter, and
// notify, recording the outcome in sum.
func (r *Runner) handle(ctx context.Context, log *slog.Logger, uid imap.UID, sum *Summary) {
	log = log.With("uid", uint32(uid))

	raw, err := r.mbox.FetchRaw(ctx, uid)
	if err != nil {
		log.Warn("fetch failed", "error", err)
		sum.Failed++
		return
	}

	rec := message.Parse(raw)

	if !r.filter.Match(rec) {
		log.Debug("message filtered out", "to", rec.To, "cc", rec.Cc, "from", rec.From)
		sum.Skipped++
		return
	}

	if r.sender.Notify(ctx, rec) {
		log.Info("notification sent", "subject", rec.Subject)
		sum.Notified++
		return
	}

	// Fetching set \Seen; undo it so the next pass tries again. A
	// shutdown signal that aborted the send must not abort the revert.
	sum.Reverted++
	if err := r.mbox.ClearSeen(context.WithoutCancel(ctx), uid); err != nil {
		log.Error("failed to restore unseen flag", "error", err)
		return
	}
	log.Warn("no recipient reached, message left unseen", "subject", rec.Subject)
}

func (s Summary) handled() int {
	return s.Notified + s.Skipped + s.Reverted + s.Failed
}
