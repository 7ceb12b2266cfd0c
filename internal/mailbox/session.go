// Package mailbox is a thin IMAP session over go-imap/v2 covering the
// commands a single notification pass needs: search unseen, fetch,
// and clear the \Seen flag.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nugget/imapnotify/internal/config"
)

// Inbox is the only mailbox a session selects.
const Inbox = "INBOX"

// maxRawMessageSize caps how much of a message body FetchRaw buffers.
// Only the header block is decoded, so oversized attachments are
// truncated rather than held in memory.
const maxRawMessageSize = 25 << 20

// Session is an authenticated IMAP connection with INBOX selected. It
// is not safe for concurrent use.
type Session struct {
	client *imapclient.Client
	server string
	logger *slog.Logger
}

// Dial connects to the configured server, logs in, and selects INBOX.
// Errors wrap ErrConnection, ErrAuthentication, or ErrUnknown.
func Dial(ctx context.Context, cfg config.MailConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	addr := serverAddr(cfg)
	useTLS := cfg.UseTLS()
	logger.Debug("connecting to IMAP server", "server", cfg.Server, "port", cfg.Port, "tls", useTLS)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", classifyNetwork(err), addr, err)
	}

	if useTLS {
		tlsConn := tls.Client(conn, tlsConfig(cfg))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: tls handshake with %s: %w", ErrUnknown, addr, err)
		}
		conn = tlsConn
	}

	client := imapclient.New(conn, &imapclient.Options{})

	if err := client.Login(cfg.Login, cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: login as %s: %w", classifyLogin(err), cfg.Login, err)
	}

	if _, err := client.Select(Inbox, nil).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: select %s: %w", ErrUnknown, Inbox, err)
	}

	logger.Info("IMAP connected", "server", cfg.Server, "user", cfg.Login)

	return &Session{
		client: client,
		server: cfg.Server,
		logger: logger,
	}, nil
}

func serverAddr(cfg config.MailConfig) string {
	return net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))
}

func tlsConfig(cfg config.MailConfig) *tls.Config {
	return &tls.Config{
		ServerName: cfg.Server,
		MinVersion: tls.VersionTLS12,
	}
}

// SearchUnseen returns the UIDs of every INBOX message without \Seen,
// in the order the server reports them.
func (s *Session) SearchUnseen(ctx context.Context) ([]imap.UID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}

	uids := data.AllUIDs()
	s.logger.Debug("unseen search complete", "count", len(uids))
	return uids, nil
}

// FetchRaw returns the full RFC 822 message. The fetch does not use
// PEEK, so the server marks the message \Seen as a side effect.
func (s *Session) FetchRaw(ctx context.Context, uid imap.UID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(uid)

	fetchCmd := s.client.Fetch(uidSet, &imap.FetchOptions{
		UID: true,
		BodySection: []*imap.FetchItemBodySection{
			{Peek: false},
		},
	})

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, fmt.Errorf("fetch UID %d: %w", uid, err)
		}
		return nil, fmt.Errorf("fetch UID %d: %w", uid, ErrNoMessage)
	}

	var raw []byte
	var readErr error
	for {
		item := msg.Next()
		if item == nil {
			break
		}

		data, ok := item.(imapclient.FetchItemDataBodySection)
		if !ok || data.Literal == nil {
			continue
		}
		// The literal streams from the connection and must be read
		// before the next item.
		raw, readErr = io.ReadAll(io.LimitReader(data.Literal, maxRawMessageSize))
		_, _ = io.Copy(io.Discard, data.Literal)
	}

	// Drain any further messages so the command completes cleanly.
	for fetchCmd.Next() != nil {
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch UID %d: %w", uid, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read UID %d body: %w", uid, readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("fetch UID %d: %w", uid, ErrNoMessage)
	}

	s.logger.Log(ctx, config.LevelTrace, "fetched message", "uid", uid, "bytes", len(raw))
	return raw, nil
}

// ClearSeen removes \Seen from the message so the next run picks it
// up again.
func (s *Session) ClearSeen(ctx context.Context, uid imap.UID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(uid)

	storeCmd := s.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsDel,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("clear seen on UID %d: %w", uid, err)
	}
	return nil
}

// Close logs out and closes the connection. A failed LOGOUT still
// closes the socket.
func (s *Session) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("IMAP logout failed", "server", s.server, "error", err)
	}
	return s.client.Close()
}
