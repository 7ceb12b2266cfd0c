package mailbox

import (
	"errors"
	"net"

	"github.com/emersion/go-imap/v2"
)

// Dial failures wrap exactly one of these.
var (
	// ErrConnection means the server could not be reached: name
	// resolution failed, the host refused, or the network is down.
	ErrConnection = errors.New("mailbox: connection failed")

	// ErrAuthentication means the server rejected the login.
	ErrAuthentication = errors.New("mailbox: authentication rejected")

	// ErrUnknown covers everything else, including TLS handshake and
	// mailbox selection failures.
	ErrUnknown = errors.New("mailbox: unexpected error")
)

// ErrNoMessage is returned by FetchRaw when the server has no message
// with the requested UID.
var ErrNoMessage = errors.New("mailbox: no such message")

// classifyNetwork maps an error from the transport layer to
// ErrConnection or ErrUnknown.
func classifyNetwork(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection
	}
	return ErrUnknown
}

// classifyLogin maps an error from LOGIN. A tagged NO/BAD response is
// an authentication failure; a dropped connection is a network failure.
func classifyLogin(err error) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return ErrAuthentication
	}
	return classifyNetwork(err)
}
