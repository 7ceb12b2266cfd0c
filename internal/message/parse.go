// Package message extracts the display headers of a raw RFC 822
// message for notification text.
package message

import (
	"bufio"
	"strings"

	"github.com/emersion/go-message/textproto"
)

// Record holds the decoded headers of one message. Missing headers are
// empty strings. From is HTML-escaped; the other fields are not.
type Record struct {
	From       string
	To         string
	Cc         string
	References string
	Subject    string
	Date       string
}

// htmlEscaper produces the same entities as Python's html.escape,
// which differ from html.EscapeString for quotes.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// EscapeHTML escapes & < > " and ' for inclusion in HTML text.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Parse reads the header block of raw and decodes the fields a
// notification needs. It never fails: undecodable bytes are dropped and
// a header block that textproto rejects is read line by line instead.
func Parse(raw []byte) Record {
	text := strings.ToValidUTF8(string(raw), "")

	var get func(string) string
	if h, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(text))); err == nil {
		get = h.Get
	} else {
		get = lenientHeader(text)
	}

	return Record{
		From:       EscapeHTML(DecodeHeader(get("From"))),
		To:         DecodeHeader(get("To")),
		Cc:         DecodeHeader(get("Cc")),
		References: DecodeHeader(get("References")),
		Subject:    DecodeHeader(get("Subject")),
		Date:       DecodeHeader(get("Date")),
	}
}

// lenientHeader scans header lines up to the first blank line. Folded
// lines are joined to the field above; a line that is neither a field
// nor a continuation ends the header block.
func lenientHeader(text string) func(string) string {
	fields := map[string]string{}
	var current string

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}

		if line[0] == ' ' || line[0] == '\t' {
			if current != "" {
				fields[current] += " " + strings.TrimLeft(line, " \t")
			}
			continue
		}

		i := strings.Index(line, ":")
		if i <= 0 {
			break
		}

		key := strings.ToLower(strings.TrimSpace(line[:i]))
		if _, seen := fields[key]; seen {
			// The first occurrence wins.
			current = ""
			continue
		}
		fields[key] = strings.TrimSpace(line[i+1:])
		current = key
	}

	return func(name string) string {
		return fields[strings.ToLower(name)]
	}
}
