package message

import (
	"mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
)

const encodedWordPattern = `=\?[^?\s]+\?[bBqQ]\?[^?\s]*\?=`

var (
	encodedWord = regexp.MustCompile(encodedWordPattern)

	// encodedRun matches one encoded word, or several separated only by
	// linear whitespace. Whitespace inside a run is not displayed.
	encodedRun = regexp.MustCompile(encodedWordPattern + `(?:[ \t\r\n]+` + encodedWordPattern + `)*`)
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader turns a raw header value into display text. Encoded
// words (RFC 2047) are decoded through their declared charset; plain
// text is taken as UTF-8. The decoded pieces are trimmed and joined
// with a single space. Invalid byte sequences are dropped and an
// encoded word in an unsupported charset is kept as written.
func DecodeHeader(raw string) string {
	if raw == "" {
		return ""
	}

	var parts []string
	add := func(s string) {
		s = strings.TrimSpace(strings.ToValidUTF8(s, ""))
		if s != "" {
			parts = append(parts, s)
		}
	}

	pos := 0
	for _, loc := range encodedRun.FindAllStringIndex(raw, -1) {
		add(raw[pos:loc[0]])
		add(decodeRun(raw[loc[0]:loc[1]]))
		pos = loc[1]
	}
	add(raw[pos:])

	return strings.Join(parts, " ")
}

// decodeRun decodes each encoded word of a run and concatenates them.
func decodeRun(run string) string {
	var sb strings.Builder
	for _, word := range encodedWord.FindAllString(run, -1) {
		decoded, err := wordDecoder.Decode(word)
		if err != nil {
			sb.WriteString(word)
			continue
		}
		sb.WriteString(decoded)
	}
	return sb.String()
}
