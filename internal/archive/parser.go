// Package archive splits plain-text email archive files into individual messages.
//
// Archives carry no explicit delimiter. A file whose raw content starts with
// "From" is split on every blank line followed by "From: "; any other file is
// split on every blank line followed by "Subject: ". The split is applied to
// the whole file, bodies included, so a body containing that sequence starts
// a new message.
package archive

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmskss/portfolio-health-report/internal/models"
)

// Leading header fields used as message boundaries.
const (
	FieldFrom    = "From"
	FieldSubject = "Subject"
)

var (
	// ErrMissingHeader is wrapped by every HeaderError.
	ErrMissingHeader = errors.New("missing required header")
	// ErrEmptyArchive is returned for content that is blank after trimming.
	ErrEmptyArchive = errors.New("archive is empty")
)

var (
	fromLine    = regexp.MustCompile(`(?m)^From: (.+)$`)
	toLine      = regexp.MustCompile(`(?m)^To: (.+)$`)
	dateLine    = regexp.MustCompile(`(?m)^Date: (.+)$`)
	subjectLine = regexp.MustCompile(`(?m)^Subject: (.+)$`)
)

// HeaderError reports a message that lacks one of the four required headers.
type HeaderError struct {
	Index  int
	Header string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("message %d: missing %q header", e.Index, e.Header)
}

func (e *HeaderError) Unwrap() error {
	return ErrMissingHeader
}

// DetectLeadingField returns the header name that starts every message of the
// file. The check runs on the untrimmed content.
func DetectLeadingField(content string) string {
	if strings.HasPrefix(content, FieldFrom) {
		return FieldFrom
	}
	return FieldSubject
}

// Parse splits content into messages in the order they appear and tags each
// with originFile. Any message missing a header fails the whole file.
func Parse(content, originFile string) ([]models.ParsedEmail, error) {
	field := DetectLeadingField(content)

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: %w", originFile, ErrEmptyArchive)
	}

	prefix := field + ": "
	segments := strings.Split(trimmed, "\n\n"+prefix)

	emails := make([]models.ParsedEmail, 0, len(segments))
	for i, segment := range segments {
		if i > 0 {
			segment = prefix + segment
		}

		email, missing := parseMessage(segment)
		if missing != "" {
			return nil, fmt.Errorf("%s: %w", originFile, &HeaderError{Index: i, Header: missing})
		}
		email.OriginFile = originFile
		emails = append(emails, email)
	}

	return emails, nil
}

// parseMessage extracts headers and body from a single message. It returns the
// name of the first missing header, or "" on success.
func parseMessage(msg string) (models.ParsedEmail, string) {
	var email models.ParsedEmail

	headers := []struct {
		name string
		re   *regexp.Regexp
		dst  *string
	}{
		{"From", fromLine, &email.From},
		{"To", toLine, &email.To},
		{"Date", dateLine, &email.Date},
		{"Subject", subjectLine, &email.Subject},
	}

	subjectEnd := 0
	for _, h := range headers {
		loc := h.re.FindStringSubmatchIndex(msg)
		if loc == nil {
			return models.ParsedEmail{}, h.name
		}
		*h.dst = msg[loc[2]:loc[3]]
		if h.re == subjectLine {
			subjectEnd = loc[1]
		}
	}

	email.Body = extractBody(msg, subjectEnd)
	return email, ""
}

// extractBody returns the text after the first blank line that follows the
// Subject line. Without a blank line it falls back to everything after the
// Subject line's own newline. A message that ends on its Subject line has an
// empty body.
func extractBody(msg string, subjectEnd int) string {
	rest := msg[subjectEnd:]
	if idx := strings.Index(rest, "\n\n"); idx >= 0 {
		return rest[idx+2:]
	}
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		return rest[idx+1:]
	}
	return ""
}
