package archive_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tmskss/portfolio-health-report/internal/archive"
	"github.com/tmskss/portfolio-health-report/internal/models"
)

func TestParseSingleMessage(t *testing.T) {
	content := "From: alice@example.com\nTo: bob@example.com\nDate: Mon, 3 Jun 2024 09:00:00 +0000\nSubject: Kickoff\n\nHi Bob,\nsee you there."

	emails, err := archive.Parse(content, "thread1.txt")
	require.NoError(t, err)
	require.Len(t, emails, 1)

	require.Equal(t, models.ParsedEmail{
		From:       "alice@example.com",
		To:         "bob@example.com",
		Date:       "Mon, 3 Jun 2024 09:00:00 +0000",
		Subject:    "Kickoff",
		OriginFile: "thread1.txt",
		Body:       "Hi Bob,\nsee you there.",
	}, emails[0])
}

func TestParseSplitsFromFormat(t *testing.T) {
	content := "From: a\nTo: b\nDate: d\nSubject: s1\n\nBody1\n\nFrom: a2\nTo: b2\nDate: d2\nSubject: s2\n\nBody2"

	emails, err := archive.Parse(content, "f.txt")
	require.NoError(t, err)
	require.Len(t, emails, 2)

	require.Equal(t, "a", emails[0].From)
	require.Equal(t, "s1", emails[0].Subject)
	require.Equal(t, "Body1", emails[0].Body)

	require.Equal(t, "a2", emails[1].From)
	require.Equal(t, "b2", emails[1].To)
	require.Equal(t, "d2", emails[1].Date)
	require.Equal(t, "s2", emails[1].Subject)
	require.Equal(t, "Body2", emails[1].Body)

	for _, e := range emails {
		require.Equal(t, "f.txt", e.OriginFile)
	}
}

func TestParseSubjectFormat(t *testing.T) {
	content := "Subject: Budget\nFrom: carol\nTo: dave\nDate: 2024-01-01\n\nFirst.\n\nSubject: Re: Budget\nFrom: dave\nTo: carol\nDate: 2024-01-02\n\nSecond."

	require.Equal(t, archive.FieldSubject, archive.DetectLeadingField(content))

	emails, err := archive.Parse(content, "budget.txt")
	require.NoError(t, err)
	require.Len(t, emails, 2)
	require.Equal(t, "Budget", emails[0].Subject)
	require.Equal(t, "First.", emails[0].Body)
	require.Equal(t, "Re: Budget", emails[1].Subject)
	require.Equal(t, "dave", emails[1].From)
	require.Equal(t, "Second.", emails[1].Body)
}

func TestParseSubjectFormatWithoutFromFails(t *testing.T) {
	// Format detection is independent of header presence; the From header is
	// still required for every message.
	content := "Subject: s\nTo: b\nDate: d\n\nbody"

	_, err := archive.Parse(content, "x.txt")
	require.ErrorIs(t, err, archive.ErrMissingHeader)
}

func TestDetectLeadingField(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "from", content: "From: a\n", want: archive.FieldFrom},
		{name: "subject", content: "Subject: a\n", want: archive.FieldSubject},
		{name: "leading whitespace", content: "\nFrom: a\n", want: archive.FieldSubject},
		{name: "empty", content: "", want: archive.FieldSubject},
		{name: "from without colon", content: "Fromage\n", want: archive.FieldFrom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, archive.DetectLeadingField(tt.content))
		})
	}
}

func TestParseMissingDateIsFatal(t *testing.T) {
	content := "From: a\nTo: b\nDate: d\nSubject: s1\n\nok\n\nFrom: a2\nTo: b2\nSubject: s2\n\nno date here"

	emails, err := archive.Parse(content, "broken.txt")
	require.Nil(t, emails)
	require.Error(t, err)
	require.True(t, errors.Is(err, archive.ErrMissingHeader))

	var headerErr *archive.HeaderError
	require.True(t, errors.As(err, &headerErr))
	require.Equal(t, 1, headerErr.Index)
	require.Equal(t, "Date", headerErr.Header)
	require.Contains(t, err.Error(), "broken.txt")
}

func TestParseBodyFallbackWithoutBlankLine(t *testing.T) {
	content := "From: a\nTo: b\nDate: d\nSubject: s\nStraight into the body\nsecond line"

	emails, err := archive.Parse(content, "f.txt")
	require.NoError(t, err)
	require.Len(t, emails, 1)
	require.Equal(t, "Straight into the body\nsecond line", emails[0].Body)
}

func TestParseBodyFallbackKeepsHeaderLikeLines(t *testing.T) {
	content := "Subject: s\nFrom: a\nTo: b\nDate: d"

	emails, err := archive.Parse(content, "f.txt")
	require.NoError(t, err)
	require.Len(t, emails, 1)
	require.Equal(t, "From: a\nTo: b\nDate: d", emails[0].Body)
}

func TestParseBodySearchStartsAfterSubject(t *testing.T) {
	// A blank line above the Subject line does not end the headers.
	content := "From: a\nTo: b\nDate: d\n\nSubject: s\nCc: e\n\nbody"

	emails, err := archive.Parse(content, "f.txt")
	require.NoError(t, err)
	require.Equal(t, "body", emails[0].Body)
}

func TestParseBodyEmptyWhenMessageEndsOnSubject(t *testing.T) {
	content := "From: a\nTo: b\nDate: d\nSubject: s"

	emails, err := archive.Parse(content, "f.txt")
	require.NoError(t, err)
	require.Equal(t, "", emails[0].Body)
}

func TestParsePreservesHeaderWhitespace(t *testing.T) {
	content := "From:  Alice  <a@x>  \nTo: b\nDate: d\nSubject: \tTabbed\n\nbody"

	emails, err := archive.Parse(content, "f.txt")
	require.NoError(t, err)
	require.Equal(t, " Alice  <a@x>  ", emails[0].From)
	require.Equal(t, "\tTabbed", emails[0].Subject)
}

func TestParseHeadersAreCaseSensitive(t *testing.T) {
	content := "From: a\nto: b\nDate: d\nSubject: s\n\nbody"

	_, err := archive.Parse(content, "f.txt")
	var headerErr *archive.HeaderError
	require.ErrorAs(t, err, &headerErr)
	require.Equal(t, "To", headerErr.Header)
}

func TestParseBodyBoundaryMisfireIsPreserved(t *testing.T) {
	// A quoted message inside a body starts a new message because the split
	// sequence appears in the body text.
	content := "From: a\nTo: b\nDate: d\nSubject: s\n\nForwarding this:\n\nFrom: c\nTo: e\nDate: d2\nSubject: old\n\nquoted"

	emails, err := archive.Parse(content, "f.txt")
	require.NoError(t, err)
	require.Len(t, emails, 2)
	require.Equal(t, "Forwarding this:", emails[0].Body)
	require.Equal(t, "c", emails[1].From)
	require.Equal(t, "quoted", emails[1].Body)
}

func TestParseTrimsSurroundingWhitespace(t *testing.T) {
	content := "From: a\nTo: b\nDate: d\nSubject: s\n\nbody\n\n\n"

	emails, err := archive.Parse(content, "f.txt")
	require.NoError(t, err)
	require.Equal(t, "body", emails[0].Body)
}

func TestParseEmptyArchive(t *testing.T) {
	_, err := archive.Parse(" \n\t\n", "blank.txt")
	require.ErrorIs(t, err, archive.ErrEmptyArchive)
}

func TestParsePreservesOrder(t *testing.T) {
	content := "From: a\nTo: b\nDate: 3\nSubject: m1\n\nx\n\nFrom: a\nTo: b\nDate: 1\nSubject: m2\n\ny\n\nFrom: a\nTo: b\nDate: 2\nSubject: m3\n\nz"

	emails, err := archive.Parse(content, "f.txt")
	require.NoError(t, err)
	require.Len(t, emails, 3)
	require.Equal(t, []string{"m1", "m2", "m3"}, []string{emails[0].Subject, emails[1].Subject, emails[2].Subject})
}
