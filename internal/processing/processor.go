// Package processing prepares email text for the mirror: reply and signature
// stripping, keyword extraction and document IDs.
package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	urlRegex   = regexp.MustCompile(`https?://[^\s]+`)
	emailAddr  = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	quotedLine = regexp.MustCompile(`(?m)^>.*$`)
	word       = regexp.MustCompile(`\p{L}[\p{L}\p{N}]*(?:['’]\p{L}+)?`)
	signOff    = regexp.MustCompile(`(?i)^(best( regards)?|kind regards|regards|thanks|thank you|cheers|br)[,.!]?$`)
)

// signOffWindow is how close to the end of a body a sign-off line must be to
// start the signature.
const signOffWindow = 4

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "have": {}, "will": {}, "are": {}, "was": {}, "you": {},
	"your": {}, "our": {}, "not": {}, "but": {}, "can": {}, "all": {},
	"thanks": {}, "regards": {}, "best": {}, "hi": {}, "hello": {}, "dear": {},
	"just": {}, "also": {}, "please": {}, "would": {}, "could": {}, "should": {},
	"there": {}, "their": {}, "what": {}, "when": {}, "about": {}, "been": {},
	"we're": {}, "i'll": {}, "let's": {}, "team": {},
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// StripSignature cuts the body at a "--" signature delimiter, or at a
// sign-off line such as "Best regards," near the end of the body.
func StripSignature(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if t := strings.TrimRight(line, " \r"); t == "--" {
			return strings.Join(lines[:i], "\n")
		}
	}

	last := len(lines) - 1
	for last >= 0 && strings.TrimSpace(lines[last]) == "" {
		last--
	}
	for i := last; i >= 0 && last-i < signOffWindow; i-- {
		if signOff.MatchString(strings.TrimSpace(lines[i])) {
			return strings.Join(lines[:i], "\n")
		}
	}
	return body
}

// CleanText drops the signature, quoted reply lines, URLs and email addresses,
// and decodes HTML entities.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	out := StripSignature(input)
	out = quotedLine.ReplaceAllString(out, " ")
	out = html.UnescapeString(out)
	out = RemoveURLs(out)
	out = emailAddr.ReplaceAllString(out, " ")
	return strings.Join(strings.Fields(out), " ")
}

// ExtractKeywords returns the most frequent words of an email that are at
// least minLen letters long and not stop-words. Ties are broken alphabetically.
func ExtractKeywords(text string, limit, minLen int) []string {
	freq := make(map[string]int)
	for _, token := range word.FindAllString(strings.ToLower(CleanText(text)), -1) {
		token = strings.ReplaceAll(token, "’", "'")
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}
	return top(freq, limit)
}

// MergeKeywords ranks keywords across the emails of a thread by how many
// emails mention them.
func MergeKeywords(lists [][]string, limit int) []string {
	freq := make(map[string]int)
	for _, list := range lists {
		for _, kw := range list {
			freq[kw]++
		}
	}
	return top(freq, limit)
}

func top(freq map[string]int, limit int) []string {
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] == freq[words[j]] {
			return words[i] < words[j]
		}
		return freq[words[i]] > freq[words[j]]
	})

	if limit > 0 && limit < len(words) {
		words = words[:limit]
	}
	return words
}

// BuildDocumentID derives a stable ID for the email at position in originFile
// within a run.
func BuildDocumentID(runID, originFile string, position int) string {
	s := sha1.Sum([]byte(runID + "|" + originFile + "|" + strconv.Itoa(position)))
	return hex.EncodeToString(s[:])
}
