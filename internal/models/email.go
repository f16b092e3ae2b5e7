package models

import "time"

// ParsedEmail is one message extracted from an archive file.
type ParsedEmail struct {
	From       string `json:"from" yaml:"from"`
	To         string `json:"to" yaml:"to"`
	Date       string `json:"date" yaml:"date"`
	Subject    string `json:"subject" yaml:"subject"`
	OriginFile string `json:"origin_file" yaml:"origin_file"`
	Body       string `json:"body" yaml:"body"`
}

// EmailDocument is the mirrored form of a ParsedEmail stored in Elasticsearch.
type EmailDocument struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	OriginFile string    `json:"origin_file"`
	Position   int       `json:"position"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Date       string    `json:"date"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Keywords   []string  `json:"keywords,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Email converts the document back into the parser's record.
func (d EmailDocument) Email() ParsedEmail {
	return ParsedEmail{
		From:       d.From,
		To:         d.To,
		Date:       d.Date,
		Subject:    d.Subject,
		OriginFile: d.OriginFile,
		Body:       d.Body,
	}
}
