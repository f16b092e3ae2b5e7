package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tmskss/portfolio-health-report/internal/models"
)

// ErrMalformedReport marks a thread analysis response that does not match the schema.
var ErrMalformedReport = errors.New("malformed thread report")

// threadReportSchemaName is the response_format name sent with thread analysis requests.
const threadReportSchemaName = "email_thread_risk_analysis"

// threadReportSchema is the JSON schema the analysis model must answer with.
var threadReportSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "short_summary": {
      "type": "string",
      "description": "A concise summary of the main points from the email thread.",
      "minLength": 1
    },
    "project": {
      "type": "string",
      "description": "The name of the project being discussed in the email thread. This is usually mentioned in the subject of the email.",
      "minLength": 1
    },
    "unresolved_problems": {
      "type": "array",
      "description": "Problems mentioned in the thread that have not been resolved yet.",
      "items": {"type": "string", "minLength": 1}
    },
    "emerging_risks_blockers": {
      "type": "array",
      "description": "Newly identified or developing risks or blockers within the email thread.",
      "items": {"type": "string", "minLength": 1}
    },
    "issues_needing_attention": {
      "type": "array",
      "description": "Issues that need attention, ranked by priority (highest priority first).",
      "items": {
        "type": "object",
        "properties": {
          "issue": {
            "type": "string",
            "description": "Description of the issue requiring attention.",
            "minLength": 1
          },
          "priority": {
            "type": "integer",
            "description": "Rank of the issue: 1 is the highest priority, larger numbers are lower.",
            "minimum": 1
          }
        },
        "required": ["issue", "priority"],
        "additionalProperties": false
      }
    }
  },
  "required": ["short_summary", "project", "unresolved_problems", "emerging_risks_blockers", "issues_needing_attention"],
  "additionalProperties": false
}`)

type wireIssue struct {
	Issue    *string `json:"issue"`
	Priority *int    `json:"priority"`
}

type wireReport struct {
	ShortSummary           *string      `json:"short_summary"`
	Project                *string      `json:"project"`
	UnresolvedProblems     *[]string    `json:"unresolved_problems"`
	EmergingRisksBlockers  *[]string    `json:"emerging_risks_blockers"`
	IssuesNeedingAttention *[]wireIssue `json:"issues_needing_attention"`
}

// DecodeThreadReport parses and validates a thread analysis response. Unknown
// fields, missing or null required fields, empty strings and priorities below
// one are rejected with ErrMalformedReport.
func DecodeThreadReport(data []byte) (models.EmailThreadReport, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireReport
	if err := dec.Decode(&w); err != nil {
		return models.EmailThreadReport{}, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return models.EmailThreadReport{}, fmt.Errorf("%w: trailing data after report", ErrMalformedReport)
	}

	switch {
	case w.ShortSummary == nil:
		return models.EmailThreadReport{}, missingField("short_summary")
	case w.Project == nil:
		return models.EmailThreadReport{}, missingField("project")
	case w.UnresolvedProblems == nil:
		return models.EmailThreadReport{}, missingField("unresolved_problems")
	case w.EmergingRisksBlockers == nil:
		return models.EmailThreadReport{}, missingField("emerging_risks_blockers")
	case w.IssuesNeedingAttention == nil:
		return models.EmailThreadReport{}, missingField("issues_needing_attention")
	}

	if *w.ShortSummary == "" {
		return models.EmailThreadReport{}, emptyField("short_summary")
	}
	if *w.Project == "" {
		return models.EmailThreadReport{}, emptyField("project")
	}
	if err := checkItems("unresolved_problems", *w.UnresolvedProblems); err != nil {
		return models.EmailThreadReport{}, err
	}
	if err := checkItems("emerging_risks_blockers", *w.EmergingRisksBlockers); err != nil {
		return models.EmailThreadReport{}, err
	}

	issues := make([]models.Issue, 0, len(*w.IssuesNeedingAttention))
	for i, item := range *w.IssuesNeedingAttention {
		field := fmt.Sprintf("issues_needing_attention[%d]", i)
		if item.Issue == nil {
			return models.EmailThreadReport{}, missingField(field + ".issue")
		}
		if item.Priority == nil {
			return models.EmailThreadReport{}, missingField(field + ".priority")
		}
		if *item.Issue == "" {
			return models.EmailThreadReport{}, emptyField(field + ".issue")
		}
		if *item.Priority < 1 {
			return models.EmailThreadReport{}, fmt.Errorf("%w: %s.priority must be at least 1, got %d", ErrMalformedReport, field, *item.Priority)
		}
		issues = append(issues, models.Issue{Issue: *item.Issue, Priority: *item.Priority})
	}

	return models.EmailThreadReport{
		Project:                *w.Project,
		ShortSummary:           *w.ShortSummary,
		UnresolvedProblems:     *w.UnresolvedProblems,
		EmergingRisksBlockers:  *w.EmergingRisksBlockers,
		IssuesNeedingAttention: issues,
	}, nil
}

func checkItems(field string, items []string) error {
	for i, item := range items {
		if item == "" {
			return emptyField(fmt.Sprintf("%s[%d]", field, i))
		}
	}
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing field %s", ErrMalformedReport, name)
}

func emptyField(name string) error {
	return fmt.Errorf("%w: field %s is empty", ErrMalformedReport, name)
}
