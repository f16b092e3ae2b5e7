package report

import (
	"fmt"
	"strings"

	"github.com/tmskss/portfolio-health-report/internal/models"
)

// Rule closes every formatted thread report.
var Rule = strings.Repeat("-", 40)

// RenderEmail produces the canonical analysis input for one email.
func RenderEmail(e models.ParsedEmail) string {
	return fmt.Sprintf("From: %s\nTo: %s\nDate: %s\nSubject: %s\n\n%s", e.From, e.To, e.Date, e.Subject, e.Body)
}

// RenderThread joins the rendered emails with a blank line, keeping their order.
func RenderThread(emails []models.ParsedEmail) string {
	rendered := make([]string, 0, len(emails))
	for _, e := range emails {
		rendered = append(rendered, RenderEmail(e))
	}
	return strings.Join(rendered, "\n\n")
}

// FormatThreadReport renders a report as a plain-text block. Issues keep the
// order they were received in.
func FormatThreadReport(r models.EmailThreadReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Project: %s\n\n", r.Project)
	fmt.Fprintf(&b, "Summary:\n%s\n\n", r.ShortSummary)

	b.WriteString("Unresolved Problems:\n")
	writeList(&b, r.UnresolvedProblems)
	b.WriteString("\n")

	b.WriteString("Emerging Risks/Blockers:\n")
	writeList(&b, r.EmergingRisksBlockers)
	b.WriteString("\n")

	b.WriteString("Issues Needing Attention:\n")
	if len(r.IssuesNeedingAttention) == 0 {
		b.WriteString("- none\n")
	}
	for _, issue := range r.IssuesNeedingAttention {
		fmt.Fprintf(&b, "- [priority %d] %s\n", issue.Priority, issue.Issue)
	}

	return b.String()
}

// JoinThreadReports closes each block with the rule line and concatenates
// them in the given order.
func JoinThreadReports(blocks []string) string {
	closed := make([]string, 0, len(blocks))
	for _, block := range blocks {
		closed = append(closed, block+Rule+"\n")
	}
	return strings.Join(closed, "\n")
}

func writeList(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("- none\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
