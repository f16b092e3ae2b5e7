// Package report turns groups of parsed emails into per-thread risk reports
// and a single portfolio summary.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tmskss/portfolio-health-report/internal/models"
)

// ErrNoGroups is returned when there is nothing to report on.
var ErrNoGroups = errors.New("no email threads to analyze")

// ThreadAnalyzer produces a structured report for one rendered thread.
type ThreadAnalyzer interface {
	AnalyzeThread(ctx context.Context, thread, colleagues string) (models.EmailThreadReport, error)
}

// Synthesizer produces the portfolio summary from formatted thread reports.
type Synthesizer interface {
	Synthesize(ctx context.Context, threadReports string) (string, error)
}

// Group is the ordered set of emails extracted from one origin file.
// Keywords are carried through to the result and never sent for analysis.
type Group struct {
	OriginFile string
	Emails     []models.ParsedEmail
	Keywords   []string
}

// ThreadResult pairs an origin file with the report produced for it.
type ThreadResult struct {
	OriginFile string                   `yaml:"origin_file"`
	Keywords   []string                 `yaml:"keywords,omitempty"`
	Report     models.EmailThreadReport `yaml:"report"`
}

// Outcome is everything produced by one Assemble call.
type Outcome struct {
	Threads   []ThreadResult
	Portfolio string
}

// Assembler runs the analysis and synthesis steps sequentially.
type Assembler struct {
	analyzer    ThreadAnalyzer
	synthesizer Synthesizer
	log         *slog.Logger
}

// NewAssembler wires the two external capabilities.
func NewAssembler(analyzer ThreadAnalyzer, synthesizer Synthesizer, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Assembler{analyzer: analyzer, synthesizer: synthesizer, log: logger}
}

// Assemble analyzes every group in order and synthesizes the portfolio report.
// The first failure aborts the run; no partial outcome is returned.
func (a *Assembler) Assemble(ctx context.Context, groups []Group, colleagues string) (*Outcome, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}

	threads := make([]ThreadResult, 0, len(groups))
	blocks := make([]string, 0, len(groups))

	for _, g := range groups {
		a.log.Debug("analyzing thread", slog.String("origin_file", g.OriginFile), slog.Int("emails", len(g.Emails)))

		rep, err := a.analyzer.AnalyzeThread(ctx, RenderThread(g.Emails), colleagues)
		if err != nil {
			return nil, fmt.Errorf("analyze thread %s: %w", g.OriginFile, err)
		}

		a.log.Info("thread analyzed",
			slog.String("origin_file", g.OriginFile),
			slog.String("project", rep.Project),
			slog.Int("issues", len(rep.IssuesNeedingAttention)),
		)

		threads = append(threads, ThreadResult{OriginFile: g.OriginFile, Keywords: g.Keywords, Report: rep})
		blocks = append(blocks, FormatThreadReport(rep))
	}

	portfolio, err := a.synthesizer.Synthesize(ctx, JoinThreadReports(blocks))
	if err != nil {
		return nil, fmt.Errorf("synthesize portfolio report: %w", err)
	}

	return &Outcome{Threads: threads, Portfolio: portfolio}, nil
}
