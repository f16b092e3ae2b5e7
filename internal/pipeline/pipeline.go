// Package pipeline runs one full report over the configured archive directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tmskss/portfolio-health-report/internal/archive"
	"github.com/tmskss/portfolio-health-report/internal/mirror"
	"github.com/tmskss/portfolio-health-report/internal/models"
	"github.com/tmskss/portfolio-health-report/internal/processing"
	"github.com/tmskss/portfolio-health-report/internal/report"
)

const (
	keywordLimit     = 8
	keywordMinLength = 4
)

var (
	// ErrNoArchives is returned when the directory holds no archive files.
	ErrNoArchives = errors.New("no email archive files found")
	// ErrIncompleteThread is returned when the mirror does not return every
	// email indexed for a thread.
	ErrIncompleteThread = errors.New("mirror returned an incomplete thread")
)

// Embedder turns email bodies into vectors stored alongside mirrored emails.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Assembler produces the thread and portfolio reports.
type Assembler interface {
	Assemble(ctx context.Context, groups []report.Group, colleagues string) (*report.Outcome, error)
}

// Options locate the input files.
type Options struct {
	EmailsDir      string
	ColleaguesFile string
}

// threadIndex is what a run remembers about each origin file before the
// mirror read-back.
type threadIndex struct {
	emails   int
	keywords []string
}

// Pipeline is safe for concurrent runs when its Store keeps runs apart.
type Pipeline struct {
	opts      Options
	store     mirror.Store
	embedder  Embedder
	assembler Assembler
	log       *slog.Logger

	newRunID func() string
	now      func() time.Time
}

// New wires a pipeline. embedder may be nil.
func New(opts Options, store mirror.Store, embedder Embedder, assembler Assembler, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		opts:      opts,
		store:     store,
		embedder:  embedder,
		assembler: assembler,
		log:       logger,
		newRunID:  uuid.NewString,
		now:       time.Now,
	}
}

// Run parses every archive, mirrors the emails, reads each thread back by
// origin file and assembles the reports.
func (p *Pipeline) Run(ctx context.Context) (*report.Outcome, error) {
	dir, err := archive.LoadDirectory(p.opts.EmailsDir, p.opts.ColleaguesFile)
	if err != nil {
		return nil, err
	}
	if len(dir.Files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoArchives, p.opts.EmailsDir)
	}
	if dir.Colleagues == "" {
		p.log.Warn("colleague directory missing or empty", slog.String("file", p.opts.ColleaguesFile))
	}

	runID := p.newRunID()
	log := p.log.With(slog.String("run_id", runID))
	indexedAt := p.now().UTC()

	var docs []models.EmailDocument
	threads := make(map[string]threadIndex, len(dir.Files))
	for _, f := range dir.Files {
		emails, err := archive.Parse(f.Content, f.Name)
		if err != nil {
			return nil, fmt.Errorf("parse archive: %w", err)
		}

		start := len(docs)
		for i, e := range emails {
			docs = append(docs, newDocument(runID, i, e, indexedAt))
		}
		idx := threadIndex{
			emails:   len(emails),
			keywords: processing.MergeKeywords(keywordsOf(docs[start:]), keywordLimit),
		}
		threads[f.Name] = idx
		log.Debug("parsed archive",
			slog.String("origin_file", f.Name),
			slog.Int("emails", idx.emails),
			slog.Any("keywords", idx.keywords),
		)
	}

	if p.embedder != nil {
		if err := p.embed(ctx, docs); err != nil {
			return nil, err
		}
	}

	if err := p.store.IndexEmails(ctx, runID, docs); err != nil {
		return nil, fmt.Errorf("mirror emails: %w", err)
	}
	log.Info("mirrored emails", slog.Int("files", len(dir.Files)), slog.Int("emails", len(docs)))

	groups, err := p.readBack(ctx, runID, dir.Files, threads)
	p.release(ctx, log, runID)
	if err != nil {
		return nil, err
	}

	outcome, err := p.assembler.Assemble(ctx, groups, dir.Colleagues)
	if err != nil {
		return nil, err
	}

	log.Info("portfolio report ready", slog.Int("threads", len(outcome.Threads)))
	return outcome, nil
}

// readBack loads every thread from the mirror. A thread that comes back with a
// different number of emails than was indexed fails the run.
func (p *Pipeline) readBack(ctx context.Context, runID string, files []archive.File, threads map[string]threadIndex) ([]report.Group, error) {
	groups := make([]report.Group, 0, len(files))
	for _, f := range files {
		emails, err := p.store.EmailsByOrigin(ctx, runID, f.Name)
		if err != nil {
			return nil, fmt.Errorf("read thread %s: %w", f.Name, err)
		}
		idx := threads[f.Name]
		if len(emails) != idx.emails {
			return nil, fmt.Errorf("read thread %s: %w: got %d of %d emails", f.Name, ErrIncompleteThread, len(emails), idx.emails)
		}
		groups = append(groups, report.Group{OriginFile: f.Name, Emails: emails, Keywords: idx.keywords})
	}
	return groups, nil
}

func (p *Pipeline) release(ctx context.Context, log *slog.Logger, runID string) {
	r, ok := p.store.(mirror.Releaser)
	if !ok {
		return
	}
	if err := r.ReleaseRun(ctx, runID); err != nil {
		log.Warn("release mirrored run", slog.Any("err", err))
	}
}

func keywordsOf(docs []models.EmailDocument) [][]string {
	out := make([][]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Keywords)
	}
	return out
}

func (p *Pipeline) embed(ctx context.Context, docs []models.EmailDocument) error {
	texts := make([]string, 0, len(docs))
	positions := make([]int, 0, len(docs))
	for i, d := range docs {
		if d.Body == "" {
			continue
		}
		texts = append(texts, d.Body)
		positions = append(positions, i)
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed emails: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embed emails: expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, pos := range positions {
		docs[pos].Embedding = vectors[i]
	}
	return nil
}

func newDocument(runID string, position int, e models.ParsedEmail, indexedAt time.Time) models.EmailDocument {
	return models.EmailDocument{
		ID:         processing.BuildDocumentID(runID, e.OriginFile, position),
		RunID:      runID,
		OriginFile: e.OriginFile,
		Position:   position,
		From:       e.From,
		To:         e.To,
		Date:       e.Date,
		Subject:    e.Subject,
		Body:       e.Body,
		Keywords:   processing.ExtractKeywords(e.Subject+" "+e.Body, keywordLimit, keywordMinLength),
		IndexedAt:  indexedAt,
	}
}

// Result converts a run into its outward success or failure shape.
func Result(outcome *report.Outcome, err error) models.RunResult {
	if err != nil {
		return models.RunResult{Success: false, Error: err.Error()}
	}
	return models.RunResult{Success: true, Report: outcome.Portfolio}
}
