package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/tmskss/portfolio-health-report/internal/models"
)

// maxThreadSize caps how many emails a single origin file query returns.
const maxThreadSize = 10000

// ErrThreadTooLarge is returned when an origin file holds more emails than one
// read-back can return.
var ErrThreadTooLarge = errors.New("thread exceeds read-back size")

// Client wraps go-elasticsearch with helpers tailored to this project.
type Client struct {
	es            *elasticsearch.Client
	index         string
	embeddingDims int
	log           *slog.Logger
}

// New instantiates the Elasticsearch client. embeddingDims sizes the
// embedding field when the index is created; zero leaves it unmapped.
func New(addr, index string, embeddingDims int, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, embeddingDims: embeddingDims, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

func (c *Client) mapping() map[string]any {
	properties := map[string]any{
		"id":          map[string]any{"type": "keyword"},
		"run_id":      map[string]any{"type": "keyword"},
		"origin_file": map[string]any{"type": "keyword"},
		"position":    map[string]any{"type": "integer"},
		"from":        map[string]any{"type": "keyword"},
		"to":          map[string]any{"type": "keyword"},
		"date":        map[string]any{"type": "keyword"},
		"subject":     map[string]any{"type": "text"},
		"body":        map[string]any{"type": "text"},
		"keywords":    map[string]any{"type": "keyword"},
		"indexed_at":  map[string]any{"type": "date"},
	}
	if c.embeddingDims > 0 {
		properties["embedding"] = map[string]any{
			"type":       "dense_vector",
			"dims":       c.embeddingDims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	return map[string]any{"mappings": map[string]any{"properties": properties}}
}

// EnsureIndex creates the email index with its mapping when it does not exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	payload, err := json.Marshal(c.mapping())
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created email index", slog.String("index", c.index))
	return nil
}

// IndexEmails writes the documents of a run and refreshes the index so that
// they are immediately searchable.
func (c *Client) IndexEmails(ctx context.Context, runID string, docs []models.EmailDocument) error {
	for _, doc := range docs {
		doc.RunID = runID
		if err := c.indexEmail(ctx, doc); err != nil {
			return err
		}
	}

	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("refresh index failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

func (c *Client) indexEmail(ctx context.Context, doc models.EmailDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// EmailsByOrigin returns the emails of one origin file in a run, ordered by
// their position in the file.
func (c *Client) EmailsByOrigin(ctx context.Context, runID, originFile string) ([]models.ParsedEmail, error) {
	body := map[string]any{
		"size":             maxThreadSize,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"run_id": runID}},
					{"term": map[string]any{"origin_file": originFile}},
				},
			},
		},
		"sort": []map[string]any{
			{"position": map[string]any{"order": "asc"}},
		},
		"_source": map[string]any{
			"excludes": []string{"embedding"},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.EmailDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if total := parsed.Hits.Total.Value; total > len(parsed.Hits.Hits) {
		return nil, fmt.Errorf("%w: %s has %d emails, read %d", ErrThreadTooLarge, originFile, total, len(parsed.Hits.Hits))
	}

	emails := make([]models.ParsedEmail, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		emails = append(emails, hit.Source.Email())
	}

	return emails, nil
}

// DeleteOlderThan removes documents indexed more than maxAge ago using batched
// delete-by-query. It loops until a batch deletes fewer than batchSize documents.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"query": map[string]any{
				"range": map[string]any{
					"indexed_at": map[string]any{
						"lte": cutoff,
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
