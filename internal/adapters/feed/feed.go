// Package feed implementa ports.SentimentSource: items ya puntuados desde un
// endpoint HTTP o desde un fichero JSON local.
//
// Formato aceptado (ambas fuentes):
//
//	{"items": [{"id": "p1", "score": 0.4, "created_at": "2026-01-02T15:04:05Z"}]}
//
// o directamente el array de items.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/alejandrodnm/sentibot/internal/adapters/httpclient"
	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

const (
	feedRatePerSec = 2
	feedBurst      = 2
)

var (
	_ ports.SentimentSource = (*HTTPSource)(nil)
	_ ports.SentimentSource = (*FileSource)(nil)
)

// envelope admite tanto {"items": [...]} como un array desnudo.
type envelope struct {
	Items []domain.ScoredItem `json:"items"`
}

func (e *envelope) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &e.Items)
	}
	type plain envelope
	return json.Unmarshal(b, (*plain)(e))
}

// HTTPSource lee los items de un endpoint JSON.
type HTTPSource struct {
	url    string
	client *httpclient.Client
}

// NewHTTPSource crea la fuente HTTP con rate limiting propio.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{url: url, client: httpclient.New(feedRatePerSec, feedBurst)}
}

// WithClient reemplaza el cliente HTTP (tests).
func (s *HTTPSource) WithClient(c *httpclient.Client) *HTTPSource {
	s.client = c
	return s
}

func (s *HTTPSource) FetchScored(ctx context.Context) ([]domain.ScoredItem, error) {
	var env envelope
	if err := s.client.GetJSON(ctx, "feed.FetchScored", s.url, &env); err != nil {
		return nil, err
	}
	items := sanitize(env.Items)
	slog.Debug("feed: fetched", "source", "http", "items", len(items))
	return items, nil
}

// FileSource relee el fichero en cada ciclo, así se puede actualizar en caliente.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) FetchScored(ctx context.Context) ([]domain.ScoredItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Classify(domain.KindUnavailable, "feed.FetchScored", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.Classify(domain.KindNotFound, "feed.FetchScored", err)
		}
		return nil, domain.Classify(domain.KindUnavailable, "feed.FetchScored", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domain.Classify(domain.KindSerialization, "feed.FetchScored",
			fmt.Errorf("parse %s: %w", s.path, err))
	}
	items := sanitize(env.Items)
	slog.Debug("feed: fetched", "source", "file", "path", s.path, "items", len(items))
	return items, nil
}

// sanitize descarta scores no finitos y recorta el resto a [-1, 1].
func sanitize(items []domain.ScoredItem) []domain.ScoredItem {
	out := make([]domain.ScoredItem, 0, len(items))
	for _, it := range items {
		if math.IsNaN(it.Score) || math.IsInf(it.Score, 0) {
			slog.Warn("feed: dropping item with invalid score", "id", it.ID)
			continue
		}
		it.Score = math.Max(-1, math.Min(1, it.Score))
		out = append(out, it)
	}
	return out
}
