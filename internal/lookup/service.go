// Package lookup resolves a borrowed title against the Audible catalog and
// fetches its chapter boundaries from Audnex.
package lookup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jaegermaster/overdrive-tools/internal/api/audible"
	"github.com/jaegermaster/overdrive-tools/internal/api/audnex"
	"github.com/jaegermaster/overdrive-tools/internal/cache"
	"github.com/jaegermaster/overdrive-tools/internal/chapters"
	"github.com/jaegermaster/overdrive-tools/internal/logger"
	"github.com/jaegermaster/overdrive-tools/internal/ratelimit"
)

// CatalogClient searches the Audible catalog.
type CatalogClient interface {
	Search(ctx context.Context, keywords, region string) ([]audible.Product, error)
}

// ChapterClient fetches chapter markers for an ASIN.
type ChapterClient interface {
	GetChapters(ctx context.Context, asin, region string) (*audnex.BookChapters, error)
}

// Candidate is a catalog match presented to the user for selection.
type Candidate struct {
	ASIN           string
	Title          string
	Subtitle       string
	Authors        []string
	Narrators      []string
	Series         string
	SeriesPosition string
	ReleaseDate    string
}

// SeriesLabel renders the series name with its position, if any.
func (c Candidate) SeriesLabel() string {
	if c.Series == "" {
		return ""
	}
	if c.SeriesPosition != "" {
		return fmt.Sprintf("%s #%s", c.Series, c.SeriesPosition)
	}
	return c.Series
}

// Service coordinates catalog search and chapter lookup with caching and
// request pacing.
type Service struct {
	catalog    CatalogClient
	chapterAPI ChapterClient
	limiter    *ratelimit.Limiter
	candidates cache.Cache[string, []Candidate]
	cacheTTL   time.Duration
	logger     *logger.Logger
}

// NewService creates a lookup service.
func NewService(catalog CatalogClient, chapterAPI ChapterClient, rateLimit time.Duration, cacheTTL time.Duration, log *logger.Logger) *Service {
	return &Service{
		catalog:    catalog,
		chapterAPI: chapterAPI,
		limiter:    ratelimit.New(rateLimit, ratelimit.DefaultBurst),
		candidates: cache.NewMemoryCache[string, []Candidate](),
		cacheTTL:   cacheTTL,
		logger:     log,
	}
}

// Search returns catalog candidates for a title/author pair.
func (s *Service) Search(ctx context.Context, author, title, region string) ([]Candidate, error) {
	if !audible.ValidRegion(region) {
		return nil, fmt.Errorf("unknown region %q (available: %s)", region, strings.Join(audible.Regions(), ", "))
	}

	keywords := strings.TrimSpace(title + " " + author)
	if keywords == "" {
		return nil, fmt.Errorf("nothing to search for: title and author are empty")
	}

	cacheKey := region + "|" + keywords
	if cached, found := s.candidates.Get(cacheKey); found {
		s.logger.Debug("Catalog search served from cache", map[string]interface{}{
			"keywords": keywords,
		})
		return cached, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	products, err := s.catalog.Search(ctx, keywords, region)
	if err != nil {
		return nil, fmt.Errorf("catalog search for %q failed: %w", keywords, err)
	}

	result := make([]Candidate, 0, len(products))
	for _, product := range products {
		if product.ASIN == "" {
			continue
		}
		result = append(result, toCandidate(product))
	}

	s.candidates.Set(cacheKey, result, s.cacheTTL)
	return result, nil
}

// Chapters fetches the chapter boundaries for an ASIN. The returned bool
// reports whether the source marks the timestamps as accurate.
func (s *Service) Chapters(ctx context.Context, asin, region string) ([]chapters.Chapter, bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	result, err := s.chapterAPI.GetChapters(ctx, asin, region)
	if err != nil {
		return nil, false, fmt.Errorf("chapter lookup for %s failed: %w", asin, err)
	}
	if len(result.Chapters) == 0 {
		return nil, false, fmt.Errorf("no chapters found for %s", asin)
	}

	converted := make([]chapters.Chapter, 0, len(result.Chapters))
	for _, ch := range result.Chapters {
		title := ch.Title
		if title == "" {
			title = "Unknown Chapter"
		}

		start := time.Duration(ch.StartOffsetMs) * time.Millisecond
		if ch.StartOffsetMs == 0 && ch.StartOffsetSec > 0 {
			start = time.Duration(ch.StartOffsetSec * float64(time.Second))
		}

		converted = append(converted, chapters.Chapter{Title: title, Start: start})
	}

	return converted, result.IsAccurate, nil
}

func toCandidate(product audible.Product) Candidate {
	candidate := Candidate{
		ASIN:        product.ASIN,
		Title:       product.Title,
		Subtitle:    product.Subtitle,
		ReleaseDate: product.ReleaseDate,
	}
	for _, author := range product.Authors {
		candidate.Authors = append(candidate.Authors, author.Name)
	}
	for _, narrator := range product.Narrators {
		candidate.Narrators = append(candidate.Narrators, narrator.Name)
	}
	if len(product.Series) > 0 {
		candidate.Series = product.Series[0].Name
		candidate.SeriesPosition = product.Series[0].Position
	}
	return candidate
}
