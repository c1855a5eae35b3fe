package lookup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaegermaster/overdrive-tools/internal/api/audible"
	"github.com/jaegermaster/overdrive-tools/internal/api/audnex"
	"github.com/jaegermaster/overdrive-tools/internal/chapters"
	"github.com/jaegermaster/overdrive-tools/internal/logger"
)

type fakeCatalog struct {
	products []audible.Product
	err      error
	calls    int
}

func (f *fakeCatalog) Search(ctx context.Context, keywords, region string) ([]audible.Product, error) {
	f.calls++
	return f.products, f.err
}

type fakeChapters struct {
	result *audnex.BookChapters
	err    error
}

func (f *fakeChapters) GetChapters(ctx context.Context, asin, region string) (*audnex.BookChapters, error) {
	return f.result, f.err
}

func newTestService(catalog CatalogClient, chapterAPI ChapterClient) *Service {
	return NewService(catalog, chapterAPI, time.Millisecond, time.Minute, logger.Get())
}

func TestSearch(t *testing.T) {
	catalog := &fakeCatalog{products: []audible.Product{
		{
			ASIN:        "B00TEST123",
			Title:       "The Long Way Home",
			Authors:     []audible.Person{{Name: "Jane Doe"}},
			Narrators:   []audible.Person{{Name: "Sam Reader"}},
			Series:      audible.SeriesList{{Name: "Homeward", Position: "2"}},
			ReleaseDate: "2020-01-15",
		},
		{Title: "No ASIN, skipped"},
	}}

	svc := newTestService(catalog, &fakeChapters{})
	got, err := svc.Search(context.Background(), "Jane Doe", "The Long Way Home", "us")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "B00TEST123", got[0].ASIN)
	assert.Equal(t, []string{"Jane Doe"}, got[0].Authors)
	assert.Equal(t, "Homeward #2", got[0].SeriesLabel())
}

func TestSearchCaches(t *testing.T) {
	catalog := &fakeCatalog{products: []audible.Product{{ASIN: "B00TEST123", Title: "Book"}}}
	svc := newTestService(catalog, &fakeChapters{})

	for i := 0; i < 3; i++ {
		_, err := svc.Search(context.Background(), "Jane Doe", "Book", "us")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, catalog.calls, "repeated searches must hit the cache")
}

func TestSearchValidation(t *testing.T) {
	svc := newTestService(&fakeCatalog{}, &fakeChapters{})

	_, err := svc.Search(context.Background(), "Jane Doe", "Book", "nowhere")
	assert.Error(t, err)

	_, err = svc.Search(context.Background(), "", "", "us")
	assert.Error(t, err)
}

func TestSearchPropagatesErrors(t *testing.T) {
	svc := newTestService(&fakeCatalog{err: fmt.Errorf("boom")}, &fakeChapters{})
	_, err := svc.Search(context.Background(), "Jane Doe", "Book", "us")
	assert.ErrorContains(t, err, "boom")
}

func TestChapters(t *testing.T) {
	chapterAPI := &fakeChapters{result: &audnex.BookChapters{
		ASIN:       "B00TEST123",
		IsAccurate: true,
		Chapters: []audnex.Chapter{
			{Title: "Opening Credits", StartOffsetMs: 0, StartOffsetSec: 0},
			{Title: "", StartOffsetMs: 23000},
			{Title: "Chapter 2", StartOffsetMs: 0, StartOffsetSec: 1830.5},
		},
	}}

	svc := newTestService(&fakeCatalog{}, chapterAPI)
	got, accurate, err := svc.Chapters(context.Background(), "B00TEST123", "us")
	require.NoError(t, err)
	assert.True(t, accurate)

	require.Len(t, got, 3)
	assert.Equal(t, chapters.Chapter{Title: "Opening Credits", Start: 0}, got[0])
	assert.Equal(t, chapters.Chapter{Title: "Unknown Chapter", Start: 23 * time.Second}, got[1])
	assert.Equal(t, chapters.Chapter{Title: "Chapter 2", Start: 1830*time.Second + 500*time.Millisecond}, got[2])
}

func TestChaptersEmpty(t *testing.T) {
	svc := newTestService(&fakeCatalog{}, &fakeChapters{result: &audnex.BookChapters{}})
	_, _, err := svc.Chapters(context.Background(), "B00TEST123", "us")
	assert.Error(t, err)
}
