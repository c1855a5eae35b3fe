package audnex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaegermaster/overdrive-tools/internal/logger"
)

func newTestClient(serverURL string) *Client {
	return NewClient(5*time.Second, logger.Get(), WithBaseURL(serverURL))
}

func TestGetBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books/B00TEST123", r.URL.Path)
		assert.Equal(t, "us", r.URL.Query().Get("region"))
		assert.Equal(t, "1", r.URL.Query().Get("update"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"asin": "B00TEST123",
			"title": "The Long Way Home",
			"authors": [{"name": "Jane Doe", "asin": "A1"}],
			"narrators": [{"name": "Sam Reader"}],
			"runtimeLengthMin": 600
		}`))
	}))
	defer server.Close()

	book, err := newTestClient(server.URL).GetBook(context.Background(), "B00TEST123", "us")
	require.NoError(t, err)

	assert.Equal(t, "B00TEST123", book.ASIN)
	assert.Equal(t, "The Long Way Home", book.Title)
	require.Len(t, book.Authors, 1)
	assert.Equal(t, "Jane Doe", book.Authors[0].Name)
	assert.Equal(t, 600, book.RuntimeLengthMin)
}

func TestGetChapters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books/B00TEST123/chapters", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"asin": "B00TEST123",
			"isAccurate": true,
			"chapters": [
				{"title": "Opening Credits", "startOffsetMs": 0, "startOffsetSec": 0, "lengthMs": 23000},
				{"title": "Chapter 1", "startOffsetMs": 23000, "startOffsetSec": 23, "lengthMs": 1800000}
			]
		}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).GetChapters(context.Background(), "B00TEST123", "us")
	require.NoError(t, err)

	assert.True(t, result.IsAccurate)
	require.Len(t, result.Chapters, 2)
	assert.Equal(t, "Chapter 1", result.Chapters[1].Title)
	assert.Equal(t, int64(23000), result.Chapters[1].StartOffsetMs)
	assert.Equal(t, float64(23), result.Chapters[1].StartOffsetSec)
}

func TestGetChaptersRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"asin": "B00TEST123", "isAccurate": false, "chapters": []}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).GetChapters(context.Background(), "B00TEST123", "us")
	require.NoError(t, err)
	assert.False(t, result.IsAccurate)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetBookClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetBook(context.Background(), "B00MISSING", "us")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
}

func TestGetBookRequiresASIN(t *testing.T) {
	_, err := newTestClient("http://example.invalid").GetBook(context.Background(), "", "us")
	assert.Error(t, err)

	_, err = newTestClient("http://example.invalid").GetChapters(context.Background(), "", "us")
	assert.Error(t, err)
}
