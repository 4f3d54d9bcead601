package cse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customsearch/v1", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "engine-1", r.URL.Query().Get("cx"))
		assert.Equal(t, "specialty chemicals market size", r.URL.Query().Get("q"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"items": [
				{"title": "Market Report", "link": "https://example.com/report", "snippet": "valued at $4.2 billion in 2025"},
				{"title": "Industry Outlook", "link": "https://example.com/outlook", "snippet": "projected growth"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "engine-1", WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "specialty chemicals market size")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Market Report", results[0].Title)
	assert.Equal(t, "https://example.com/report", results[0].Link)
	assert.Contains(t, results[0].Snippet, "$4.2 billion")
}

func TestSearch_NoItems(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"searchInformation":{"totalResults":"0"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "engine-1", WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "nothing")

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid cx"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "bad-engine", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
