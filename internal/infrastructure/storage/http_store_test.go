package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestUpload(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	store := NewHTTPObjectStore(server.URL, "http://cdn.example.com", zaptest.NewLogger(t).Sugar())

	url, err := store.Upload(context.Background(), "avatars/u1", []byte("png-bytes"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "http://cdn.example.com/avatars/u1", url)
	assert.Equal(t, "/avatars/u1", gotPath)
	assert.Equal(t, "image/png", gotContentType)
	assert.Equal(t, []byte("png-bytes"), gotBody)
}

func TestUpload_LeadingSlashNormalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/banners/u1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := NewHTTPObjectStore(server.URL+"/", "http://cdn/", zaptest.NewLogger(t).Sugar())

	url, err := store.Upload(context.Background(), "/banners/u1", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/banners/u1", url)
}

func TestUpload_RejectionIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("quota exceeded"))
	}))
	defer server.Close()

	store := NewHTTPObjectStore(server.URL, "http://cdn", zaptest.NewLogger(t).Sugar())

	_, err := store.Upload(context.Background(), "avatars/u1", []byte("x"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestUpload_ServerUnreachable(t *testing.T) {
	store := NewHTTPObjectStore("http://127.0.0.1:1", "http://cdn", zaptest.NewLogger(t).Sugar())

	_, err := store.Upload(context.Background(), "avatars/u1", []byte("x"), "image/png")
	assert.Error(t, err)
}
