// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package shardfetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_StreamsBody(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		assert.Empty(t, r.Header.Get("Range"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Length", "5")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Settings{UserAgent: "Mozilla/5.0", Timeout: "2s"})
	require.NoError(t, err)

	body, size, err := f.Fetch(context.Background(), srv.URL+"/a.bin")
	require.NoError(t, err)
	defer body.Close()

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "Mozilla/5.0", gotUA)
}

func TestHTTPFetcher_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Settings{Timeout: "2s"})
	require.NoError(t, err)

	_, _, err = f.Fetch(context.Background(), srv.URL+"/missing.bin")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestHTTPFetcher_StallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Settings{Timeout: "100ms"})
	require.NoError(t, err)

	body, _, err := f.Fetch(context.Background(), srv.URL+"/slow.bin")
	require.NoError(t, err)
	defer body.Close()

	_, err = io.ReadAll(body)
	assert.ErrorIs(t, err, ErrStalled)
}

func TestHTTPFetcher_InvalidTimeout(t *testing.T) {
	_, err := NewHTTPFetcher(Settings{Timeout: "whenever"})
	assert.Error(t, err)
}

// End to end over HTTP: one file served, one missing.
func TestDownload_HTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repo/params_shard_0.bin":
			_, _ = w.Write([]byte("shard-zero"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	job := Job{
		BaseURL:   srv.URL + "/repo/",
		OutputDir: dir,
		Files:     ShardFiles("params_shard_%d.bin", 2),
	}
	cfg := Settings{Retries: 1, RetryDelay: "1ms", Timeout: "2s"}

	sum, err := Download(context.Background(), job, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, int64(len("shard-zero")), sum.Bytes)
	assert.FileExists(t, filepath.Join(dir, "params_shard_0.bin"))
	assert.NoFileExists(t, filepath.Join(dir, "params_shard_1.bin"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no .part leftovers")
}
