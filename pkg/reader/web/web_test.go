package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/kbcore/pkg/types"
)

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, USER_AGENT, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2025 07:28:00 GMT")
		w.Write([]byte("<p>hello</p>"))
	}))
	defer server.Close()

	page, err := NewFetcher(0).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>hello</p>", page.Body)
	assert.Equal(t, "Wed, 21 Oct 2025 07:28:00 GMT", page.LastModified)
	assert.Contains(t, page.ContentType, "text/html")
}

func TestFetchStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewFetcher(0).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, "error_http_404", CheckStatus(err))
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	_, err := NewFetcher(20*time.Millisecond).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, types.CHECK_STATUS_ERROR_TIMEOUT, CheckStatus(err))
}

func TestFetchConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewFetcher(time.Second).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.Equal(t, types.CHECK_STATUS_ERROR_CONNECTION, CheckStatus(err))
}

func TestCheckStatus(t *testing.T) {
	assert.Equal(t, types.CHECK_STATUS_OK, CheckStatus(nil))
	assert.Equal(t, types.CHECK_STATUS_ERROR_TIMEOUT, CheckStatus(context.DeadlineExceeded))
	assert.Equal(t, types.CHECK_STATUS_ERROR_CONNECTION, CheckStatus(errors.New("no route to host")))
}
