package kaggle

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/olistflow/olistflow/pkg/errors"
	"github.com/olistflow/olistflow/pkg/retry"
)

func testCreds() Credentials {
	return Credentials{Username: "alice", Key: "token"}
}

// buildArchive returns a zip archive holding the given name->content
// entries.
func buildArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(testCreds(), zaptest.NewLogger(t),
		WithBaseURL(srv.URL),
		WithRetryPolicy(retry.NewPolicy(3, time.Millisecond)))
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Credentials{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))

	_, err = NewClient(Credentials{Username: "alice"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestDownloadDataset(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"olist_customers_dataset.csv": "customer_id\nc1\n",
		"olist_orders_dataset.csv":    "order_id\no1\n",
		"readme.md":                   "not a csv",
	})

	var gotPath string
	var gotUser, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotKey, _ = r.BasicAuth()
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(t, srv)

	files, err := c.DownloadDataset(context.Background(), "olistbr/brazilian-ecommerce", dir)
	require.NoError(t, err)

	assert.Equal(t, "/datasets/download/olistbr/brazilian-ecommerce", gotPath)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "token", gotKey)

	assert.ElementsMatch(t, []string{
		"olist_customers_dataset.csv",
		"olist_orders_dataset.csv",
	}, files)

	content, err := os.ReadFile(filepath.Join(dir, "olist_customers_dataset.csv"))
	require.NoError(t, err)
	assert.Equal(t, "customer_id\nc1\n", string(content))

	_, err = os.Stat(filepath.Join(dir, "readme.md"))
	assert.True(t, os.IsNotExist(err), "non-CSV entries must not be extracted")
}

func TestDownloadDatasetRetriesServerErrors(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"olist_sellers_dataset.csv": "seller_id\ns1\n",
	})

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	files, err := c.DownloadDataset(context.Background(), "olistbr/brazilian-ecommerce", t.TempDir())
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDownloadDatasetAuthFailureNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.DownloadDataset(context.Background(), "olistbr/brazilian-ecommerce", t.TempDir())

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "auth errors must not be retried")
}

func TestDownloadDatasetRateLimitRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.DownloadDataset(context.Background(), "olistbr/brazilian-ecommerce", t.TempDir())

	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDownloadDatasetNoCSVs(t *testing.T) {
	archive := buildArchive(t, map[string]string{"readme.md": "nothing here"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.DownloadDataset(context.Background(), "olistbr/brazilian-ecommerce", t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CSV files")
}

func TestDownloadDatasetStripsArchivePaths(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"nested/dir/olist_sellers_dataset.csv": "seller_id\ns1\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(t, srv)

	files, err := c.DownloadDataset(context.Background(), "olistbr/brazilian-ecommerce", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"olist_sellers_dataset.csv"}, files)

	_, err = os.Stat(filepath.Join(dir, "olist_sellers_dataset.csv"))
	assert.NoError(t, err)
}
