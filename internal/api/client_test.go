package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, Credentials{CustomerID: "user", PIN: "1234"},
		WithHTTPClient(srv.Client()),
		WithRateLimit(1000),
	)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.Write([]byte(`{"status":"success","content":[]}`))
	})

	items, err := client.FolderList(context.Background(), "")
	require.NoError(t, err)

	assert.Empty(t, items)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_RetryExhaustionBecomesTimeout(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FolderList(context.Background(), "")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)

	assert.Equal(t, "timeout", apiErr.Message)
	assert.Equal(t, int32(3), attempts.Load(), "transient failures are bounded at three attempts")
}

func TestClient_LogicalErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{"status":"error","message":"invalid pin"}`))
	})

	_, err := client.TransferList(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)

	assert.Equal(t, "invalid pin", apiErr.Message)
	assert.Equal(t, int32(1), attempts.Load(), "a logical rejection must not be replayed")
}

func TestClient_MalformedResponseIsNotRetried(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`<html>gateway error</html>`))
	})

	_, err := client.TransferList(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_SendsCredentialFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		assert.Equal(t, "user", r.PostForm.Get("customer_id"))
		assert.Equal(t, "1234", r.PostForm.Get("pin"))
		assert.Equal(t, "d7", r.PostForm.Get("id"))

		w.Write([]byte(`{"status":"success","content":[]}`))
	})

	_, err := client.FolderList(context.Background(), "d7")
	require.NoError(t, err)
}

func TestFolderList_SplitsVariants(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","content":[
			{"type":"file","id":"f1","name":"a.mkv","size":"123","link":"https://server/a.mkv"},
			{"type":"folder","id":"d1","name":"season 1"},
			{"type":"breadcrumb","id":"x"}
		]}`))
	})

	items, err := client.FolderList(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 2, "unknown record types are skipped")

	file, ok := items[0].(*entity.File)
	require.True(t, ok)
	assert.Equal(t, entity.Size(123), file.Size)

	folder, ok := items[1].(*entity.Folder)
	require.True(t, ok)
	assert.Equal(t, "season 1", folder.Name)
}

func TestTransferCreate_DuplicateCarriesExistingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","error":"duplicate","id":"t9","message":"You already added this job"}`))
	})

	_, err := client.TransferCreate(context.Background(), "magnet:?xt=urn:btih:abc")
	require.Error(t, err)
	require.True(t, IsDuplicate(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "t9", apiErr.TransferID)
}

func TestTorrentBrowse_MissingZipLink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success"}`))
	})

	_, err := client.TorrentBrowse(context.Background(), "c12fe1c06bba254a9dc9f519b335aa7c1367a88a")
	assert.Error(t, err)
}

func TestDelete_DispatchesByKind(t *testing.T) {
	var endpoints []string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		endpoints = append(endpoints, r.URL.Path)
		w.Write([]byte(`{"status":"success"}`))
	})

	ctx := context.Background()
	require.NoError(t, client.Delete(ctx, entity.KindFile, "f1"))
	require.NoError(t, client.Delete(ctx, entity.KindFolder, "d1"))
	require.NoError(t, client.Delete(ctx, entity.KindTransfer, "t1"))

	assert.Equal(t, []string{"/item/delete", "/folder/delete", "/transfer/delete"}, endpoints)

	assert.Error(t, client.Delete(ctx, entity.KindDownload, "x"), "generated downloads have no delete endpoint")
}
