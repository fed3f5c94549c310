package uploading

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snap.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestUpload_SendsMultipartForm(t *testing.T) {
	path := writeSnapshot(t, "vector-data")

	var gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		file, header, err := r.FormFile("snapshot")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotName, gotBody = header.Filename, string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := NewHTTPUploader(5*time.Second, zerolog.Nop())
	require.NoError(t, u.Upload(context.Background(), srv.URL+"/collections/payload/snapshots/upload", path))
	assert.Equal(t, "snap.bin", gotName)
	assert.Equal(t, "vector-data", gotBody)
}

func TestUpload_ErrorStatus(t *testing.T) {
	path := writeSnapshot(t, "x")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "collection locked", http.StatusConflict)
	}))
	defer srv.Close()

	err := NewHTTPUploader(time.Second, zerolog.Nop()).Upload(context.Background(), srv.URL, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailure)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "collection locked")
}

func TestUpload_MissingFile(t *testing.T) {
	err := NewHTTPUploader(time.Second, zerolog.Nop()).
		Upload(context.Background(), "http://127.0.0.1:1", filepath.Join(t.TempDir(), "absent.bin"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailure)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUpload_Unreachable(t *testing.T) {
	path := writeSnapshot(t, "x")
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPUploader(time.Second, zerolog.Nop()).Upload(context.Background(), url, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailure)
}
