// Package uploading transfers the snapshot payload to the dependent service.
package uploading

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultFieldName = "snapshot"
	maxErrorBody     = 4 * 1024
)

// ErrTransferFailure wraps every error returned by an Uploader.
var ErrTransferFailure = errors.New("transfer failed")

// Uploader performs one blocking transfer of a file to an endpoint. It does
// not retry.
type Uploader interface {
	Upload(ctx context.Context, endpoint, filePath string) error
}

// HTTPUploader posts the file as a multipart form, streaming it from disk.
type HTTPUploader struct {
	client *http.Client
	field  string
	logger zerolog.Logger
}

// NewHTTPUploader creates an uploader. A zero timeout means no client
// timeout, which suits multi-gigabyte snapshots.
func NewHTTPUploader(timeout time.Duration, logger zerolog.Logger) *HTTPUploader {
	return &HTTPUploader{
		client: &http.Client{Timeout: timeout},
		field:  DefaultFieldName,
		logger: logger.With().Str("component", "uploader").Logger(),
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, endpoint, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailure, err)
	}

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer f.Close()
		part, err := mw.CreateFormFile(u.field, filepath.Base(filePath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("%w: %w", ErrTransferFailure, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	u.logger.Info().Str("endpoint", endpoint).Str("file", filePath).Int64("bytes", size).Msg("Uploading dataset")
	start := time.Now()

	resp, err := u.client.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("%w: %s: %w", ErrTransferFailure, endpoint, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: status %d: %s", ErrTransferFailure, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	u.logger.Info().Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("Upload finished")
	return nil
}
