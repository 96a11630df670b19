// Package fetch downloads API descriptors over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
)

// UserAgent identifies apidb to descriptor hosts
const UserAgent = "apidb-fetch/1.0"

// ErrEmptyBody is returned when the server sends no descriptor content
var ErrEmptyBody = errors.New("empty response body")

// Fetch downloads url into dest. The file is written to a temporary name
// next to dest and renamed into place, so dest is either the previous
// file or the complete download.
func Fetch(ctx context.Context, url, dest string, logger *slog.Logger) (int64, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(UserAgent),
	)
	// Descriptors are tens of megabytes; no body limit.
	c.MaxBodySize = 0

	var (
		body     []byte
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		logger.Warn("Descriptor request failed",
			slog.String("url", r.Request.URL.String()),
			slog.Int("status", r.StatusCode),
			slog.String("error", err.Error()))
		fetchErr = fmt.Errorf("fetch %s: status %d: %w", url, r.StatusCode, err)
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("fetch %s: %w", url, err)
	}
	c.Wait()
	if fetchErr != nil {
		return 0, fetchErr
	}
	if len(body) == 0 {
		return 0, fmt.Errorf("fetch %s: %w", url, ErrEmptyBody)
	}

	if err := writeAtomic(dest, body); err != nil {
		return 0, err
	}
	logger.Info("Fetched descriptor",
		slog.String("url", url),
		slog.String("dest", dest),
		slog.Int("bytes", len(body)))
	return int64(len(body)), nil
}

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(dest)+"."+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace descriptor: %w", err)
	}
	return nil
}
