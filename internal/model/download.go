package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ProgressFunc receives download progress per artifact file. total is -1 when
// the server does not report a content length.
type ProgressFunc func(file string, received, total int64)

const downloadChunkSize = 256 * 1024

// Download fetches both artifacts for a variant into the local cache. Files
// already present and non-empty are skipped. A failed or cancelled transfer
// removes its partial file so IsDownloaded never sees a half-written artifact.
func (m *Manager) Download(ctx context.Context, v Variant, progress ProgressFunc) error {
	if !KnownVariant(v) {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
	if m.config.BaseURL == "" {
		return fmt.Errorf("%w: no base URL configured", ErrDownloadFailed)
	}

	dir := m.VariantDir(v)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	start := time.Now()
	for _, name := range []string{EncoderFileName, DecoderFileName} {
		dest := filepath.Join(dir, name)
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			m.logger.Debug("Artifact already cached, skipping",
				slog.String("variant", string(v)),
				slog.String("file", name))
			continue
		}

		url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(m.config.BaseURL, "/"), v, name)
		if err := m.downloadFile(ctx, url, dest, name, progress); err != nil {
			m.mu.Lock()
			m.downloadErrors++
			m.mu.Unlock()
			return err
		}
	}

	m.mu.Lock()
	m.downloads++
	m.mu.Unlock()

	m.logger.Info("Model download complete",
		slog.String("variant", string(v)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// downloadFile streams one artifact to disk in chunks, checking for
// cancellation between reads
func (m *Manager) downloadFile(ctx context.Context, url, dest, name string, progress ProgressFunc) error {
	reqCtx := ctx
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	m.logger.Info("Downloading model artifact",
		slog.String("url", url),
		slog.String("dest", dest))

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: server returned %d for %s", ErrDownloadFailed, resp.StatusCode, url)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	total := resp.ContentLength
	var received int64
	buf := make([]byte, downloadChunkSize)

	for {
		if err := reqCtx.Err(); err != nil {
			out.Close()
			os.Remove(dest)
			return err
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				os.Remove(dest)
				return fmt.Errorf("%w: %v", ErrDownloadFailed, werr)
			}
			received += int64(n)
			if progress != nil {
				progress(name, received, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(dest)
			if cerr := reqCtx.Err(); cerr != nil {
				return cerr
			}
			return fmt.Errorf("%w: %v", ErrDownloadFailed, readErr)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if received == 0 {
		os.Remove(dest)
		return fmt.Errorf("%w: empty artifact %s", ErrDownloadFailed, name)
	}

	m.mu.Lock()
	m.bytesDownloaded += uint64(received)
	m.mu.Unlock()

	return nil
}
