package catalogsource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/thiskanishk/healthassist-cds/logging"
)

const maxDownloadSize = 64 << 20

// download fetches url into dir/name. The content is converted to UTF-8 when
// it is not already valid UTF-8 (exports from pharmacy systems are often
// ISO-8859-1). The file is replaced atomically.
func download(ctx context.Context, client *http.Client, url, dir, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(body) > maxDownloadSize {
		return fmt.Errorf("%s exceeds %d bytes", url, maxDownloadSize)
	}

	body, err = toUTF8(body)
	if err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}

	logging.Debug("Catalog file downloaded", "file", name, "bytes", len(body))
	return nil
}

func toUTF8(b []byte) ([]byte, error) {
	if utf8.Valid(b) {
		return b, nil
	}
	return io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(b)))
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Minute}
}
