package texture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// fetch reads the bytes behind a texture location. http and https URLs are requested with the
// loader's client and timeout; file URLs and bare paths are read from disk. Bodies larger than
// maxBytes are rejected.
//
// Parameters:
//   - ctx: bounds the request
//   - location: the texture URL or path
//
// Returns:
//   - []byte: the encoded image
//   - error: an error if the location is unreachable, answers with a non-2xx status or is too large
func (l *loader) fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid texture location %q: %w", location, err)
	}

	switch u.Scheme {
	case "http", "https":
		return l.fetchHTTP(ctx, location)
	case "file":
		return l.readFile(filepath.FromSlash(u.Path))
	case "":
		return l.readFile(location)
	default:
		if filepath.VolumeName(location) != "" {
			return l.readFile(location)
		}
		return nil, fmt.Errorf("unsupported texture scheme %q", u.Scheme)
	}
}

func (l *loader) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %s", location, resp.Status)
	}
	return l.readLimited(resp.Body)
}

func (l *loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.readLimited(f)
}

func (l *loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("texture exceeds %d bytes", l.maxBytes)
	}
	return data, nil
}
