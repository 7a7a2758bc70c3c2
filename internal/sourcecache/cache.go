// SPDX-License-Identifier: MPL-2.0

package sourcecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hitbuild/hit/pkg/profile"
)

// keyPrefix is the only supported content key scheme.
const keyPrefix = "sha256:"

// ErrKeyMismatch is the sentinel error wrapped by KeyMismatchError.
var ErrKeyMismatch = errors.New("source content does not match its key")

type (
	// Cache resolves a source to a local file holding its content.
	Cache interface {
		Fetch(ctx context.Context, src profile.Source) (string, error)
	}

	// DirCache is a Cache backed by a directory.
	DirCache struct {
		root   string
		client *http.Client
		logger *slog.Logger
	}

	// Option configures a DirCache.
	Option func(*DirCache)

	// KeyMismatchError reports fetched content whose digest differs from
	// the declared key.
	KeyMismatchError struct {
		URL  string
		Want string
		Got  string
	}
)

// Error implements the error interface.
func (e *KeyMismatchError) Error() string {
	return fmt.Sprintf("%s: content hash %s%s does not match key %s", e.URL, keyPrefix, e.Got, e.Want)
}

// Unwrap returns ErrKeyMismatch.
func (e *KeyMismatchError) Unwrap() error { return ErrKeyMismatch }

// WithHTTPClient replaces the client used for http and https sources.
func WithHTTPClient(c *http.Client) Option {
	return func(d *DirCache) { d.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *DirCache) { d.logger = l }
}

// New returns a DirCache rooted at root.
func New(root string, opts ...Option) *DirCache {
	d := &DirCache{root: root, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		// Some servers serve .tar.gz with Content-Encoding: gzip; the
		// default transport would then store a decompressed file that no
		// longer matches its key.
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.DisableCompression = true
		d.client = &http.Client{Transport: t}
	}
	return d
}

// Root returns the cache directory.
func (d *DirCache) Root() string { return d.root }

// Path returns where the content of key is stored, whether or not it is
// present.
func (d *DirCache) Path(key string) (string, error) {
	digest, err := parseKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, "sha256", digest), nil
}

// Fetch implements Cache.
func (d *DirCache) Fetch(ctx context.Context, src profile.Source) (string, error) {
	dest, err := d.Path(src.Key)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		d.logger.Debug("source cache hit", "key", src.Key)
		return dest, nil
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp := filepath.Join(dir, ".fetch-"+uuid.NewString())
	defer os.Remove(tmp)

	d.logger.Info("fetching source", "url", src.URL)
	if err := d.download(ctx, src, tmp); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("store %s: %w", src.Key, err)
	}
	return dest, nil
}

func (d *DirCache) download(ctx context.Context, src profile.Source, tmp string) (err error) {
	want, err := parseKey(src.Key)
	if err != nil {
		return err
	}
	body, err := d.open(ctx, src.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, h), body); err != nil {
		return fmt.Errorf("fetch %s: %w", src.URL, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return &KeyMismatchError{URL: src.URL, Want: src.Key, Got: got}
	}
	return nil
}

// open returns a reader for rawURL: http and https are downloaded, file URLs
// and bare paths are read from disk.
func (d *DirCache) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil || len(u.Scheme) <= 1 {
		// Bare path, including Windows drive letters.
		return os.Open(rawURL)
	}

	switch u.Scheme {
	case "file":
		return os.Open(filepath.FromSlash(u.Path))
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: unexpected HTTP status %s", rawURL, resp.Status)
		}
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("fetch %s: unsupported URL scheme %q", rawURL, u.Scheme)
	}
}

func parseKey(key string) (string, error) {
	digest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("invalid source key %q (expected %s<64 hex digits>)", key, keyPrefix)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("invalid source key %q: %w", key, err)
	}
	return digest, nil
}

// exists reports whether path exists.
func exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
