package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"
)

// Fetcher resolves a source locator into a byte stream. Locators starting
// with http:// or https:// are fetched over HTTP, everything else is read
// from disk relative to BaseDir.
type Fetcher struct {
	BaseDir   string
	HTTP      *http.Client
	Limiter   *rate.Limiter // shared by all remote fetches
	UserAgent string
}

// NewFetcher returns a fetcher allowing rps remote requests per second.
func NewFetcher(baseDir string, rps float64, burst int) *Fetcher {
	return &Fetcher{
		BaseDir:   baseDir,
		HTTP:      &http.Client{},
		Limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		UserAgent: "healthatlas/0.1",
	}
}

// Open returns a reader for the locator. The caller must close it. Remote
// fetches are bounded only by ctx.
func (f *Fetcher) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return f.openHTTP(ctx, locator)
	}
	return f.openFile(ctx, strings.TrimPrefix(locator, "file://"))
}

func (f *Fetcher) openFile(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) && f.BaseDir != "" {
		path = filepath.Join(f.BaseDir, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return file, nil
}

func (f *Fetcher) openHTTP(ctx context.Context, url string) (io.ReadCloser, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return resp.Body, nil
}
