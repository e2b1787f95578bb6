package gallery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/aist/internal/identity"
	"github.com/schollz/progressbar/v3"
)

// Fetcher downloads gallery snapshots over HTTP.
type Fetcher struct {
	Client *http.Client
	// Progress receives the download bar. Nil disables it.
	Progress io.Writer
}

// DefaultFetcher reports progress on stderr.
var DefaultFetcher = &Fetcher{
	Client:   &http.Client{Timeout: 5 * time.Minute},
	Progress: os.Stderr,
}

// Fetch downloads url to dest with DefaultFetcher and loads it.
func Fetch(ctx context.Context, url, dest string) (*identity.Gallery, error) {
	return DefaultFetcher.Fetch(ctx, url, dest)
}

// Fetch downloads url next to dest and replaces dest only once the download
// decodes as a gallery. On any failure dest is left untouched.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (*identity.Gallery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download gallery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download gallery: %s returned %s", url, resp.Status)
	}

	out, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", dest, err)
	}
	tmp := out.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	var w io.Writer = out
	if f.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription("⬇️  Downloading gallery"),
			progressbar.OptionSetWriter(f.Progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(f.Progress) }),
		)
		defer bar.Finish()
		w = io.MultiWriter(out, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		out.Close()
		return nil, fmt.Errorf("download gallery: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("write %s: %w", tmp, err)
	}

	// dest is only replaced by a snapshot that decodes
	g, err := Load(tmp)
	if err != nil {
		return nil, fmt.Errorf("download gallery: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return nil, fmt.Errorf("write %s: %w", dest, err)
	}
	committed = true
	return g, nil
}
