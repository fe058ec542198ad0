// Package fetch downloads auxiliary layers - elevation models, building
// footprints, vector masks - into a working directory before a run.
package fetch

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads one remote object.
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
	DownloadToFile(ctx context.Context, url, path string) (int64, error)
}

// Source is one configured layer to download.
type Source struct {
	// Name is the destination file name inside the working directory.
	// Empty means the base name of the URL path.
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
}

// dest resolves the destination file name.
func (s Source) dest() (string, error) {
	if s.Name != "" {
		return s.Name, nil
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: parse url %s", s.URL)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", eris.Errorf("fetch: cannot derive a file name from %s; set name explicitly", s.URL)
	}
	return name, nil
}

// Client routes downloads to the protocol fetcher for each URL scheme.
type Client struct {
	HTTP *HTTP
	FTP  *FTP
}

// NewClient builds a client with both protocol fetchers configured.
func NewClient(opts Options) *Client {
	return &Client{
		HTTP: NewHTTP(opts),
		FTP:  NewFTP(opts.Timeout),
	}
}

func (c *Client) fetcherFor(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return c.HTTP, nil
	case "ftp":
		return c.FTP, nil
	default:
		return nil, eris.Errorf("fetch: unsupported scheme %q in %s", u.Scheme, rawURL)
	}
}

// Outcome reports what happened to one source.
type Outcome struct {
	Source  Source
	Path    string
	Bytes   int64
	Changed bool
	Err     error
}

// FetchAll downloads every source into dir with bounded concurrency.
// Sources are isolated from each other: a failing download is recorded in
// its slot and the rest keep going. HTTP sources that advertise ETags are
// skipped when unchanged since the previous fetch.
func (c *Client) FetchAll(ctx context.Context, sources []Source, dir string, concurrency int) []Outcome {
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]Outcome, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, src := range sources {
		g.Go(func() error {
			outcomes[i] = c.fetchOne(ctx, src, dir)
			if err := outcomes[i].Err; err != nil {
				zap.L().Error("source download failed",
					zap.String("url", src.URL),
					zap.Error(err),
				)
			}
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		zap.L().Warn("fetch interrupted", zap.Error(err))
	}
	return outcomes
}

func (c *Client) fetchOne(ctx context.Context, src Source, dir string) Outcome {
	out := Outcome{Source: src}

	name, err := src.dest()
	if err != nil {
		out.Err = err
		return out
	}
	out.Path = filepath.Join(dir, name)

	f, err := c.fetcherFor(src.URL)
	if err != nil {
		out.Err = err
		return out
	}

	// The HTTP path can skip unchanged remotes; FTP has nothing comparable.
	if h, ok := f.(*HTTP); ok {
		out.Bytes, out.Changed, out.Err = h.Mirror(ctx, src.URL, out.Path)
		return out
	}

	out.Bytes, out.Err = f.DownloadToFile(ctx, src.URL, out.Path)
	out.Changed = out.Err == nil
	return out
}

// Failed reports how many outcomes ended in an error.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// writeFile streams a body to a file and reports bytes written.
func writeFile(path string, body io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetch: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "fetch: write file")
	}
	return n, nil
}
