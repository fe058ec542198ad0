package fetch

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTP downloads files from anonymous FTP servers. Elevation tiles are still
// commonly published this way.
type FTP struct {
	timeout time.Duration
}

// NewFTP builds an FTP fetcher.
func NewFTP(timeout time.Duration) *FTP {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &FTP{timeout: timeout}
}

// splitFTPURL extracts the dial address (host with port) and remote path.
func splitFTPURL(rawURL string) (addr, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "fetch: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("fetch: expected ftp scheme, got %q", u.Scheme)
	}

	addr = u.Host
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, "21")
	}
	if u.Path == "" {
		return "", "", eris.Errorf("fetch: ftp url %s has no path", rawURL)
	}
	return addr, u.Path, nil
}

// ftpReader ties the data stream to its control connection so closing the
// one closes the other.
type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) { return r.resp.Read(p) }

func (r *ftpReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "fetch: close ftp stream")
	}
	return eris.Wrap(quitErr, "fetch: quit ftp connection")
}

// Download retrieves a file anonymously. The caller must close the reader
// to release the connection.
func (f *FTP) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	addr, path, err := splitFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("addr", addr), zap.String("path", path))

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: ftp dial")
	}
	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "fetch: ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "fetch: ftp retrieve")
	}
	return &ftpReader{resp: resp, conn: conn}, nil
}

// DownloadToFile retrieves a file into path and reports bytes written.
func (f *FTP) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	rc, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	return writeFile(path, rc)
}
