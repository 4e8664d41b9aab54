package pricelist

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridianhealth/claims-cli/internal/resilience"
)

// FTPOptions configures the FTP fetcher. Empty credentials fall back to
// anonymous login.
type FTPOptions struct {
	Timeout  time.Duration
	User     string
	Password string
	// Retry governs transfer attempts; the zero value uses the defaults.
	Retry resilience.RetryConfig
}

// FTPFetcher downloads price list workbooks over FTP.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	return &FTPFetcher{opts: opts}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "pricelist: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("pricelist: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("pricelist: empty path in ftp url")
	}

	return host, path, nil
}

// ftpConnReader wraps an FTP response and connection so that closing the
// reader also closes the FTP response and disconnects from the server.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "pricelist: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "pricelist: quit ftp connection")
	}
	return nil
}

// Download connects to the FTP server, retrieves the workbook, and returns a
// reader. The caller must close the returned ReadCloser to release the
// connection.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	host, path, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("pricelist: ftp connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "pricelist: ftp dial")
	}

	if err := conn.Login(f.opts.User, f.opts.Password); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "pricelist: ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "pricelist: ftp retrieve")
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// Fetch downloads the FTP URL into localDir and returns the local path.
// Transient transfer failures are retried with backoff; each attempt restarts
// the download from scratch.
func (f *FTPFetcher) Fetch(ctx context.Context, ftpURL, localDir string) (string, error) {
	_, name, err := parseFTPURL(ftpURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", eris.Wrap(err, "pricelist: create local dir")
	}
	local := filepath.Join(localDir, filepath.Base(name))

	retry := f.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("ftp", "fetch_pricelist")
	}
	err = resilience.Do(ctx, retry, func(ctx context.Context) error {
		return f.fetchOnce(ctx, ftpURL, local)
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

func (f *FTPFetcher) fetchOnce(ctx context.Context, ftpURL, local string) error {
	rc, err := f.Download(ctx, ftpURL)
	if err != nil {
		return err
	}
	defer rc.Close()

	file, err := os.Create(local)
	if err != nil {
		return eris.Wrap(err, "pricelist: create file")
	}
	defer file.Close()

	if _, err := io.Copy(file, rc); err != nil {
		return eris.Wrap(err, "pricelist: write file")
	}
	return nil
}
