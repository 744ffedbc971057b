// Package flashair lists and downloads log files from a FlashAir Wi-Fi SD
// card over its local command.cgi protocol.
package flashair

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shayo/flysto-sync/internal/logging"
	"github.com/shayo/flysto-sync/internal/metrics"
)

// Directory bit in the FlashAir attribute bitmask.
const attrDirectory = 0x10

// File is one entry from the card's directory listing.
type File struct {
	Name     string
	Size     int64
	Modified int64
	Dir      bool
}

// Client talks to the card's HTTP endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	Host    string // card IP or hostname
	Timeout time.Duration
}

// New creates a FlashAir client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL: "http://" + cfg.Host,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
	}
}

// List fetches the directory listing for dir. The response is line-oriented:
// a header line (discarded), then one comma-delimited record per entry with
// at least six fields — parent, name, size, attribute bitmask, date, time.
// Malformed lines are skipped.
func (c *Client) List(ctx context.Context, dir string) ([]File, error) {
	u := c.baseURL + "/command.cgi?op=100&DIR=" + url.QueryEscape(dir)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: card returned %d", dir, resp.StatusCode)
	}

	var files []File
	scanner := bufio.NewScanner(resp.Body)
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if first {
			first = false // header line, e.g. WLANSD_FILELIST
			continue
		}
		f, ok := parseLine(line)
		if !ok {
			if line != "" {
				logging.Debug("skipping malformed listing line", zap.String("line", line))
			}
			continue
		}
		files = append(files, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return files, nil
}

func parseLine(line string) (File, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return File{}, false
	}

	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return File{}, false
	}
	attr, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return File{}, false
	}
	modified, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return File{}, false
	}

	return File{
		Name:     fields[1],
		Size:     size,
		Modified: modified,
		Dir:      attr&attrDirectory != 0,
	}, true
}

// Download streams the remote resource at remotePath to localPath, creating
// parent directories as needed. It writes the destination directly: a crash
// mid-transfer leaves a truncated file, which the next cycle overwrites
// because the ledger is only marked after success.
func (c *Client) Download(ctx context.Context, remotePath, localPath string) error {
	if !strings.HasPrefix(remotePath, "/") {
		remotePath = "/" + remotePath
	}
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+remotePath, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordDownload(0, false)
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordDownload(0, false)
		return fmt.Errorf("download %s: card returned %d", remotePath, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		metrics.RecordDownload(0, false)
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		metrics.RecordDownload(0, false)
		return fmt.Errorf("download %s: %w", remotePath, err)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		metrics.RecordDownload(n, false)
		return fmt.Errorf("download %s: %w", remotePath, err)
	}

	metrics.RecordDownload(n, true)
	logging.Info("downloaded log", zap.String("file", filepath.Base(localPath)), zap.Int64("bytes", n))
	return nil
}
