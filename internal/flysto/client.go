// Package flysto authenticates to and uploads log files to the Flysto
// archive service. Authentication is session-based: one login per sync
// cycle, tracked through the client's cookie jar.
package flysto

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shayo/flysto-sync/internal/logging"
	"github.com/shayo/flysto-sync/internal/metrics"
)

// sessionCookie is the cookie the service sets on a successful login. Its
// presence, not just the status code, is what confirms the session.
const sessionCookie = "session"

// Client talks to the archive service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a Flysto client with a fresh session.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
	}
}

// Login performs the session login. Success requires both an OK status and
// the session cookie landing in the jar. There is no retry: the caller
// treats failure as "upload phase unavailable this cycle".
func (c *Client) Login(ctx context.Context, email, password string) error {
	form := url.Values{
		"email":    {email},
		"password": {password},
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/session", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login: service returned %d", resp.StatusCode)
	}
	if !c.hasSession() {
		return fmt.Errorf("login: no %s cookie in response", sessionCookie)
	}

	logging.Info("archive session established")
	return nil
}

func (c *Client) hasSession() bool {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	for _, ck := range c.httpClient.Jar.Cookies(u) {
		if ck.Name == sessionCookie && ck.Value != "" {
			return true
		}
	}
	return false
}

// UploadLog compresses the single file at path into an in-memory zip archive
// and uploads it, tagged with the filename as a request parameter. 200, 201
// and 204 all count as success; anything else leaves the file unmarked for
// retry next cycle.
func (c *Client) UploadLog(ctx context.Context, path string) error {
	name := filepath.Base(path)

	body, err := zipFile(path)
	if err != nil {
		metrics.RecordUpload(0, false)
		return fmt.Errorf("upload %s: %w", name, err)
	}
	size := int64(body.Len())

	u := c.baseURL + "/api/logs/upload?filename=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, "POST", u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/zip")
	req.ContentLength = size

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpload(0, false)
		return fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		metrics.RecordUpload(size, true)
		logging.Info("uploaded log", zap.String("file", name), zap.Int64("bytes", size))
		return nil
	default:
		metrics.RecordUpload(0, false)
		return fmt.Errorf("upload %s: service returned %d", name, resp.StatusCode)
	}
}

func zipFile(path string) (*bytes.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
