package flysto

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	return New(Config{BaseURL: ts.URL}), ts
}

func TestLoginSuccess(t *testing.T) {
	var gotEmail, gotPassword string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotEmail = r.PostFormValue("email")
		gotPassword = r.PostFormValue("password")
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if err := c.Login(context.Background(), "pilot@example.com", "secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotEmail != "pilot@example.com" || gotPassword != "secret" {
		t.Errorf("credentials not sent: %q / %q", gotEmail, gotPassword)
	}
}

func TestLoginStatusOKButNoCookie(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if err := c.Login(context.Background(), "pilot@example.com", "secret"); err == nil {
		t.Fatal("login without session cookie must fail")
	}
}

func TestLoginBadCredentials(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	if err := c.Login(context.Background(), "pilot@example.com", "wrong"); err == nil {
		t.Fatal("expected error on 401")
	}
}

func writeLog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUploadLog(t *testing.T) {
	var gotFilename string
	var gotBody []byte
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilename = r.URL.Query().Get("filename")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	path := writeLog(t, "LOG001.IGC", "igc track data")
	if err := c.UploadLog(context.Background(), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotFilename != "LOG001.IGC" {
		t.Errorf("expected filename param LOG001.IGC, got %q", gotFilename)
	}

	// The body is a zip archive containing exactly the one file.
	zr, err := zip.NewReader(bytes.NewReader(gotBody), int64(len(gotBody)))
	if err != nil {
		t.Fatalf("body is not a zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "LOG001.IGC" {
		t.Fatalf("unexpected archive contents: %+v", zr.File)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "igc track data" {
		t.Errorf("unexpected archived content: %q", data)
	}
}

func TestUploadLogSuccessCodes(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent} {
		c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		path := writeLog(t, "LOG001.IGC", "data")
		if err := c.UploadLog(context.Background(), path); err != nil {
			t.Errorf("status %d should succeed: %v", code, err)
		}
		ts.Close()
	}
}

func TestUploadLogServerError(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	path := writeLog(t, "LOG001.IGC", "data")
	if err := c.UploadLog(context.Background(), path); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestUploadLogMissingFile(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if err := c.UploadLog(context.Background(), filepath.Join(t.TempDir(), "nope.igc")); err == nil {
		t.Fatal("expected error for missing local file")
	}
}
