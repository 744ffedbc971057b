package flashair

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{
		Host:    strings.TrimPrefix(ts.URL, "http://"),
		Timeout: 5 * time.Second,
	})
	return c, ts
}

const listing = "WLANSD_FILELIST\r\n" +
	"/DATALOG,LOG001.IGC,1024,32,21845,43690\r\n" +
	"/DATALOG,LOG002.IGC,2048,32,21845,43691\r\n" +
	"/DATALOG,OLD,0,16,21845,43690\r\n" +
	"garbage line\r\n" +
	"/DATALOG,BADSIZE.IGC,huge,32,21845,43690\r\n"

func TestList(t *testing.T) {
	var gotQuery string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(listing))
	}))
	defer ts.Close()

	files, err := c.List(context.Background(), "/DATALOG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(gotQuery, "op=100") || !strings.Contains(gotQuery, "DIR=%2FDATALOG") {
		t.Errorf("unexpected query: %s", gotQuery)
	}

	// Two files, one directory; malformed lines skipped.
	if len(files) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(files), files)
	}
	if files[0].Name != "LOG001.IGC" || files[0].Size != 1024 || files[0].Dir {
		t.Errorf("unexpected first entry: %+v", files[0])
	}
	if files[0].Modified != 21845 {
		t.Errorf("expected modified 21845, got %d", files[0].Modified)
	}
	if !files[2].Dir {
		t.Errorf("expected OLD to decode as directory: %+v", files[2])
	}
}

func TestListPreservesOrder(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listing))
	}))
	defer ts.Close()

	files, err := c.List(context.Background(), "/DATALOG")
	if err != nil {
		t.Fatal(err)
	}
	if files[0].Name != "LOG001.IGC" || files[1].Name != "LOG002.IGC" {
		t.Errorf("listing order not preserved: %+v", files)
	}
}

func TestListBadStatus(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	if _, err := c.List(context.Background(), "/DATALOG"); err == nil {
		t.Fatal("expected error on 400")
	}
}

func TestListTransportError(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused

	if _, err := c.List(context.Background(), "/DATALOG"); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestDownload(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/DATALOG/LOG001.IGC" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("igc track data"))
	}))
	defer ts.Close()

	// Parent directories must be created as needed.
	local := filepath.Join(t.TempDir(), "repo", "LOG001.IGC")
	if err := c.Download(context.Background(), "/DATALOG/LOG001.IGC", local); err != nil {
		t.Fatalf("download: %v", err)
	}

	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "igc track data" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestDownloadBadStatus(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	local := filepath.Join(t.TempDir(), "LOG404.IGC")
	if err := c.Download(context.Background(), "/DATALOG/LOG404.IGC", local); err == nil {
		t.Fatal("expected error on 404")
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Error("no file should be written on a failed download")
	}
}
