package downloader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockTask struct {
	lastPercent int
	lastMsg     string
}

func (m *mockTask) Log(msg string)                      {}
func (m *mockTask) SetStage(name string, target string) {}
func (m *mockTask) Progress(percent int, message string) {
	m.lastPercent = percent
	m.lastMsg = message
}
func (m *mockTask) Done() {}

func TestHTTPDownload(t *testing.T) {
	content := []byte("pretend this is a proton tarball")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}))
	defer ts.Close()

	d := NewDefaultDownloader()
	buf := &bytes.Buffer{}
	task := &mockTask{}

	if err := d.Download(context.Background(), ts.URL, buf, task); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("Content mismatch")
	}

	if task.lastPercent != 100 {
		t.Errorf("Expected 100%% progress, got %d", task.lastPercent)
	}
}

func TestHTTPRedirect(t *testing.T) {
	// GitHub release assets redirect to a CDN host, so the client must
	// follow redirects.
	content := []byte("redirected content")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}))
	defer ts.Close()

	rs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL, http.StatusMovedPermanently)
	}))
	defer rs.Close()

	d := NewDefaultDownloader()
	buf := &bytes.Buffer{}

	if err := d.Download(context.Background(), rs.URL, buf, &mockTask{}); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("Content mismatch, got %q", buf.String())
	}
}

func TestHTTPSendsUserAgent(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := NewDefaultDownloader()
	if err := d.Download(context.Background(), ts.URL, &bytes.Buffer{}, &mockTask{}); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if got != userAgent {
		t.Errorf("User-Agent = %q, want %q", got, userAgent)
	}
}

func TestUnsupportedScheme(t *testing.T) {
	d := NewDefaultDownloader()
	err := d.Download(context.Background(), "ftp://example.com", &bytes.Buffer{}, &mockTask{})
	if err == nil || !bytes.Contains([]byte(err.Error()), []byte("unsupported scheme")) {
		t.Errorf("Expected unsupported scheme error, got: %v", err)
	}
}
