package runtime

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"ulwgl/pkg/config"
	"ulwgl/pkg/display"
	"ulwgl/pkg/downloader"
)

const testBuild = "ULWGL-Proton-9.0-1"

// buildTarball produces a gzipped tar holding <build>/proton.
func buildTarball(t *testing.T, build string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	dirs := []string{build}
	for _, d := range dirs {
		if err := tw.WriteHeader(&tar.Header{
			Name:     d + "/",
			Typeflag: tar.TypeDir,
			Mode:     0o755,
		}); err != nil {
			t.Fatal(err)
		}
	}
	body := []byte("#!/bin/sh\n")
	if err := tw.WriteHeader(&tar.Header{
		Name:     build + "/proton",
		Typeflag: tar.TypeReg,
		Mode:     0o755,
		Size:     int64(len(body)),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(body); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// releaseServer serves a release listing with the tarball and its digest.
func releaseServer(t *testing.T, tarball []byte, digest string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/releases", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"tag_name": "9.0-1", "assets": [
			{"name": %q, "browser_download_url": %q},
			{"name": %q, "browser_download_url": %q}
		]}]`,
			testBuild+".tar.gz", srv.URL+"/dl/"+testBuild+".tar.gz",
			testBuild+".sha512sum", srv.URL+"/dl/"+testBuild+".sha512sum")
	})
	mux.HandleFunc("/dl/"+testBuild+".tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(tarball)
	})
	mux.HandleFunc("/dl/"+testBuild+".sha512sum", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s  %s.tar.gz\n", digest, testBuild)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testManager(t *testing.T, api string) (*Manager, config.Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := config.Paths{
		SteamCompat: filepath.Join(dir, "compatibilitytools.d"),
		DownloadDir: filepath.Join(dir, "downloads"),
	}
	m := NewManager(paths, downloader.NewDefaultDownloader(), display.NullDisplay(), zerolog.Nop())
	m.api = api
	m.page = api // page fallback hits the same dead end in failure tests
	return m, paths
}

func sha512Hex(b []byte) string {
	sum := sha512.Sum512(b)
	return hex.EncodeToString(sum[:])
}

func TestFetchInstallsLatest(t *testing.T) {
	tarball := buildTarball(t, testBuild)
	srv := releaseServer(t, tarball, sha512Hex(tarball))
	m, paths := testManager(t, srv.URL+"/releases")

	env := config.NewEnv()
	if err := m.Fetch(context.Background(), env); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := filepath.Join(paths.SteamCompat, testBuild)
	if env[config.KeyProtonPath] != want {
		t.Errorf("PROTONPATH = %q, want %q", env[config.KeyProtonPath], want)
	}
	if _, err := os.Stat(filepath.Join(want, "proton")); err != nil {
		t.Errorf("proton binary missing after install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(paths.DownloadDir, testBuild+".tar.gz")); !os.IsNotExist(err) {
		t.Errorf("tarball not cleaned up: %v", err)
	}
}

func TestFetchRejectsBadDigest(t *testing.T) {
	tarball := buildTarball(t, testBuild)
	srv := releaseServer(t, tarball, sha512Hex([]byte("tampered")))
	m, _ := testManager(t, srv.URL+"/releases")

	env := config.NewEnv()
	err := m.Fetch(context.Background(), env)
	if !errors.Is(err, ErrNoRelease) {
		t.Fatalf("Fetch() error = %v, want ErrNoRelease", err)
	}
	if env[config.KeyProtonPath] != "" {
		t.Errorf("PROTONPATH = %q, want empty after digest mismatch", env[config.KeyProtonPath])
	}
}

func TestFetchSkipsInstalledBuild(t *testing.T) {
	tarball := buildTarball(t, testBuild)
	srv := releaseServer(t, tarball, sha512Hex(tarball))
	m, paths := testManager(t, srv.URL+"/releases")

	// Pre-install the build; no asset download should be needed.
	installed := filepath.Join(paths.SteamCompat, testBuild)
	if err := os.MkdirAll(installed, 0o755); err != nil {
		t.Fatal(err)
	}
	m.dl = failingDownloader{}

	env := config.NewEnv()
	if err := m.Fetch(context.Background(), env); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if env[config.KeyProtonPath] != installed {
		t.Errorf("PROTONPATH = %q, want %q", env[config.KeyProtonPath], installed)
	}
}

func TestFetchOfflineUsesNewestCached(t *testing.T) {
	m, paths := testManager(t, "http://127.0.0.1:1/releases")
	for _, build := range []string{"ULWGL-Proton-8.0-5", "ULWGL-Proton-9.0-2"} {
		if err := os.MkdirAll(filepath.Join(paths.SteamCompat, build), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	env := config.NewEnv()
	if err := m.Fetch(context.Background(), env); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want := filepath.Join(paths.SteamCompat, "ULWGL-Proton-9.0-2")
	if env[config.KeyProtonPath] != want {
		t.Errorf("PROTONPATH = %q, want %q", env[config.KeyProtonPath], want)
	}
}

func TestFetchOfflineEmptyCache(t *testing.T) {
	m, _ := testManager(t, "http://127.0.0.1:1/releases")

	env := config.NewEnv()
	err := m.Fetch(context.Background(), env)
	if !errors.Is(err, ErrNoRelease) {
		t.Fatalf("Fetch() error = %v, want ErrNoRelease", err)
	}
	if env[config.KeyProtonPath] != "" {
		t.Errorf("PROTONPATH = %q, want empty", env[config.KeyProtonPath])
	}
}

func TestLatestReleaseFromPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/releases", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	})
	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<a href="/download/%s.tar.gz">archive</a>
			<a href="/download/%s.sha512sum">digest</a>
		</body></html>`, testBuild, testBuild)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, _ := testManager(t, srv.URL+"/releases")
	m.page = srv.URL + "/latest"

	rel, err := m.latestRelease(context.Background())
	if err != nil {
		t.Fatalf("latestRelease() error = %v", err)
	}
	if rel.build != testBuild {
		t.Errorf("build = %q, want %q", rel.build, testBuild)
	}
	if rel.archive != srv.URL+"/download/"+testBuild+".tar.gz" {
		t.Errorf("archive = %q", rel.archive)
	}
	if rel.digest != srv.URL+"/download/"+testBuild+".sha512sum" {
		t.Errorf("digest = %q", rel.digest)
	}
}

type failingDownloader struct{}

func (failingDownloader) Download(ctx context.Context, uri string, w io.Writer, task display.Task) error {
	return errors.New("unexpected download")
}
