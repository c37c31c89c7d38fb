// Package runtime retrieves and caches ULWGL-Proton builds. Release
// metadata comes from the GitHub API, with the project's releases page as
// an HTML fallback; archives and digests download concurrently and the
// archive is unpacked into the Steam compatibility tools directory only
// after its digest checks out. When no release source is reachable the
// newest cached build serves the run.
package runtime

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/itchyny/gojq"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ulwgl/pkg/archive"
	"ulwgl/pkg/cache"
	"ulwgl/pkg/config"
	"ulwgl/pkg/display"
	"ulwgl/pkg/downloader"
)

const (
	// BuildPrefix names the builds this launcher installs and recognizes
	// in the compatibility tools directory.
	BuildPrefix = "ULWGL-Proton"

	releasesAPI  = "https://api.github.com/repos/Open-Wine-Components/ULWGL-Proton/releases"
	releasesPage = "https://github.com/Open-Wine-Components/ULWGL-Proton/releases/latest"
)

// ErrNoRelease reports that neither a release source nor a cached build
// could supply a compatibility tool.
var ErrNoRelease = errors.New("no ULWGL-Proton release available")

// assetQuery pulls name and download location for every asset of the
// newest release.
var assetQuery = mustCompile(`.[0].assets[] | [.name, .browser_download_url]`)

// release is the asset pair a single build ships as.
type release struct {
	build   string // directory name after extraction, e.g. ULWGL-Proton-8.0-5
	archive string // tarball download location
	digest  string // sha512sum file download location
}

// Manager fetches compatibility tool builds on the Resolver's behalf.
type Manager struct {
	paths  config.Paths
	client *http.Client
	dl     downloader.Downloader
	disp   display.Display
	log    zerolog.Logger

	// Release source locations, fixed in production.
	api  string
	page string
}

func NewManager(paths config.Paths, dl downloader.Downloader, disp display.Display, log zerolog.Logger) *Manager {
	return &Manager{
		paths:  paths,
		client: http.DefaultClient,
		dl:     dl,
		disp:   disp,
		log:    log,
		api:    releasesAPI,
		page:   releasesPage,
	}
}

// Fetch installs the latest build if missing and points PROTONPATH at
// it. On lookup failure the newest cached build is used instead; only
// when the cache is empty too does PROTONPATH stay empty.
func (m *Manager) Fetch(ctx context.Context, env config.Env) error {
	rel, err := m.latestRelease(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Release lookup failed, trying cached builds")
		return m.useCached(env)
	}

	target := filepath.Join(m.paths.SteamCompat, rel.build)
	err = cache.Ensure(target, func() error {
		return m.install(ctx, rel)
	})
	if err != nil {
		m.log.Warn().Err(err).Str("build", rel.build).Msg("Build installation failed, trying cached builds")
		return m.useCached(env)
	}

	env[config.KeyProtonPath] = target
	return nil
}

// latestRelease resolves the newest build's asset pair, preferring the
// API and falling back to scraping the releases page.
func (m *Manager) latestRelease(ctx context.Context) (*release, error) {
	rel, apiErr := m.fromAPI(ctx)
	if apiErr == nil {
		return rel, nil
	}
	m.log.Debug().Err(apiErr).Msg("Release API unavailable, scraping releases page")

	rel, pageErr := m.fromPage(ctx)
	if pageErr != nil {
		return nil, fmt.Errorf("%w: api: %v, page: %v", ErrNoRelease, apiErr, pageErr)
	}
	return rel, nil
}

func (m *Manager) get(ctx context.Context, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s for %s", resp.Status, uri)
	}
	return resp, nil
}

func (m *Manager) fromAPI(ctx context.Context) (*release, error) {
	resp, err := m.get(ctx, m.api)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var releases any
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("failed to decode release listing: %w", err)
	}

	rel := &release{}
	iter := assetQuery.RunWithContext(ctx, releases)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("release query failed: %w", err)
		}
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		name, _ := pair[0].(string)
		loc, _ := pair[1].(string)
		rel.note(name, loc)
	}
	return rel.validate()
}

// fromPage scrapes asset links off the releases page. GitHub renders the
// same asset names the API reports, so the selection logic is shared.
func (m *Manager) fromPage(ctx context.Context) (*release, error) {
	resp, err := m.get(ctx, m.page)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse releases page: %w", err)
	}

	base, err := url.Parse(m.page)
	if err != nil {
		return nil, err
	}

	rel := &release{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		rel.note(filepath.Base(abs.Path), abs.String())
	})
	return rel.validate()
}

// note records an asset when its name identifies the tarball or digest.
func (r *release) note(name, location string) {
	switch {
	case strings.HasPrefix(name, BuildPrefix) && strings.HasSuffix(name, ".tar.gz"):
		r.archive = location
		r.build = strings.TrimSuffix(name, ".tar.gz")
	case strings.HasSuffix(name, "sha512sum"):
		r.digest = location
	}
}

func (r *release) validate() (*release, error) {
	if r.archive == "" || r.digest == "" {
		return nil, fmt.Errorf("%w: release is missing its archive or digest asset", ErrNoRelease)
	}
	return r, nil
}

// install downloads the asset pair, verifies the archive digest and
// unpacks the build. The tarball never survives in the download
// directory past a successful install.
func (m *Manager) install(ctx context.Context, rel *release) error {
	if err := os.MkdirAll(m.paths.DownloadDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(m.paths.SteamCompat, 0o755); err != nil {
		return err
	}

	tarball := filepath.Join(m.paths.DownloadDir, rel.build+".tar.gz")
	task := m.disp.StartTask(rel.build)
	defer task.Done()

	var sum []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := os.Create(tarball)
		if err != nil {
			return err
		}
		defer f.Close()
		task.SetStage("download", rel.archive)
		return m.dl.Download(gctx, rel.archive, f, task)
	})
	g.Go(func() error {
		var buf strings.Builder
		if err := m.dl.Download(gctx, rel.digest, &buf, display.NullTask()); err != nil {
			return err
		}
		sum = []byte(buf.String())
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	task.SetStage("verify", rel.build)
	if err := verifyDigest(tarball, sum); err != nil {
		os.Remove(tarball)
		return err
	}

	task.SetStage("extract", m.paths.SteamCompat)
	if err := archive.Extract(tarball, m.paths.SteamCompat); err != nil {
		return err
	}
	task.Log("Installed " + rel.build)
	return os.Remove(tarball)
}

// verifyDigest checks the tarball against the published sha512sum
// content, which carries "<hex>  <filename>" lines.
func verifyDigest(tarball string, sum []byte) error {
	want := ""
	base := filepath.Base(tarball)
	for _, line := range strings.Split(string(sum), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == base {
			want = fields[0]
			break
		}
	}
	if want == "" {
		return fmt.Errorf("digest file does not mention %s", base)
	}

	f, err := os.Open(tarball)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return fmt.Errorf("digest mismatch for %s: got %s, want %s", base, got, want)
	}
	return nil
}

// useCached points PROTONPATH at the newest installed build, by version
// order of the directory names.
func (m *Manager) useCached(env config.Env) error {
	entries, err := os.ReadDir(m.paths.SteamCompat)
	if err != nil {
		return ErrNoRelease
	}

	builds := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), BuildPrefix) {
			builds = append(builds, e.Name())
		}
	}
	if len(builds) == 0 {
		return ErrNoRelease
	}

	sort.Strings(builds)
	newest := builds[len(builds)-1]
	m.log.Info().Str("build", newest).Msg("Using cached compatibility tool")
	env[config.KeyProtonPath] = filepath.Join(m.paths.SteamCompat, newest)
	return nil
}

func mustCompile(src string) *gojq.Code {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		panic(err)
	}
	return code
}
