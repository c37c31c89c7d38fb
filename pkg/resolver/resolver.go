// Package resolver merges ad-hoc inputs or a TOML document into one
// canonical launch environment for a single run. Ambient process state is
// captured once into a Request; nothing here reads os.Environ directly.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"ulwgl/pkg/config"
)

var (
	// ErrMissingValue reports a required value that was never provided.
	ErrMissingValue = errors.New("required value not set")
	// ErrInvalidValue reports a provided value that fails validation.
	ErrInvalidValue = errors.New("invalid value")
	// ErrInvalidPath reports a path that is not the expected kind of entry.
	ErrInvalidPath = errors.New("invalid path")
	// ErrRuntimeNotFound reports that the runtime collaborator could not
	// supply a compatibility tool. Not retryable at this layer.
	ErrRuntimeNotFound = errors.New("compatibility tool could not be found in cache or compatibilitytools.d")
)

// idPattern matches launcher-assigned identifiers carrying an app id suffix.
var idPattern = regexp.MustCompile(`^ulwgl-\w+$`)

// RuntimeFetcher is the retrieval collaborator contract: populate the
// PROTONPATH member with a valid directory, or leave it empty to signal
// failure. Retries and network handling live behind this interface.
type RuntimeFetcher interface {
	Fetch(ctx context.Context, env config.Env) error
}

// Request is the one-time capture of process state feeding a resolution.
type Request struct {
	// Exe is the positional target executable ("" requests a
	// prefix-creation run). Ignored in config mode.
	Exe string
	// Opts are passthrough options from the command line.
	Opts []string
	// ConfigPath selects config mode when non-empty.
	ConfigPath string
	// Verb is a leading Proton verb promoted by the CLI, or "".
	Verb string
	// Environ is the captured process environment.
	Environ map[string]string
}

// Resolution is the finalized launch environment plus the launch inputs
// derived alongside it. Env is read-only after Resolve returns.
type Resolution struct {
	Env config.Env
	// Opts are the options appended verbatim to the invocation.
	Opts []string
	// UseSystemd selects the transient service unit subreaper.
	UseSystemd bool
	// Gamescope reports that a compositor session manages this launch.
	Gamescope bool
}

// Resolver produces a Resolution from a Request.
type Resolver struct {
	paths   *config.Paths
	runtime RuntimeFetcher
	log     zerolog.Logger
}

func New(paths *config.Paths, runtime RuntimeFetcher, log zerolog.Logger) *Resolver {
	return &Resolver{paths: paths, runtime: runtime, log: log}
}

// Resolve validates and completes the launch environment. It may create
// the prefix directory and trigger collaborator network or cache I/O.
func (r *Resolver) Resolve(ctx context.Context, req *Request) (*Resolution, error) {
	env := config.NewEnv()
	res := &Resolution{Env: env, Opts: req.Opts}

	configMode := req.ConfigPath != ""

	if configMode {
		doc, err := loadDocument(req.ConfigPath, r.paths.Home)
		if err != nil {
			return nil, err
		}
		applyDocument(env, doc, req.Environ)
		res.Opts = doc.LaunchArgs
		if doc.reaperSet && !doc.Reaper {
			res.UseSystemd = true
		}
	} else {
		if err := r.checkEnv(ctx, env, req.Environ); err != nil {
			return nil, err
		}
	}

	if env[config.KeyGameID] == "" {
		return nil, fmt.Errorf("%w: GAMEID", ErrMissingValue)
	}

	if err := r.ensurePrefix(env); err != nil {
		return nil, err
	}

	if configMode {
		if err := r.resolveProton(ctx, env, env[config.KeyProtonPath]); err != nil {
			return nil, err
		}
	}

	r.setEnv(env, req, configMode)

	if req.Environ[config.KeySystemd] == "1" {
		env[config.KeySystemd] = "1"
		res.UseSystemd = true
	}
	if req.Environ[config.KeyGamescope] == "1" {
		env[config.KeyGamescope] = "1"
		res.Gamescope = true
	}

	return res, nil
}

// checkEnv populates the environment from ambient variables. GAMEID is
// strictly required; the prefix and compatibility tool are defaulted.
func (r *Resolver) checkEnv(ctx context.Context, env config.Env, environ map[string]string) error {
	id, ok := environ[config.KeyGameID]
	if !ok || id == "" {
		return fmt.Errorf("%w: GAMEID", ErrMissingValue)
	}
	env[config.KeyGameID] = id

	pfx := environ[config.KeyWinePrefix]
	if pfx == "" {
		pfx = filepath.Join(r.paths.GamesRoot, config.IDPrefix+id)
	}
	env[config.KeyWinePrefix] = config.ExpandPath(pfx, r.paths.Home)

	if err := r.resolveProton(ctx, env, environ[config.KeyProtonPath]); err != nil {
		return err
	}

	env[config.KeyProtonVerb] = environ[config.KeyProtonVerb]
	env[config.KeyStore] = environ[config.KeyStore]
	return nil
}

// resolveProton fills PROTONPATH, in priority order: a name of an existing
// compatibilitytools.d subdirectory, an explicit existing directory, and
// finally the retrieval collaborator. An empty result is fatal here; this
// is the only surfacing point for a collaborator failure.
func (r *Resolver) resolveProton(ctx context.Context, env config.Env, requested string) error {
	if requested != "" {
		if dirExists(filepath.Join(r.paths.SteamCompat, requested)) {
			r.log.Debug().Str("proton", requested).Msg("Compatibility tool version selected")
			env[config.KeyProtonPath] = filepath.Join(r.paths.SteamCompat, requested)
			return nil
		}
		expanded := config.ExpandPath(requested, r.paths.Home)
		if dirExists(expanded) {
			env[config.KeyProtonPath] = expanded
			return nil
		}
		r.log.Debug().Str("proton", requested).Msg("Requested compatibility tool does not exist, delegating")
	}

	env[config.KeyProtonPath] = ""
	if r.runtime != nil {
		if err := r.runtime.Fetch(ctx, env); err != nil {
			r.log.Debug().Err(err).Msg("Runtime retrieval failed")
		}
	}

	if env[config.KeyProtonPath] == "" {
		return ErrRuntimeNotFound
	}
	return nil
}

// ensurePrefix creates the prefix directory when missing.
func (r *Resolver) ensurePrefix(env config.Env) error {
	pfx := config.ExpandPath(env[config.KeyWinePrefix], r.paths.Home)
	if pfx == "" {
		pfx = filepath.Join(r.paths.GamesRoot, env[config.KeyGameID])
	}
	if err := os.MkdirAll(pfx, 0755); err != nil {
		return fmt.Errorf("failed to create prefix %s: %w", pfx, err)
	}
	env[config.KeyWinePrefix] = pfx
	return nil
}

// setEnv finalizes verbs, identifiers and derived paths. After this the
// environment is read-only.
func (r *Resolver) setEnv(env config.Env, req *Request, configMode bool) {
	verb := req.Environ[config.KeyProtonVerb]
	if verb == "" {
		verb = req.Verb
	}
	if !config.ProtonVerbs[verb] {
		verb = config.DefaultVerb
	}
	env[config.KeyProtonVerb] = verb

	if !configMode {
		env[config.KeyExe] = req.Exe
	}

	if env[config.KeyExe] == "" {
		// An empty executable requests prefix creation only.
		env[config.KeyInstallPath] = ""
		env[config.KeyProtonVerb] = config.DefaultVerb
	} else {
		exe := config.ExpandPath(env[config.KeyExe], r.paths.Home)
		env[config.KeyExe] = exe
		env[config.KeyInstallPath] = filepath.Dir(exe)
	}

	if env[config.KeyStore] == "" {
		env[config.KeyStore] = req.Environ[config.KeyStore]
	}

	// Identifier aliases kept for older Proton builds.
	env[config.KeyLauncherID] = env[config.KeyGameID]
	env[config.KeyAppID] = "0"
	if idPattern.MatchString(env[config.KeyLauncherID]) {
		id := env[config.KeyLauncherID]
		env[config.KeyAppID] = id[strings.Index(id, "-")+1:]
	}
	env[config.KeySteamAppID] = env[config.KeyAppID]
	env[config.KeySteamGameID] = env[config.KeySteamAppID]

	env[config.KeyWinePrefix] = config.ExpandPath(env[config.KeyWinePrefix], r.paths.Home)
	env[config.KeyProtonPath] = config.ExpandPath(env[config.KeyProtonPath], r.paths.Home)
	env[config.KeyCompatData] = env[config.KeyWinePrefix]
	env[config.KeyShaderPath] = env[config.KeyCompatData] + "/shadercache"
	env[config.KeyToolPaths] = env[config.KeyProtonPath] + ":" + r.paths.LauncherLocal
	env[config.KeyMounts] = env[config.KeyToolPaths]
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
