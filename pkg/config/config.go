// Package config manages the well-known directories and the launch
// environment key set used across the launcher. It follows XDG
// specifications for cache and data locations.
package config

import (
	"fmt"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// Launch environment keys. The environment is a total mapping: every key
// below is present for the lifetime of a run, unset members hold "".
const (
	KeyWinePrefix         = "WINEPREFIX"
	KeyGameID             = "GAMEID"
	KeyProtonPath         = "PROTONPATH"
	KeyProtonVerb         = "PROTON_VERB"
	KeyExe                = "EXE"
	KeyStore              = "STORE"
	KeyLauncherID         = "ULWGL_ID"
	KeyAppID              = "STEAM_COMPAT_APP_ID"
	KeySteamAppID         = "SteamAppId"
	KeySteamGameID        = "SteamGameId"
	KeyCompatData         = "STEAM_COMPAT_DATA_PATH"
	KeyShaderPath         = "STEAM_COMPAT_SHADER_PATH"
	KeyToolPaths          = "STEAM_COMPAT_TOOL_PATHS"
	KeyMounts             = "STEAM_COMPAT_MOUNTS"
	KeyInstallPath        = "STEAM_COMPAT_INSTALL_PATH"
	KeyLibraryPaths       = "STEAM_COMPAT_LIBRARY_PATHS"
	KeyClientInstallPath  = "STEAM_COMPAT_CLIENT_INSTALL_PATH"
	KeyRuntimeLibraryPath = "STEAM_RUNTIME_LIBRARY_PATH"
	KeyCrashReportDir     = "PROTON_CRASH_REPORT_DIR"
	KeyFontconfigPath     = "FONTCONFIG_PATH"
	KeySystemd            = "ULWGL_SYSTEMD"
	KeyGamescope          = "ULWGL_GAMESCOPE"
)

// IDPrefix is the prefix of launcher-assigned game identifiers. Identifiers
// of the form "ulwgl-<suffix>" carry the numeric Steam app id as suffix.
const IDPrefix = "ulwgl-"

// DefaultVerb is assigned when no recognized Proton verb was requested.
const DefaultVerb = "waitforexitandrun"

// ProtonVerbs is the set of verbs the compatibility tool understands.
var ProtonVerbs = map[string]bool{
	"waitforexitandrun": true,
	"run":               true,
	"runinprefix":       true,
	"destroyprefix":     true,
	"getcompatpath":     true,
	"getnativepath":     true,
}

// Env is the launch environment: a fixed, total mapping from key to string.
// It is created once per run, mutated only while resolving, and treated as
// read-only afterwards.
type Env map[string]string

// NewEnv returns a launch environment with every member set to the empty
// string, except the crash report directory which is fixed.
func NewEnv() Env {
	return Env{
		KeyWinePrefix:         "",
		KeyGameID:             "",
		KeyProtonPath:         "",
		KeyProtonVerb:         "",
		KeyExe:                "",
		KeyStore:              "",
		KeyLauncherID:         "",
		KeyAppID:              "",
		KeySteamAppID:         "",
		KeySteamGameID:        "",
		KeyCompatData:         "",
		KeyShaderPath:         "",
		KeyToolPaths:          "",
		KeyMounts:             "",
		KeyInstallPath:        "",
		KeyLibraryPaths:       "",
		KeyClientInstallPath:  "",
		KeyRuntimeLibraryPath: "",
		KeyCrashReportDir:     "/tmp/ULWGL_crashreports",
		KeyFontconfigPath:     "",
		KeySystemd:            "",
		KeyGamescope:          "",
	}
}

// Environ flattens the mapping into "key=value" pairs suitable for exec.Cmd.
// Every key is emitted, including empty ones, so the child sees the same
// total mapping the resolver produced.
func (e Env) Environ() []string {
	out := make([]string, 0, len(e))
	for k, v := range e {
		out = append(out, k+"="+v)
	}
	return out
}

// Paths holds the well-known directories the launcher works with.
// Immutable after Init.
type Paths struct {
	// SteamCompat is the Steam compatibilitytools.d directory where
	// compatibility tool builds are installed.
	SteamCompat string
	// LauncherLocal is the user-writable launcher directory holding the
	// entry point, the reaper binary and the first-run marker.
	LauncherLocal string
	// GamesRoot is the per-user directory under which default prefixes
	// are created, keyed by game id.
	GamesRoot string
	// DownloadDir is the cache directory for runtime archives.
	DownloadDir string
	// Home is the user's home directory from the password database.
	Home string
	// User is the login name from the password database.
	User string
}

// Init resolves the well-known paths from XDG base directories and the
// password database entry of the current user.
func Init() (*Paths, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	return &Paths{
		SteamCompat:   filepath.Join(xdg.DataHome, "Steam", "compatibilitytools.d"),
		LauncherLocal: filepath.Join(xdg.DataHome, "ULWGL"),
		GamesRoot:     filepath.Join(u.HomeDir, "Games", "ULWGL"),
		DownloadDir:   filepath.Join(xdg.CacheHome, "ulwgl", "downloads"),
		Home:          u.HomeDir,
		User:          u.Username,
	}, nil
}

// ExpandPath returns path as an absolute, tilde-expanded POSIX path.
// Relative paths are left for filepath.Abs to anchor at the working
// directory; "~" and "~/" expand against home.
func ExpandPath(path, home string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		path = filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
