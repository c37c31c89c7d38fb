// Package gamedrive extends the launch environment for installs living
// on secondary drives: the containing mount point is exposed to the
// Steam Linux Runtime and the loader search path is widened to cover
// libraries shipped next to the game.
package gamedrive

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"ulwgl/pkg/config"
)

// mountOf locates the containing mount point; a seam for tests.
var mountOf = mountPoint

// Enable fills STEAM_COMPAT_LIBRARY_PATHS and STEAM_RUNTIME_LIBRARY_PATH
// from the install location and the caller's LD_LIBRARY_PATH. The root
// filesystem is never announced as a game drive.
func Enable(env config.Env, environ map[string]string, log zerolog.Logger) {
	install := env[config.KeyInstallPath]
	if install == "" {
		return
	}

	// The walk starts above the install dir; the dir itself being a
	// mount point does not make it a game drive.
	if mount := mountOf(filepath.Dir(install)); mount != "" && mount != "/" {
		log.Debug().Str("mount", mount).Msg("Install lives on a game drive")
		env[config.KeyLibraryPaths] = appendPath(env[config.KeyLibraryPaths], mount)
	}

	paths := []string{}
	if ld := environ["LD_LIBRARY_PATH"]; ld != "" {
		paths = append(paths, filepath.SplitList(ld)...)
	}
	paths = append(paths, install, "/usr/lib", "/usr/lib32")
	env[config.KeyRuntimeLibraryPath] = strings.Join(dedupe(paths), ":")
}

// mountPoint walks up from path to the closest ancestor on whose parent
// a different device begins.
func mountPoint(path string) string {
	cur := filepath.Clean(path)
	for cur != "/" {
		parent := filepath.Dir(cur)
		curDev, ok1 := deviceOf(cur)
		parentDev, ok2 := deviceOf(parent)
		if !ok1 || !ok2 {
			return ""
		}
		if curDev != parentDev {
			return cur
		}
		cur = parent
	}
	return cur
}

func deviceOf(path string) (uint64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Dev), true
}

func appendPath(existing, entry string) string {
	if existing == "" {
		return entry
	}
	return existing + ":" + entry
}

// dedupe keeps the first occurrence of every entry, preserving order.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
