package gamedrive

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"ulwgl/pkg/config"
)

func TestEnableRuntimeLibraryPath(t *testing.T) {
	env := config.NewEnv()
	env[config.KeyInstallPath] = t.TempDir()

	Enable(env, map[string]string{"LD_LIBRARY_PATH": "/opt/libs:/usr/lib"}, zerolog.Nop())

	got := strings.Split(env[config.KeyRuntimeLibraryPath], ":")
	want := []string{"/opt/libs", "/usr/lib", env[config.KeyInstallPath], "/usr/lib32"}
	if len(got) != len(want) {
		t.Fatalf("STEAM_RUNTIME_LIBRARY_PATH = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEnableDeduplicates(t *testing.T) {
	env := config.NewEnv()
	install := t.TempDir()
	env[config.KeyInstallPath] = install

	Enable(env, map[string]string{"LD_LIBRARY_PATH": install + ":" + install}, zerolog.Nop())

	if n := strings.Count(env[config.KeyRuntimeLibraryPath], install); n != 1 {
		t.Errorf("install path appears %d times, want 1: %q", n, env[config.KeyRuntimeLibraryPath])
	}
}

func TestEnableEmptyInstall(t *testing.T) {
	env := config.NewEnv()
	Enable(env, nil, zerolog.Nop())

	if env[config.KeyRuntimeLibraryPath] != "" {
		t.Errorf("STEAM_RUNTIME_LIBRARY_PATH = %q, want empty for prefix-creation runs", env[config.KeyRuntimeLibraryPath])
	}
	if env[config.KeyLibraryPaths] != "" {
		t.Errorf("STEAM_COMPAT_LIBRARY_PATHS = %q, want empty", env[config.KeyLibraryPaths])
	}
}

func TestEnableAppendsMountAfterExisting(t *testing.T) {
	defer func(orig func(string) string) { mountOf = orig }(mountOf)
	var walked string
	mountOf = func(path string) string {
		walked = path
		return "/mnt/games"
	}

	env := config.NewEnv()
	install := t.TempDir()
	env[config.KeyInstallPath] = install
	env[config.KeyLibraryPaths] = "/srv/steamlib"

	Enable(env, nil, zerolog.Nop())

	// The existing library list keeps priority; the drive goes last.
	if got := env[config.KeyLibraryPaths]; got != "/srv/steamlib:/mnt/games" {
		t.Errorf("STEAM_COMPAT_LIBRARY_PATHS = %q, want %q", got, "/srv/steamlib:/mnt/games")
	}
	// The install dir itself is not a mount candidate.
	if walked != filepath.Dir(install) {
		t.Errorf("walk started at %q, want %q", walked, filepath.Dir(install))
	}
}

func TestEnableSkipsRootMount(t *testing.T) {
	defer func(orig func(string) string) { mountOf = orig }(mountOf)
	mountOf = func(string) string { return "/" }

	env := config.NewEnv()
	env[config.KeyInstallPath] = t.TempDir()

	Enable(env, nil, zerolog.Nop())

	if env[config.KeyLibraryPaths] != "" {
		t.Errorf("STEAM_COMPAT_LIBRARY_PATHS = %q, want empty for root mount", env[config.KeyLibraryPaths])
	}
}

func TestMountPointRoot(t *testing.T) {
	if got := mountPoint("/"); got != "/" {
		t.Errorf("mountPoint(/) = %q, want /", got)
	}
}
