package command

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ulwgl/pkg/config"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func testEnv(t *testing.T, protonDir string) config.Env {
	t.Helper()
	env := config.NewEnv()
	env[config.KeyProtonPath] = protonDir
	env[config.KeyProtonVerb] = "waitforexitandrun"
	env[config.KeyExe] = "/games/game.exe"
	return env
}

func TestBuildVector(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local")
	protonDir := filepath.Join(dir, "proton")
	writeFile(t, filepath.Join(local, EntryPointName))
	writeFile(t, filepath.Join(protonDir, ProtonBinary))

	env := testEnv(t, protonDir)
	got, err := Build(env, []string{"-opengl", "-SkipBuildPatchPrereq"}, config.Paths{LauncherLocal: local})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{
		filepath.Join(local, EntryPointName),
		"--verb", "waitforexitandrun",
		"--",
		filepath.Join(protonDir, ProtonBinary),
		"waitforexitandrun",
		"/games/game.exe",
		"-opengl",
		"-SkipBuildPatchPrereq",
	}
	if len(got) != len(want) {
		t.Fatalf("Build() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Build()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildEmptyExe(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local")
	protonDir := filepath.Join(dir, "proton")
	writeFile(t, filepath.Join(local, EntryPointName))
	writeFile(t, filepath.Join(protonDir, ProtonBinary))

	env := testEnv(t, protonDir)
	env[config.KeyExe] = ""
	got, err := Build(env, nil, config.Paths{LauncherLocal: local})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// An empty payload is a legitimate prefix-creation run; the empty
	// string stays in the vector.
	if got[len(got)-1] != "" {
		t.Errorf("last element = %q, want empty string", got[len(got)-1])
	}
}

func TestBuildMissingEntryPoint(t *testing.T) {
	dir := t.TempDir()
	protonDir := filepath.Join(dir, "proton")
	writeFile(t, filepath.Join(protonDir, ProtonBinary))

	env := testEnv(t, protonDir)
	_, err := Build(env, nil, config.Paths{LauncherLocal: filepath.Join(dir, "local")})
	if !errors.Is(err, ErrEntryPointNotFound) {
		t.Fatalf("Build() error = %v, want ErrEntryPointNotFound", err)
	}
}

func TestBuildMissingProtonBinary(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local")
	writeFile(t, filepath.Join(local, EntryPointName))

	env := testEnv(t, filepath.Join(dir, "proton"))
	_, err := Build(env, nil, config.Paths{LauncherLocal: local})
	if !errors.Is(err, ErrRuntimeBinaryNotFound) {
		t.Fatalf("Build() error = %v, want ErrRuntimeBinaryNotFound", err)
	}
}
