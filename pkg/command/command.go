// Package command assembles the final launch vector from a resolved
// environment: entry point script, Proton binary, verb and the payload
// executable with its verbatim arguments.
package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ulwgl/pkg/config"
)

// EntryPointName is the launcher script distributed alongside the binary.
const EntryPointName = "ULWGL"

// ProtonBinary is the dispatch script every compatibility tool ships.
const ProtonBinary = "proton"

var (
	// ErrEntryPointNotFound reports a launcher installation without its
	// entry point script.
	ErrEntryPointNotFound = errors.New("entry point not found")
	// ErrRuntimeBinaryNotFound reports a compatibility tool directory
	// without a proton binary.
	ErrRuntimeBinaryNotFound = errors.New("proton binary not found")
)

// findEntryPoint looks for the entry point script next to the launcher's
// own executable first, then in the user-writable launcher directory.
func findEntryPoint(local string) (string, error) {
	candidates := make([]string, 0, 2)
	if self, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(self), EntryPointName))
	}
	candidates = append(candidates, filepath.Join(local, EntryPointName))

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: looked in %v", ErrEntryPointNotFound, candidates)
}

// Build produces the command vector for a resolved run:
//
//	ENTRY --verb VERB -- PROTON VERB EXE OPTS...
//
// Opts are appended verbatim; they were never split or rejoined.
func Build(env config.Env, opts []string, paths config.Paths) ([]string, error) {
	entry, err := findEntryPoint(paths.LauncherLocal)
	if err != nil {
		return nil, err
	}

	proton := filepath.Join(env[config.KeyProtonPath], ProtonBinary)
	if info, err := os.Stat(proton); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRuntimeBinaryNotFound, proton)
	}

	verb := env[config.KeyProtonVerb]
	command := []string{
		entry,
		"--verb", verb,
		"--",
		proton,
		verb,
		env[config.KeyExe],
	}
	return append(command, opts...), nil
}
