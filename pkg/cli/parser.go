// Package cli parses the launcher's command line. Two modes are accepted:
// a positional target executable with verbatim passthrough options, or a
// --config flag naming a TOML document. The modes are mutually exclusive.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"ulwgl/pkg/config"
)

// ErrUsage signals that no target was given and usage was printed.
var ErrUsage = errors.New("no executable or config provided")

// Mode selects how the launch environment will be resolved.
type Mode int

const (
	// ModeEnv resolves the environment from ambient variables plus the
	// positional executable.
	ModeEnv Mode = iota
	// ModeConfig resolves the environment from a TOML document.
	ModeConfig
)

// Result is the parsed command line.
type Result struct {
	Mode       Mode
	ConfigPath string
	// Exe is the positional target executable. The empty string is a
	// valid value and requests a prefix-creation run.
	Exe string
	// Opts are passthrough options, passed verbatim and unvalidated.
	Opts []string
	// Verb is a recognized Proton verb given as the leading argument,
	// or "" when none was supplied.
	Verb string
	Help bool
}

const usage = `ulwgl-run: Unified Linux Wine Game Launcher

example usage:
  GAMEID= ulwgl-run /home/foo/example.exe
  WINEPREFIX= GAMEID= ulwgl-run /home/foo/example.exe
  WINEPREFIX= GAMEID= PROTONPATH= ulwgl-run /home/foo/example.exe -opengl
  WINEPREFIX= GAMEID= PROTONPATH= ulwgl-run ""
  WINEPREFIX= GAMEID= PROTONPATH= PROTON_VERB= ulwgl-run /home/foo/example.exe
  WINEPREFIX= GAMEID= PROTONPATH= STORE= ulwgl-run /home/foo/example.exe
  ULWGL_LOG= GAMEID= ulwgl-run /home/foo/example.exe
  ulwgl-run --config /home/foo/example.toml
`

// Usage writes the usage text to w.
func Usage(w io.Writer) {
	fmt.Fprint(w, usage)
}

// Parse interprets args (without the program name).
func Parse(args []string) (*Result, error) {
	if len(args) == 0 {
		return nil, ErrUsage
	}

	switch args[0] {
	case "--help", "-h":
		return &Result{Help: true}, nil
	case "--config":
		if len(args) < 2 || args[1] == "" {
			return nil, fmt.Errorf("--config requires a path argument")
		}
		return &Result{Mode: ModeConfig, ConfigPath: args[1]}, nil
	}

	if path, ok := strings.CutPrefix(args[0], "--config="); ok {
		if path == "" {
			return nil, fmt.Errorf("--config requires a path argument")
		}
		return &Result{Mode: ModeConfig, ConfigPath: path}, nil
	}

	res := &Result{Mode: ModeEnv}

	// A recognized Proton verb may precede the executable.
	if config.ProtonVerbs[args[0]] {
		res.Verb = args[0]
		args = args[1:]
		if len(args) == 0 {
			return nil, ErrUsage
		}
	}

	res.Exe = args[0]
	res.Opts = args[1:]
	return res, nil
}
