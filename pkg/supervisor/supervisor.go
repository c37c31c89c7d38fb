// Package supervisor runs the wrapped launch vector and owns its
// lifecycle: signal forwarding, subreaper teardown and removal of the
// per-run reference marker.
package supervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ulwgl/pkg/config"
	"ulwgl/pkg/subreaper"
)

// RefMarker is touched by the entry point while a run is live; the
// supervisor removes it on every exit path.
const RefMarker = ".ref"

// teardownTimeout bounds how long an explicit shutdown may spend
// stopping the transient unit.
const teardownTimeout = 5 * time.Second

// Config carries everything a single run needs.
type Config struct {
	Command   []string
	Env       config.Env
	Paths     config.Paths
	Subreaper subreaper.Subreaper
	// Gamescope marks runs nested under a gamescope session, which
	// holds the session open until teardown stops the unit.
	Gamescope  bool
	UseSystemd bool
	Log        zerolog.Logger
}

// Run executes the command vector and blocks until it exits. The child
// inherits stdio and the ambient environment extended with the resolved
// launch variables. The returned code is the child's own exit code; a
// non-nil error means the launch itself faulted.
func Run(ctx context.Context, cfg Config) (int, error) {
	defer removeMarker(cfg)

	if cfg.Gamescope && !cfg.UseSystemd {
		cfg.Log.Warn().Msg("Gamescope session without systemd subreaper, session may not close on exit")
	}

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), cfg.Env.Environ()...)

	cfg.Log.Debug().Strs("command", cfg.Command).Msg("Launching")
	if err := cmd.Start(); err != nil {
		return 0, err
	}

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	interrupted := false
	for {
		select {
		case sig := <-interrupts:
			if interrupted {
				// The user insisted; give up on an orderly stop.
				cfg.Log.Error().Stringer("signal", sig).Msg("Second interrupt, aborting")
				_ = cmd.Process.Kill()
				<-done
				return 1, errors.New("aborted by repeated interrupt")
			}
			interrupted = true
			cfg.Log.Warn().Stringer("signal", sig).Msg("Interrupt received, shutting down")
			_ = cmd.Process.Signal(sig)
			teardown(cfg)
		case err := <-done:
			if !interrupted {
				teardown(cfg)
			}
			code, err := exitCode(err)
			if interrupted && code == 0 {
				// An interrupted run never reports success, even when
				// the child traps the signal and exits cleanly.
				code = 1
			}
			return code, err
		}
	}
}

// teardown asks the subreaper to release run-scoped resources. Failures
// are logged, never fatal: the child's exit code still matters more.
func teardown(cfg Config) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := cfg.Subreaper.Teardown(ctx); err != nil {
		cfg.Log.Warn().Err(err).Msg("Subreaper teardown failed")
	}
}

func removeMarker(cfg Config) {
	marker := filepath.Join(cfg.Paths.LauncherLocal, RefMarker)
	if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
		cfg.Log.Debug().Err(err).Msg("Could not remove reference marker")
	}
}

// exitCode maps a Wait result onto the launcher's contract: the child's
// code verbatim, or 1 with an error for faults that never produced one.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		if code := exit.ExitCode(); code >= 0 {
			return code, nil
		}
		// Terminated by signal.
		return 1, nil
	}
	return 1, err
}
