// Package subreaper selects and manages the process responsible for
// collecting orphaned descendants of the launched runtime. The subreaper
// outlives this launcher, so it is always an out-of-process wrapper: a
// dedicated reaper binary, or a transient user-scoped service unit.
package subreaper

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/itchyny/gojq"
	"github.com/rs/zerolog"

	"ulwgl/pkg/config"
)

// Subreaper wraps the command vector with its supervisory prefix and
// releases any per-run resources at teardown.
type Subreaper interface {
	// Wrap prepends the supervisory wrapper to the command vector.
	Wrap(command []string) []string
	// Teardown releases run-scoped resources. Safe to call on every
	// exit path; a no-op when nothing was registered.
	Teardown(ctx context.Context) error
}

// commandRunner abstracts service manager invocations for testing.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Select picks the subreaper for this run. The transient service unit is
// chosen only on explicit request; when systemd-run is unavailable the
// selection falls back to the reaper binary.
func Select(useSystemd bool, gameID, local string, log zerolog.Logger) Subreaper {
	if useSystemd {
		bin, err := exec.LookPath("systemd-run")
		if err != nil {
			log.Debug().Msg("systemd-run is not found in system, using reaper as subreaper")
			return NewReaperProcess(gameID, local)
		}
		log.Debug().Msg("Using systemd as subreaper")
		return NewSystemdUnit(gameID, bin, log)
	}
	log.Debug().Msg("Using reaper as subreaper")
	return NewReaperProcess(gameID, local)
}

// ReaperProcess wraps the launch in the bundled reaper binary. The reaper
// exits with its process group, so teardown has nothing to release.
type ReaperProcess struct {
	gameID string
	local  string
}

func NewReaperProcess(gameID, local string) *ReaperProcess {
	return &ReaperProcess{gameID: gameID, local: local}
}

func (r *ReaperProcess) Wrap(command []string) []string {
	prefix := []string{
		filepath.Join(r.local, "reaper"),
		config.KeyLauncherID + "=" + r.gameID,
		"--",
	}
	return append(prefix, command...)
}

func (r *ReaperProcess) Teardown(ctx context.Context) error {
	return nil
}

// SystemdUnit runs the launch inside a transient user-scoped unit whose
// description carries the per-run identifier. Teardown stops exactly the
// unit created for this run.
type SystemdUnit struct {
	gameID string
	runBin string
	run    commandRunner
	log    zerolog.Logger
}

func NewSystemdUnit(gameID, runBin string, log zerolog.Logger) *SystemdUnit {
	return &SystemdUnit{
		gameID: gameID,
		runBin: runBin,
		run:    execRunner,
		log:    log,
	}
}

// Description returns the per-run identifier the unit is tagged with.
func (s *SystemdUnit) Description() string {
	if idPatternMatches(s.gameID) {
		return s.gameID
	}
	return config.IDPrefix + s.gameID
}

func (s *SystemdUnit) Wrap(command []string) []string {
	prefix := []string{
		s.runBin,
		"--user",
		"--scope",
		"--send-sighup",
		"--description=" + s.Description(),
	}
	return append(prefix, command...)
}

// unitQuery selects the unit whose description equals the per-run
// identifier from systemctl's JSON listing.
var unitQuery = mustCompileQuery(`.[] | select(.description == $desc) | .unit`)

// Teardown locates the transient unit for this run by its description and
// stops it. Zero matches mean the unit already exited; nothing is stopped.
func (s *SystemdUnit) Teardown(ctx context.Context) error {
	out, err := s.run(ctx, "systemctl", "list-units", "--user", "-o", "json")
	if err != nil {
		return fmt.Errorf("failed to list user units: %w", err)
	}

	var units any
	if err := json.Unmarshal(out, &units); err != nil {
		return fmt.Errorf("failed to parse unit listing: %w", err)
	}

	unit := ""
	iter := unitQuery.RunWithContext(ctx, units, s.Description())
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return fmt.Errorf("unit query failed: %w", err)
		}
		if name, ok := v.(string); ok && name != "" {
			unit = name
			break
		}
	}

	if unit == "" {
		s.log.Debug().Str("description", s.Description()).Msg("No transient unit to stop")
		return nil
	}

	s.log.Warn().Str("unit", unit).Msg("Reaping zombies due to explicit shutdown")
	if _, err := s.run(ctx, "systemctl", "stop", "--user", unit); err != nil {
		return fmt.Errorf("failed to stop unit %s: %w", unit, err)
	}
	return nil
}

func mustCompileQuery(src string) *gojq.Code {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(err)
	}
	code, err := gojq.Compile(q, gojq.WithVariables([]string{"$desc"}))
	if err != nil {
		panic(err)
	}
	return code
}

func idPatternMatches(id string) bool {
	return len(id) > len(config.IDPrefix) && id[:len(config.IDPrefix)] == config.IDPrefix
}
