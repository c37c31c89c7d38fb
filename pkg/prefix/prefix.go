// Package prefix reconciles the on-disk layout of a WINE prefix. Every
// run re-establishes the same topology: a pfx symlink aliasing the prefix
// root, a tracked_files marker, and exactly one real user identity
// directory under drive_c/users with the other identity linked to it.
// Reconciliation is idempotent and never deletes data outside the entries
// it manages.
package prefix

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// steamUser is the identity directory Proton itself writes into.
const steamUser = "steamuser"

// markerFile tracks files created inside the prefix.
const markerFile = "tracked_files"

// Branch is the reconciliation action chosen for the identity
// directories. Exactly one branch fires per run.
type Branch int

const (
	// BranchFresh creates steamuser as a real directory and links the
	// unix user name to it. Fires on a prefix with no identity entries.
	BranchFresh Branch = iota
	// BranchLinkSteam links steamuser to an existing real unix user
	// directory.
	BranchLinkSteam
	// BranchLinkUser links the unix user name to an existing real
	// steamuser directory.
	BranchLinkUser
	// BranchKeep leaves the topology untouched. Any layout not covered
	// above is deliberate or already correct; it is logged, never an
	// error.
	BranchKeep
)

func (b Branch) String() string {
	switch b {
	case BranchFresh:
		return "fresh"
	case BranchLinkSteam:
		return "link-steamuser"
	case BranchLinkUser:
		return "link-user"
	default:
		return "keep"
	}
}

// entryState is the observed state of one identity entry.
type entryState struct {
	exists bool
	isDir  bool
	isLink bool
}

func observe(path string) entryState {
	var s entryState
	if info, err := os.Lstat(path); err == nil {
		s.isLink = info.Mode()&os.ModeSymlink != 0
	}
	if info, err := os.Stat(path); err == nil {
		// Follows symlinks: a dangling link reports isLink only.
		s.exists = true
		s.isDir = info.IsDir()
	}
	return s
}

// Decide is the identity decision table. steam and user describe the
// steamuser entry and the unix user entry; rows are evaluated in priority
// order and the first match wins.
func Decide(steam, user entryState) Branch {
	switch {
	case !steam.isDir && !user.isDir && !steam.isLink && !user.isLink:
		return BranchFresh
	case user.isDir && !user.isLink && !steam.isDir && !steam.isLink:
		return BranchLinkSteam
	case !user.exists && !user.isLink && steam.isDir && !steam.isLink:
		return BranchLinkUser
	default:
		return BranchKeep
	}
}

// Setup reconciles the prefix at path for the given unix user name.
// Filesystem errors propagate unhandled; the caller treats them as fatal.
func Setup(path, userName string, log zerolog.Logger) error {
	if err := setupAlias(path); err != nil {
		return err
	}

	if err := touch(filepath.Join(path, markerFile)); err != nil {
		return err
	}

	users := filepath.Join(path, "drive_c", "users")
	steamPath := filepath.Join(users, steamUser)
	userPath := filepath.Join(users, userName)

	steam := observe(steamPath)
	user := observe(userPath)
	branch := Decide(steam, user)

	log.Debug().Stringer("branch", branch).Str("prefix", path).Msg("Reconciling prefix identities")

	switch branch {
	case BranchFresh:
		// New prefix: unix user -> steamuser.
		if err := os.MkdirAll(steamPath, 0755); err != nil {
			return err
		}
		return replaceLink(userPath, steamUser)
	case BranchLinkSteam:
		return replaceLink(steamPath, userName)
	case BranchLinkUser:
		return replaceLink(userPath, steamUser)
	default:
		log.Debug().Msg("Skipping link creation for prefix")
		log.Debug().Str("steamuser", steamPath).Str("user", userPath).Msg("Identity entries already present")
		return nil
	}
}

// setupAlias recreates the pfx symlink so the alias tracks the current
// prefix location even after the prefix has been moved.
func setupAlias(path string) error {
	pfx := filepath.Join(path, "pfx")

	if info, err := os.Lstat(pfx); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(pfx); err != nil {
			return err
		}
	}

	if info, err := os.Stat(pfx); err == nil && info.IsDir() {
		// A real pfx directory predates the alias scheme; leave it.
		return nil
	}

	return os.Symlink(path, pfx)
}

func replaceLink(linkPath, target string) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), 0755); err != nil {
		return err
	}
	if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", linkPath, err)
	}
	// Relative target: the link stays valid if the prefix moves.
	return os.Symlink(target, linkPath)
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}
