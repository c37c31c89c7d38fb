// Package cache guards the runtime download cache against concurrent
// launcher invocations fetching the same compatibility tool build.
package cache

import (
	"os"
)

// Ensure runs fetch if target does not exist yet, holding the lock for
// target so that only one process performs the fetch. Other invocations
// wait and then observe the populated target.
func Ensure(target string, fetch func() error) error {
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	unlock, err := Lock(target)
	if err != nil {
		return err
	}
	defer unlock()

	// The build may have appeared while we waited for the lock.
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	return fetch()
}
