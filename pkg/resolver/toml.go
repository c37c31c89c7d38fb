package resolver

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"ulwgl/pkg/config"
)

// tableName is the single required table in a launch config document.
const tableName = "ulwgl"

// Document mirrors the [ulwgl] table of a launch config file.
type Document struct {
	Proton     string   `toml:"proton"`
	Prefix     string   `toml:"prefix"`
	Exe        string   `toml:"exe"`
	GameID     string   `toml:"game_id"`
	Store      string   `toml:"store"`
	LaunchArgs []string `toml:"launch_args"`
	Reaper     bool     `toml:"reaper"`

	reaperSet bool
}

type documentFile struct {
	Ulwgl Document `toml:"ulwgl"`
}

// loadDocument reads and validates a launch config document. proton and
// prefix must name directories, exe must name a file, and no configured
// string may be empty. Casing matters in the document.
func loadDocument(path, home string) (*Document, error) {
	expanded := config.ExpandPath(path, home)
	if !fileExists(expanded) {
		return nil, fmt.Errorf("%w: path to configuration is not a file: %s", ErrInvalidPath, path)
	}

	var raw documentFile
	meta, err := toml.DecodeFile(expanded, &raw)
	if err != nil {
		// Covers malformed TOML and type mismatches such as a
		// non-boolean reaper value.
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	if !meta.IsDefined(tableName) {
		return nil, fmt.Errorf("%w: table '%s' in TOML is not defined", ErrMissingValue, tableName)
	}

	doc := raw.Ulwgl
	doc.reaperSet = meta.IsDefined(tableName, "reaper")

	for _, key := range []string{"proton", "prefix", "exe"} {
		if !meta.IsDefined(tableName, key) {
			return nil, fmt.Errorf("%w: the following key in table '%s' is required: %s", ErrMissingValue, tableName, key)
		}
	}

	// Reject empty strings for any configured key before looking at the
	// filesystem, so the message names the offending entry.
	for key, val := range map[string]string{
		"proton":  doc.Proton,
		"prefix":  doc.Prefix,
		"exe":     doc.Exe,
		"game_id": doc.GameID,
		"store":   doc.Store,
	} {
		if meta.IsDefined(tableName, key) && val == "" {
			return nil, fmt.Errorf("%w: value is empty for '%s' in TOML", ErrInvalidValue, key)
		}
	}

	// Game options belong in launch_args, not appended to exe, so a
	// missing file here is always a configuration mistake.
	if !fileExists(config.ExpandPath(doc.Exe, home)) {
		return nil, fmt.Errorf("%w: value for key 'exe' in TOML is not a file: %s", ErrInvalidPath, doc.Exe)
	}
	for _, key := range []string{"proton", "prefix"} {
		val := doc.Proton
		if key == "prefix" {
			val = doc.Prefix
		}
		if !dirExists(config.ExpandPath(val, home)) {
			return nil, fmt.Errorf("%w: value for key '%s' in TOML is not a directory: %s", ErrInvalidPath, key, val)
		}
	}

	return &doc, nil
}

// applyDocument copies document values into the launch environment. The
// game identifier may come from the ambient GAMEID when the document
// leaves it out.
func applyDocument(env config.Env, doc *Document, environ map[string]string) {
	env[config.KeyWinePrefix] = doc.Prefix
	env[config.KeyProtonPath] = doc.Proton
	env[config.KeyExe] = doc.Exe
	env[config.KeyStore] = doc.Store

	env[config.KeyGameID] = doc.GameID
	if env[config.KeyGameID] == "" {
		env[config.KeyGameID] = environ[config.KeyGameID]
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
