package platform

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/andymorris/couch-potato/pkg/adapters/fs"
)

// ConfigFile is the project configuration file looked up by FindRoot.
const ConfigFile = ".couchpotato.jsonc"

// ErrRootNotFound is returned by FindRoot when no indicator is found.
var ErrRootNotFound = errors.New("root not found")

// FindRoot looks upwards from startDir for a project root. Indicators are
// the fs system directory (.couchpotato) or the configuration file.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, fs.DefaultSystemDir) || hasFile(dir, ConfigFile) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", ErrRootNotFound
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
