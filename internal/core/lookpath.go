package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var errNotFound = errors.New("executable file not found in declared PATH")

// lookPath resolves name against an explicit PATH value instead of the
// host environment.
func lookPath(name, pathEnv string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", errNotFound
}
