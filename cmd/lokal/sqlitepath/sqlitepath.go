// Package sqlitepath resolves where the SQLite fact database lives.
package sqlitepath

import (
	"fmt"
	"os"
	"strings"

	"github.com/papercomputeco/lokal/pkg/dotdir"
)

// DefaultFile is the database name inside the lokal directory.
const DefaultFile = "facts.db"

// EnvVar short-circuits the lookup when set.
const EnvVar = "LOKAL_DB"

// ResolveSQLitePath returns override when set, then $LOKAL_DB, then
// facts.db inside the lokal directory resolved from configDir.
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv(EnvVar)); envPath != "" {
		return envPath, nil
	}

	path, err := dotdir.NewManager().File(DefaultFile, configDir)
	if err != nil {
		return "", fmt.Errorf("resolving sqlite path: %w", err)
	}
	return path, nil
}
