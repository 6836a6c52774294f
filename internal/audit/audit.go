package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const snapshotTimeLayout = "20060102T150405Z"

// Auditor keeps the raw remote records fetched by a pull on disk so an
// operator can compare a run's staged proposals against what the remote
// table actually returned. It is installed as the engine's SnapshotWriter
// when SYNC_SNAPSHOT_DIR is set.
type Auditor struct {
	dir string
	now func() time.Time
}

func NewAuditor(dir string) *Auditor {
	return &Auditor{dir: dir, now: time.Now}
}

// SaveJSON writes one fetch snapshot and returns its file name. Names start
// with the UTC fetch time, so a directory listing is in fetch order.
func (a *Auditor) SaveJSON(data any) (string, error) {
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", a.now().UTC().Format(snapshotTimeLayout), uuid.NewString())
	if err := os.WriteFile(filepath.Join(a.dir, name), body, 0o600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return name, nil
}
