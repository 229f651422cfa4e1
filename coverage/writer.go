package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"
)

// DefaultReportPath is where coverage reports are written unless configured
// otherwise.
const DefaultReportPath = "coverage/coverage.json"

// WriteReport writes the report as an Istanbul JSON document to path,
// replacing any report already there.
func WriteReport(path string, report Report) error {
	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFile(path, blob); err != nil {
		return err
	}
	summary := report.Summary()
	log.Info("Wrote coverage report", "path", path, "files", summary.Files, "lines", summary.Lines, "coverage", summary.Percentage())
	return nil
}

// WriteLCOV writes the report as an LCOV tracefile to path.
func WriteLCOV(path string, report Report) error {
	blob, err := report.MarshalLCOV()
	if err != nil {
		return err
	}
	return writeFile(path, blob)
}

// writeFile replaces path with blob atomically. A lock file next to the target
// serialises writers from concurrently running test binaries.
func writeFile(path string, blob []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
