package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

func mkSessionDir(root string, now time.Time) (string, string, error) {
	sid := "session_" + now.Format("20060102-150405")
	dir := filepath.Join(root, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// persist writes the run bundle to <metrics>/runs/<session>/run.json and
// returns its path.
func persist(metricsRoot string, report *RunReport) (string, error) {
	sid, dir, err := mkSessionDir(filepath.Join(metricsRoot, "runs"), report.GeneratedAt)
	if err != nil {
		return "", err
	}
	report.SessionID = sid
	path := filepath.Join(dir, "run.json")
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	return path, nil
}
