// Package artifacts persists pipeline outputs: per-stage JSON dumps on
// disk and a SQLite history of completed runs.
package artifacts

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// DirSink writes each stage aggregate as pretty-printed JSON under a
// per-run directory. Dumps are best-effort: a write failure is logged
// and reported false, never propagated.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

func (s *DirSink) Dump(name string, v any) bool {
	if s == nil || s.dir == "" {
		return false
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		log.Printf("artifacts: mkdir %s: %v", s.dir, err)
		return false
	}
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("artifacts: marshal %s: %v", name, err)
		return false
	}
	path := filepath.Join(s.dir, name)
	if err := writeFileAtomic(path, blob); err != nil {
		log.Printf("artifacts: write %s: %v", path, err)
		return false
	}
	return true
}

// writeFileAtomic writes via a temp file and rename so a crashed dump
// never leaves a truncated artifact.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
