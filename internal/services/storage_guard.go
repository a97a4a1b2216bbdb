package services

import (
	"os"

	"github.com/subitocasaweb/lead-intake/internal/config"
	"github.com/subitocasaweb/lead-intake/internal/logging"
)

// Readiness is the startup-computed accessibility of the two storage
// directories. An inaccessible directory is a deployment fault: it is
// reported on every request and never retried.
type Readiness struct {
	DataDir   bool
	UploadDir bool
}

func (r Readiness) OK() bool {
	return r.DataDir && r.UploadDir
}

// CheckStorage verifies both storage directories once per process.
func CheckStorage(cfg *config.Config, incidents *logging.IncidentLog) Readiness {
	return Readiness{
		DataDir:   ensureWritable(cfg.Storage.DataDir, incidents),
		UploadDir: ensureWritable(cfg.Storage.UploadDir, incidents),
	}
}

// ensureWritable creates the directory if absent and probes that the
// process can actually create files inside it.
func ensureWritable(path string, incidents *logging.IncidentLog) bool {
	if err := os.MkdirAll(path, 0o755); err != nil {
		incidents.Report("impossibile creare la cartella %s: %v", path, err)
		return false
	}
	probe, err := os.CreateTemp(path, ".writable-*")
	if err != nil {
		incidents.Report("cartella non scrivibile %s: %v", path, err)
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}
