package logging_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subitocasaweb/lead-intake/internal/logging"
)

var incidentLineRe = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[^\]]*\] `)

func TestReportAppendsOneLinePerIncident(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	incidents := logging.NewIncidentLog(path)

	incidents.Report("primo incidente: %s", "dettaglio")
	incidents.Report("secondo incidente")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Regexp(t, incidentLineRe, line)
	}
	assert.Contains(t, lines[0], "primo incidente: dettaglio")
	assert.Contains(t, lines[1], "secondo incidente")
}

func TestReportCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "errors.log")
	incidents := logging.NewIncidentLog(path)

	incidents.Report("incidente")

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
