package scanner

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Per-phase artifact file names, written under the scan's output
// directory.
const (
	SubdomainsFile = "subdomains.txt"
	AliveFile      = "alive.txt"
	ResultsFile    = "results.txt"
	ReportFile     = "scan_report.txt"
)

// writeArtifact writes lines to an artifact file atomically. An empty
// line set still produces the file: downstream tooling treats a
// missing artifact as a broken scan, not as zero results.
func writeArtifact(dir, name string, lines []string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}

	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readArtifact reads an artifact's non-blank lines. Missing files
// return os.ErrNotExist via the underlying open.
func readArtifact(dir, name string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, name)) //nolint:gosec // Artifact path is built from scan output dir
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
