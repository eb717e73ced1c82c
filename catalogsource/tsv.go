package catalogsource

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/logging"
)

type interactionRow struct {
	medication  string
	interaction entities.Interaction
}

type tsvStats struct {
	lines          int
	missingColumns int
	badSeverity    int
}

// readInteractions parses the interaction export. Blank lines and lines
// starting with # are ignored; malformed lines are counted and skipped.
func readInteractions(path string) ([]interactionRow, tsvStats, error) {
	var stats tsvStats

	f, err := os.Open(path)
	if err != nil {
		return nil, stats, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("Failed to close interactions file", "error", err)
		}
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rows []interactionRow
	for scanner.Scan() {
		stats.lines++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 4 || strings.TrimSpace(fields[0]) == "" || strings.TrimSpace(fields[1]) == "" {
			stats.missingColumns++
			continue
		}

		severity, ok := normalizeSeverity(fields[2])
		if !ok {
			stats.badSeverity++
			continue
		}

		in := entities.Interaction{
			Medication:  strings.TrimSpace(fields[1]),
			Severity:    severity,
			Description: strings.TrimSpace(fields[3]),
		}
		if len(fields) > 4 {
			in.EvidenceLevel = strings.TrimSpace(fields[4])
		}
		rows = append(rows, interactionRow{medication: strings.TrimSpace(fields[0]), interaction: in})
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("scanner error in %s: %w", path, err)
	}

	return rows, stats, nil
}
