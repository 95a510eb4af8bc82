package reference

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// errSkipRow marks a row that is malformed but does not fail the file.
var errSkipRow = errors.New("malformed row")

// row is one record of a reference file addressed by header name.
type row struct {
	header map[string]int
	fields []string
}

// Get returns the trimmed value of the named column, or "" when absent.
func (r row) Get(name string) string {
	i, ok := r.header[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// FileStats counts the rows of one reference file.
type FileStats struct {
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

const maxLineBytes = 1 << 20

// readTable streams a comma separated file with a header row through
// handle. Each physical line is parsed on its own, so an unbalanced quote
// only costs the row it appears in. Rows whose field count differs from the
// header, or for which handle returns errSkipRow, are counted as skipped.
func readTable(r io.Reader, handle func(row) error) (FileStats, error) {
	var stats FileStats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return stats, fmt.Errorf("reading header: %w", err)
		}
		return stats, errors.New("missing header row")
	}
	headers, err := parseLine(strings.TrimPrefix(sc.Text(), "\ufeff"))
	if err != nil {
		return stats, fmt.Errorf("reading header: %w", err)
	}

	header := make(map[string]int, len(headers))
	for i, h := range headers {
		header[strings.TrimSpace(h)] = i
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil || len(rec) != len(headers) {
			stats.Skipped++
			continue
		}

		if err := handle(row{header: header, fields: rec}); err != nil {
			if errors.Is(err, errSkipRow) {
				stats.Skipped++
				continue
			}
			return stats, err
		}
		stats.Loaded++
	}
	if err := sc.Err(); err != nil {
		return stats, err
	}

	return stats, nil
}

// parseLine splits one physical line into fields. Quotes may wrap fields
// holding commas; a quote left open ends with the line.
func parseLine(line string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr.Read()
}

// ParseServiceTime parses a GTFS HH:MM:SS time into an offset from service-day
// midnight. Hours above 23 are valid for trips running past midnight.
func ParseServiceTime(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("time %q not in h:m:s format", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("time %q has invalid hours", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q has invalid minutes", s)
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("time %q has invalid seconds", s)
	}

	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

func parseCoord(lat, lon string) (float64, float64, error) {
	latf, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return 0, 0, err
	}
	lonf, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return 0, 0, err
	}
	return latf, lonf, nil
}
