package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/cosimkit/internal/ident"
	"github.com/roach88/cosimkit/internal/simerr"
)

// ComponentFromFileName strips the extension and the three trailing
// timestamp fields from a result file name. Reports false for names that
// do not carry a timestamp.
func ComponentFromFileName(name string) (string, bool) {
	name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	for range 3 {
		i := strings.LastIndex(name, "_")
		if i <= 0 {
			return "", false
		}
		name = name[:i]
	}
	return name, true
}

// CleanHeader removes the " [..]" suffix cosim appends to variable columns.
func CleanHeader(h string) string {
	h = strings.TrimSpace(h)
	if i := strings.LastIndex(h, "["); i >= 0 {
		return strings.TrimSpace(h[:i])
	}
	return h
}

// LoadDir loads the newest result file of each component in dir.
//
// With a non-empty expected list, exactly those components are returned,
// keyed by the given spelling, and a missing one is a RESULT_PARSING error.
// File names are matched after Unicode normalization. With no expected list
// every result file found is returned.
func LoadDir(dir string, expected []string) (Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, simerr.ResultParsing(dir, "cannot read output directory", err)
	}

	newest := map[string]string{} // normalized component -> file name
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		comp, ok := ComponentFromFileName(e.Name())
		if !ok {
			continue
		}
		key := ident.Normalize(comp)
		if prev, ok := newest[key]; !ok || e.Name() > prev {
			newest[key] = e.Name()
		}
	}

	names := expected
	if len(names) == 0 {
		for comp := range newest {
			names = append(names, comp)
		}
	}

	set := make(Set, len(names))
	for _, comp := range names {
		file, ok := newest[ident.Normalize(comp)]
		if !ok {
			return nil, simerr.ResultParsing(dir, fmt.Sprintf("no result file for component %q", comp), nil)
		}
		t, err := Load(filepath.Join(dir, file), comp)
		if err != nil {
			return nil, err
		}
		set[comp] = t
	}
	return set, nil
}

// Load parses one result CSV into a table for component.
// Booleans are read as 0 and 1.
func Load(path, component string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, simerr.ResultParsing(path, "result file not found", err)
	}
	defer f.Close()

	t, err := parse(f)
	if err != nil {
		return nil, simerr.ResultParsing(path, "malformed result file", err)
	}
	t.Component = component
	t.Path = path
	return t, nil
}

func parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, err
	}

	timeIdx, stepIdx := -1, -1
	t := &Table{series: map[string][]float64{}}
	cols := make([]string, len(header))
	for i, h := range header {
		name := CleanHeader(h)
		cols[i] = name
		switch {
		case timeIdx < 0 && strings.EqualFold(name, TimeColumn):
			timeIdx = i
		case stepIdx < 0 && strings.EqualFold(name, StepCountColumn):
			stepIdx = i
		case name == "":
			// trailing separator
		default:
			if _, dup := t.series[name]; dup {
				return nil, fmt.Errorf("duplicate column %q", name)
			}
			t.Columns = append(t.Columns, name)
			t.series[name] = nil
		}
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("no %s column", TimeColumn)
	}
	if stepIdx >= 0 {
		t.StepCount = []int64{}
	}
	t.Time = []float64{}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		for i, cell := range rec {
			switch i {
			case timeIdx:
				v, err := parseNumber(cell)
				if err != nil {
					return nil, fmt.Errorf("line %d, column %s: %w", line, cols[i], err)
				}
				t.Time = append(t.Time, v)
			case stepIdx:
				n, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d, column %s: %w", line, cols[i], err)
				}
				t.StepCount = append(t.StepCount, n)
			default:
				if cols[i] == "" {
					continue
				}
				v, err := parseNumber(cell)
				if err != nil {
					return nil, fmt.Errorf("line %d, column %s: %w", line, cols[i], err)
				}
				t.series[cols[i]] = append(t.series[cols[i]], v)
			}
		}
	}

	for _, c := range t.Columns {
		if t.series[c] == nil {
			t.series[c] = []float64{}
		}
	}
	return t, nil
}

func parseNumber(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	return strconv.ParseFloat(cell, 64)
}
