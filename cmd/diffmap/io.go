package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/nozzle/diffmap"
)

// loadConfig reads a YAML file over the default configuration. An empty
// path returns the defaults.
func loadConfig(path string) (diffmap.Config, error) {
	cfg := diffmap.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// loadCSV loads a matrix from a CSV file (no header, numeric values only).
func loadCSV(filename string) (*mat.Dense, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	x := mat.NewDense(len(records), len(records[0]), nil)
	for i, record := range records {
		if len(record) != len(records[0]) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(record), len(records[0]))
		}
		for j, val := range record {
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d, col %d: %w", i, j, err)
			}
			x.Set(i, j, f)
		}
	}

	return x, nil
}

// parseVector parses a comma-separated list of numbers.
func parseVector(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	v := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		v[i] = x
	}
	return v, nil
}

// saveCSV writes the rows of m to a CSV file.
func saveCSV(filename string, m mat.Matrix) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	r, c := m.Dims()
	record := make([]string, c)
	for i := range r {
		for j := range c {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', 10, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// saveColumn writes v as a single-column CSV file.
func saveColumn(filename string, v []float64) error {
	return saveCSV(filename, mat.NewDense(len(v), 1, v))
}
