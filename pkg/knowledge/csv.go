// Copyright 2025 Conductor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knowledge

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const timeLayout = time.RFC3339

// EncodeCSV writes rows as the canonical 11-column CSV, UTF-8/LF,
// formula-prefix-escaping every cell whose first character is one of
// =, +, -, @ (spec.md §4.11/§6.4) so a spreadsheet opening the export
// never auto-evaluates agent-controlled content as a formula.
func EncodeCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = false

	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, r := range rows {
		record := []string{
			escapeFormula(r.Name),
			escapeFormula(r.Path),
			escapeFormula(r.Description),
			string(r.Domain),
			string(r.Complexity),
			escapeFormula(strings.Join(r.UseCases, ";")),
			escapeFormula(strings.Join(r.Tools, ";")),
			strconv.FormatBool(r.Deprecated),
			escapeFormula(r.Alias),
			strconv.Itoa(r.UsageCount),
			formatLastUsed(r.LastUsed),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCSV parses a Knowledge Index CSV, skipping (and reporting,
// never failing on) any malformed row — spec.md §4.11: "the index
// always returns what it can parse."
func DecodeCSV(data []byte) ([]Row, []error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var rows []Row
	var errs []error

	header, err := r.Read()
	if err != nil {
		return nil, []error{fmt.Errorf("knowledge: read header: %w", err)}
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[col] = i
	}

	for {
		record, err := r.Read()
		if err != nil {
			if pe, ok := err.(*csv.ParseError); ok {
				errs = append(errs, fmt.Errorf("knowledge: %w", pe))
				continue
			}
			break // io.EOF: no more records
		}
		row, rowErr := parseRow(record, idx)
		if rowErr != nil {
			errs = append(errs, rowErr)
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs
}

func parseRow(record []string, idx map[string]int) (Row, error) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(record) {
			return ""
		}
		return unescapeFormula(record[i])
	}

	name := get("name")
	path := get("path")
	if name == "" || path == "" {
		return Row{}, fmt.Errorf("knowledge: row missing name or path: %v", record)
	}
	if err := ValidatePathSecurity(path); err != nil {
		return Row{}, fmt.Errorf("knowledge: row %q: %w", name, err)
	}

	deprecated, _ := strconv.ParseBool(get("deprecated"))
	usageCount, _ := strconv.Atoi(get("usage_count"))
	lastUsed, _ := time.Parse(timeLayout, get("last_used"))

	return Row{
		Name:        name,
		Path:        path,
		Description: get("description"),
		Domain:      Domain(get("domain")),
		Complexity:  Complexity(get("complexity")),
		UseCases:    splitNonEmpty(get("use_cases")),
		Tools:       splitNonEmpty(get("tools")),
		Deprecated:  deprecated,
		Alias:       get("alias"),
		UsageCount:  usageCount,
		LastUsed:    lastUsed,
	}, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}

func formatLastUsed(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

var formulaPrefixes = []byte{'=', '+', '-', '@'}

func escapeFormula(s string) string {
	if s == "" {
		return s
	}
	for _, p := range formulaPrefixes {
		if s[0] == p {
			return "'" + s
		}
	}
	return s
}

func unescapeFormula(s string) string {
	if strings.HasPrefix(s, "'") && len(s) > 1 {
		for _, p := range formulaPrefixes {
			if s[1] == p {
				return s[1:]
			}
		}
	}
	return s
}
