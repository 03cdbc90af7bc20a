// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package export writes lists of [gerrit.Record] as spreadsheets.
package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/reviewspy/internal/gerrit"
)

// Ext is the extension Write adds to file names that lack it.
const Ext = ".xlsx"

// Write writes recs to a single sheet named sheet in a new
// spreadsheet file, replacing any existing file.
// The first line is a header holding the fields of the first record;
// each record then fills one line, in the header's column order.
// If file does not end in [Ext], Write appends it.
// Write returns the name of the file it wrote.
func Write(sheet, file string, recs []*gerrit.Record) (string, error) {
	if !strings.EqualFold(filepath.Ext(file), Ext) {
		file += Ext
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return "", fmt.Errorf("export %s: %w", file, err)
	}
	if len(recs) > 0 {
		header := recs[0].Fields()
		if err := writeLine(f, sheet, 1, header); err != nil {
			return "", fmt.Errorf("export %s: %w", file, err)
		}
		for i, r := range recs {
			line := make([]string, len(header))
			for j, name := range header {
				line[j] = r.String(name)
			}
			if err := writeLine(f, sheet, i+2, line); err != nil {
				return "", fmt.Errorf("export %s: %w", file, err)
			}
		}
	}
	if err := f.SaveAs(file); err != nil {
		return "", fmt.Errorf("export %s: %w", file, err)
	}
	return file, nil
}

// writeLine writes values to the cells of the given 1-based row.
func writeLine(f *excelize.File, sheet string, row int, values []string) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
