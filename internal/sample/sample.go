// Package sample bounds large tables for transport.
//
// Materialized results can run to thousands of rows; clients only need
// enough of them to draw a chart. Rows picks evenly spaced rows, always
// keeping the first and last, and is fully deterministic so repeated
// requests preview identically.
package sample

// Rows downsamples rows longer than minPoints to roughly target rows.
//
// Shorter inputs come back unchanged. The selection keeps original
// order, always includes the first and last row, and never exceeds
// target+1 rows.
func Rows[T any](rows []T, minPoints, target int) []T {
	if len(rows) <= minPoints {
		return rows
	}
	// Below 2 the bound math degenerates; clamp so the target+1 cap
	// holds for every parameter combination.
	if target < 2 {
		target = 2
	}

	// Ceiling division: a floor step can select up to len/floor(len/target)
	// rows, overshooting the target bound when len is not a multiple.
	step := (len(rows) + target - 1) / target
	if step < 1 {
		step = 1
	}

	out := make([]T, 0, target+1)
	for i := 0; i < len(rows); i += step {
		out = append(out, rows[i])
	}
	if (len(rows)-1)%step != 0 {
		out = append(out, rows[len(rows)-1])
	}
	return out
}
