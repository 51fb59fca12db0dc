package track

import "fmt"

// assign solves the rectangular track-to-detection association problem.
// cost is an nRows x nCols matrix; pairs whose cost reaches limit are
// never linked. Returns matched (row, col) index pairs plus the rows
// and columns left unmatched.
func assign(cost [][]float32, nRows, nCols int, limit float32) (matches [][2]int, freeRows, freeCols []int, err error) {
	if len(cost) == 0 || nRows == 0 || nCols == 0 {
		for i := 0; i < nRows; i++ {
			freeRows = append(freeRows, i)
		}
		for j := 0; j < nCols; j++ {
			freeCols = append(freeCols, j)
		}
		return matches, freeRows, freeCols, nil
	}

	// Extend to a square matrix twice the problem size. The padding
	// cells carry half the cost limit so that any real pair costing
	// limit or more loses to a row-padding + column-padding pairing,
	// which is exactly the cutoff semantics.
	n := nRows + nCols
	sq := make([][]float64, n)
	for i := range sq {
		sq[i] = make([]float64, n)
		for j := range sq[i] {
			sq[i][j] = float64(limit) / 2
		}
	}
	for i := nRows; i < n; i++ {
		for j := nCols; j < n; j++ {
			sq[i][j] = 0
		}
	}
	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			sq[i][j] = float64(cost[i][j])
		}
	}

	rowSol := make([]int, n)
	colSol := make([]int, n)

	if err := solveLAP(n, sq, rowSol, colSol); err != nil {
		return nil, nil, nil, fmt.Errorf("linear assignment: %w", err)
	}

	for i := 0; i < nRows; i++ {
		if j := rowSol[i]; j >= 0 && j < nCols {
			matches = append(matches, [2]int{i, j})
		} else {
			freeRows = append(freeRows, i)
		}
	}
	for j := 0; j < nCols; j++ {
		if i := colSol[j]; i < 0 || i >= nRows {
			freeCols = append(freeCols, j)
		}
	}

	return matches, freeRows, freeCols, nil
}
