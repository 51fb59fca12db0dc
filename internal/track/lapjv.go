package track

import "errors"

// unassignedCost is the placeholder cost for cells that must never win
// an assignment.
const unassignedCost = 1000000.0

// solveLAP solves the square dense linear assignment problem with the
// Jonker-Volgenant algorithm. x receives the column assigned to each
// row, y the row assigned to each column.
func solveLAP(n int, cost [][]float64, x, y []int) error {
	freeRows := make([]int, n)
	v := make([]float64, n)

	free := columnReduction(n, cost, freeRows, x, y, v)

	for i := 0; free > 0 && i < 2; i++ {
		free = augmentingRowReduction(n, cost, free, freeRows, x, y, v)
	}

	if free > 0 {
		return augment(n, cost, free, freeRows, x, y, v)
	}

	return nil
}

// columnReduction performs column reduction and reduction transfer,
// returning the number of rows left unassigned.
func columnReduction(n int, cost [][]float64, freeRows, x, y []int, v []float64) int {
	unique := make([]bool, n)

	for i := 0; i < n; i++ {
		x[i] = -1
		v[i] = unassignedCost
		y[i] = 0
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if c := cost[i][j]; c < v[j] {
				v[j] = c
				y[j] = i
			}
		}
	}

	for i := range unique {
		unique[i] = true
	}

	for j := n - 1; j >= 0; j-- {
		i := y[j]
		if x[i] < 0 {
			x[i] = j
		} else {
			unique[i] = false
			y[j] = -1
		}
	}

	nFree := 0
	for i := 0; i < n; i++ {
		if x[i] < 0 {
			freeRows[nFree] = i
			nFree++
		} else if unique[i] {
			j := x[i]
			minVal := unassignedCost

			for j2 := 0; j2 < n; j2++ {
				if j2 == j {
					continue
				}
				if c := cost[i][j2] - v[j2]; c < minVal {
					minVal = c
				}
			}

			v[j] -= minVal
		}
	}

	return nFree
}

// augmentingRowReduction resolves free rows by alternating row
// reduction, returning the rows still unassigned.
func augmentingRowReduction(n int, cost [][]float64, nFreeRows int, freeRows, x, y []int, v []float64) int {
	current := 0
	newFree := 0
	rrCnt := 0

	for current < nFreeRows {
		rrCnt++
		freeI := freeRows[current]
		current++

		// locate the two smallest reduced costs in the row
		j1 := 0
		v1 := cost[freeI][0] - v[0]
		j2 := -1
		v2 := unassignedCost

		for j := 1; j < n; j++ {
			c := cost[freeI][j] - v[j]
			if c < v2 {
				if c >= v1 {
					v2 = c
					j2 = j
				} else {
					v2 = v1
					v1 = c
					j2 = j1
					j1 = j
				}
			}
		}

		i0 := y[j1]
		v1New := v[j1] - (v2 - v1)
		v1Lowers := v1New < v[j1]

		if rrCnt < current*n {
			if v1Lowers {
				v[j1] = v1New
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = y[j2]
			}

			if i0 >= 0 {
				if v1Lowers {
					current--
					freeRows[current] = i0
				} else {
					freeRows[newFree] = i0
					newFree++
				}
			}
		} else if i0 >= 0 {
			freeRows[newFree] = i0
			newFree++
		}

		x[freeI] = j1
		y[j1] = freeI
	}

	return newFree
}

// findColumns moves all columns tied for the minimum d value to the
// scan region and returns its new upper bound.
func findColumns(n, lo int, d []float64, cols, y []int) int {
	hi := lo + 1
	mind := d[cols[lo]]

	for k := hi; k < n; k++ {
		j := cols[k]
		if d[j] <= mind {
			if d[j] < mind {
				hi = lo
				mind = d[j]
			}
			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}

	return hi
}

// scanColumns relaxes the remaining columns against those on the scan
// list, returning an unassigned column that closes a shortest path or
// -1 if none was reached.
func scanColumns(n int, cost [][]float64, lo, hi *int, d []float64, cols, pred, y []int, v []float64) int {
	for *lo != *hi {
		j := cols[*lo]
		*lo++
		i := y[j]
		mind := d[j]
		h := cost[i][j] - v[j] - mind

		for k := *hi; k < n; k++ {
			j = cols[k]
			cred := cost[i][j] - v[j] - h

			if cred < d[j] {
				d[j] = cred
				pred[j] = i

				if cred == mind {
					if y[j] < 0 {
						return j
					}
					cols[k] = cols[*hi]
					cols[*hi] = j
					(*hi)++
				}
			}
		}
	}

	return -1
}

// findPath runs one iteration of the modified Dijkstra shortest
// augmenting path search from the given free row.
func findPath(n int, cost [][]float64, startI int, y []int, v []float64, pred []int) int {
	lo, hi := 0, 0
	finalJ := -1
	nReady := 0
	cols := make([]int, n)
	d := make([]float64, n)

	for i := 0; i < n; i++ {
		cols[i] = i
		pred[i] = startI
		d[i] = cost[startI][i] - v[i]
	}

	for finalJ == -1 {
		if lo == hi {
			nReady = lo
			hi = findColumns(n, lo, d, cols, y)

			for k := lo; k < hi; k++ {
				if j := cols[k]; y[j] < 0 {
					finalJ = j
				}
			}
		}

		if finalJ == -1 {
			finalJ = scanColumns(n, cost, &lo, &hi, d, cols, pred, y, v)
		}
	}

	mind := d[cols[lo]]
	for k := 0; k < nReady; k++ {
		j := cols[k]
		v[j] += d[j] - mind
	}

	return finalJ
}

// augment resolves each remaining free row by augmenting along a
// shortest path.
func augment(n int, cost [][]float64, nFreeRows int, freeRows, x, y []int, v []float64) error {
	pred := make([]int, n)

	for _, freeI := range freeRows[:nFreeRows] {
		j := findPath(n, cost, freeI, y, v, pred)

		if j < 0 || j >= n {
			return errors.New("assignment path search escaped the matrix")
		}

		i := -1
		for k := 0; i != freeI; k++ {
			if k >= n {
				return errors.New("assignment augmentation cycled")
			}
			i = pred[j]
			y[j] = i
			j, x[i] = x[i], j
		}
	}

	return nil
}
