package simplex

import "math"

// reduced is the standard form left after presolve.
type reduced struct {
	a    [][]float64
	b    []float64
	c    []float64
	rows []int // standard-form row of each kept row
	cols []int // standard-form column of each kept column
	// unboundedRay is set when a dropped empty column improves the objective without bound.
	unboundedRay bool
}

// presolve drops empty columns and linearly dependent equality rows so that the
// remaining matrix has full row rank. It reports infeasibility when a dependent row
// contradicts the rows it depends on.
func presolve(sf *standardForm, tol float64) (*reduced, bool) {
	n := len(sf.cols)
	red := &reduced{}

	for k := range n {
		empty := true
		for i := range sf.a {
			if sf.a[i][k] != 0 {
				empty = false
				break
			}
		}
		if !empty {
			red.cols = append(red.cols, k)
			continue
		}
		if sf.cols[k].cost < -tol {
			red.unboundedRay = true
		}
	}

	// incremental elimination: pivots hold rows reduced against earlier pivots
	type pivot struct {
		col int
		row []float64
		rhs float64
	}
	var pivots []pivot
	for i, row := range sf.a {
		r := make([]float64, len(red.cols))
		scale := 0.0
		for j, k := range red.cols {
			r[j] = row[k]
			scale = math.Max(scale, math.Abs(row[k]))
		}
		rhs := sf.b[i]
		for _, p := range pivots {
			if r[p.col] == 0 {
				continue
			}
			f := r[p.col] / p.row[p.col]
			for j := range r {
				r[j] -= f * p.row[j]
			}
			rhs -= f * p.rhs
		}

		best, bestAbs := -1, 0.0
		for j, v := range r {
			if av := math.Abs(v); av > bestAbs {
				best, bestAbs = j, av
			}
		}
		eps := tol * math.Max(1, scale)
		if bestAbs <= eps {
			if math.Abs(rhs) > eps*math.Max(1, math.Abs(sf.b[i])) {
				return nil, false
			}
			continue
		}
		for j := range r {
			if math.Abs(r[j]) <= eps {
				r[j] = 0
			}
		}
		pivots = append(pivots, pivot{col: best, row: r, rhs: rhs})
		red.rows = append(red.rows, i)
	}

	for _, i := range red.rows {
		row := make([]float64, len(red.cols))
		for j, k := range red.cols {
			row[j] = sf.a[i][k]
		}
		red.a = append(red.a, row)
		red.b = append(red.b, sf.b[i])
	}
	for _, k := range red.cols {
		red.c = append(red.c, sf.cols[k].cost)
	}
	return red, true
}
