package simplex

import (
	"math"

	"github.com/aretw0/plantopt/pkg/lp"
)

// column is one non-negative standard-form variable y ≥ 0.
type column struct {
	cost float64 // minimization cost
}

// mapping expresses an original variable as offset + Σ coef·y.
type mapping struct {
	offset float64
	cols   []int
	coefs  []float64
}

// standardForm is min cᵀy s.t. A y = b, y ≥ 0 with b ≥ 0.
type standardForm struct {
	a      [][]float64 // dense rows
	b      []float64
	cols   []column
	vars   []mapping
	flip   []float64 // ±1 per row; flipped rows were multiplied by -1
	origin []int     // original program row, -1 for bound rows
	shift  float64   // constant removed from the objective: max obj = shift - min obj
}

// toStandardForm rewrites a maximization program with bounded variables and mixed
// senses into equality form over non-negative columns.
func toStandardForm(p *lp.Program) *standardForm {
	sf := &standardForm{}
	newCol := func(cost float64) int {
		sf.cols = append(sf.cols, column{cost: cost})
		return len(sf.cols) - 1
	}

	type bound struct {
		col   int
		limit float64
	}
	var bounds []bound

	for _, v := range p.Variables() {
		var m mapping
		switch {
		case !math.IsInf(v.Lower, -1):
			c := newCol(-v.Obj)
			m = mapping{offset: v.Lower, cols: []int{c}, coefs: []float64{1}}
			if !math.IsInf(v.Upper, 1) {
				bounds = append(bounds, bound{col: c, limit: v.Upper - v.Lower})
			}
		case !math.IsInf(v.Upper, 1):
			c := newCol(v.Obj)
			m = mapping{offset: v.Upper, cols: []int{c}, coefs: []float64{-1}}
		default:
			pos := newCol(-v.Obj)
			neg := newCol(v.Obj)
			m = mapping{cols: []int{pos, neg}, coefs: []float64{1, -1}}
		}
		sf.shift += v.Obj * m.offset
		sf.vars = append(sf.vars, m)
	}

	type pending struct {
		coefs  map[int]float64
		slack  float64 // coefficient of the slack column, 0 for equalities
		rhs    float64
		origin int
	}
	var rows []pending
	for i := range p.NumRows() {
		c := p.Constraint(lp.Row(i))
		row := pending{coefs: make(map[int]float64), rhs: c.RHS, origin: i}
		for _, t := range c.Terms {
			m := sf.vars[t.Var]
			row.rhs -= t.Coef * m.offset
			for k, col := range m.cols {
				row.coefs[col] += t.Coef * m.coefs[k]
			}
		}
		switch c.Sense {
		case lp.LE:
			row.slack = 1
		case lp.GE:
			row.slack = -1
		}
		rows = append(rows, row)
	}
	for _, bd := range bounds {
		rows = append(rows, pending{coefs: map[int]float64{bd.col: 1}, slack: 1, rhs: bd.limit, origin: -1})
	}

	slackCol := make([]int, len(rows))
	for i, r := range rows {
		slackCol[i] = -1
		if r.slack != 0 {
			slackCol[i] = newCol(0)
		}
	}

	n := len(sf.cols)
	for i, r := range rows {
		dense := make([]float64, n)
		for col, v := range r.coefs {
			dense[col] = v
		}
		if slackCol[i] >= 0 {
			dense[slackCol[i]] = r.slack
		}
		flip := 1.0
		if r.rhs < 0 {
			flip = -1
			for k := range dense {
				dense[k] = -dense[k]
			}
		}
		sf.a = append(sf.a, dense)
		sf.b = append(sf.b, flip*r.rhs)
		sf.flip = append(sf.flip, flip)
		sf.origin = append(sf.origin, r.origin)
	}
	return sf
}

// recover maps standard-form values back onto the original variables.
func (sf *standardForm) recover(y []float64) []float64 {
	x := make([]float64, len(sf.vars))
	for j, m := range sf.vars {
		x[j] = m.offset
		for k, col := range m.cols {
			x[j] += m.coefs[k] * y[col]
		}
	}
	return x
}
