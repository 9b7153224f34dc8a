package glpk

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/aretw0/plantopt/pkg/lp"
)

// WriteLP writes prog in CPLEX LP format. Columns are named x1..xn and rows r1..rm
// so that the solution file can be mapped back by ordinal. Every column is listed in
// the objective, which fixes the column order GLPK assigns.
func WriteLP(w io.Writer, prog *lp.Program) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, `\* plantopt *\`)
	fmt.Fprintln(bw, "Maximize")
	fmt.Fprint(bw, " obj:")
	for j, v := range prog.Variables() {
		fmt.Fprintf(bw, " %s x%d", signed(v.Obj), j+1)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Subject To")
	if prog.NumRows() == 0 {
		// GLPK rejects an empty constraint section
		fmt.Fprintln(bw, " r1: 0 x1 >= 0")
	}
	for i := range prog.NumRows() {
		c := prog.Constraint(lp.Row(i))
		fmt.Fprintf(bw, " r%d:", i+1)
		if len(c.Terms) == 0 {
			fmt.Fprint(bw, " 0 x1")
		}
		for _, t := range c.Terms {
			fmt.Fprintf(bw, " %s x%d", signed(t.Coef), int(t.Var)+1)
		}
		fmt.Fprintf(bw, " %s %s\n", c.Sense, num(c.RHS))
	}

	fmt.Fprintln(bw, "Bounds")
	for j, v := range prog.Variables() {
		lower, upper := v.Lower, v.Upper
		name := fmt.Sprintf("x%d", j+1)
		switch {
		case math.IsInf(lower, -1) && math.IsInf(upper, 1):
			fmt.Fprintf(bw, " %s free\n", name)
		case lower == upper:
			fmt.Fprintf(bw, " %s = %s\n", name, num(lower))
		case math.IsInf(lower, -1):
			fmt.Fprintf(bw, " -inf <= %s <= %s\n", name, num(upper))
		case math.IsInf(upper, 1):
			if lower != 0 {
				fmt.Fprintf(bw, " %s >= %s\n", name, num(lower))
			}
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", num(lower), name, num(upper))
		}
	}
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func signed(v float64) string {
	if v < 0 {
		return "- " + num(-v)
	}
	return "+ " + num(v)
}
