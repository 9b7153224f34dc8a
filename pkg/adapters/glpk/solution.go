package glpk

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/lp"
)

// ReadSolution parses a GLPK plain-text basic solution (glpsol -w) for a program
// with the given dimensions.
func ReadSolution(r io.Reader, rows, cols int) (*lp.Solution, error) {
	sol := &lp.Solution{
		X:     make([]float64, cols),
		Duals: make([]float64, rows),
	}
	seenStatus := false

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "c", "e":
			continue
		case "s":
			// s bas <rows> <cols> <primal> <dual> <objective>
			if len(fields) < 7 || fields[1] != "bas" {
				return nil, fmt.Errorf("line %d: unsupported solution header %q", line, sc.Text())
			}
			obj, err := strconv.ParseFloat(fields[6], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: objective: %w", line, err)
			}
			sol.Objective = obj
			sol.Status = status(fields[4], fields[5])
			seenStatus = true
		case "i", "j":
			// i|j <ordinal> <status> <primal> <dual>
			if len(fields) < 5 {
				return nil, fmt.Errorf("line %d: short %s record", line, fields[0])
			}
			ord, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: ordinal: %w", line, err)
			}
			prim, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: primal value: %w", line, err)
			}
			dual, err := strconv.ParseFloat(fields[4], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: dual value: %w", line, err)
			}
			if fields[0] == "j" {
				if ord < 1 || ord > cols {
					return nil, fmt.Errorf("line %d: column %d out of range", line, ord)
				}
				sol.X[ord-1] = prim
			} else if ord >= 1 && ord <= rows {
				sol.Duals[ord-1] = dual
			}
		default:
			return nil, fmt.Errorf("line %d: unknown record %q", line, fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !seenStatus {
		return nil, fmt.Errorf("solution has no status line")
	}
	return sol, nil
}

// status maps GLPK primal/dual status letters (u undefined, f feasible,
// i infeasible, n no feasible solution exists).
func status(primal, dual string) domain.Status {
	switch {
	case primal == "n":
		return domain.StatusInfeasible
	case dual == "n":
		return domain.StatusUnbounded
	case primal == "f" && dual == "f":
		return domain.StatusOptimal
	}
	return domain.StatusSolverFailure
}
