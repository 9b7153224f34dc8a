package tui

import (
	"github.com/muesli/termenv"

	"github.com/aretw0/plantopt/pkg/domain"
)

// StatusLabel colors a solve status for the terminal: green when optimal, yellow for
// infeasible or unbounded programs, red for solver failures.
func StatusLabel(p termenv.Profile, status domain.Status) string {
	color := "#f87171"
	switch status {
	case domain.StatusOptimal:
		color = "#4ade80"
	case domain.StatusInfeasible, domain.StatusUnbounded:
		color = "#facc15"
	}
	return p.String(string(status)).Foreground(p.Color(color)).Bold().String()
}
