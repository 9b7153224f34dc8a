package outcome

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/plantopt/pkg/domain"
)

// Row is one entry of a batch comparison. Err records a run that failed outright.
type Row struct {
	Label   string
	Outcome *domain.Outcome
	Err     error
}

// Line is a tabulated comparison entry.
type Line struct {
	Label     string             `json:"label"`
	Status    domain.Status      `json:"status"`
	Expected  *float64           `json:"expected,omitempty"`
	Gap       *float64           `json:"gap,omitempty"`
	LostSales *float64           `json:"lost_sales,omitempty"`
	Purchase  map[string]float64 `json:"purchase,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Table compares runs against the first optimal one.
type Table struct {
	Reference string `json:"reference,omitempty"`
	Lines     []Line `json:"lines"`
}

// Compare tabulates rows of mixed status. A failed or non-optimal run becomes a line
// without figures; it never aborts the comparison.
func Compare(rows ...Row) *Table {
	t := &Table{Lines: make([]Line, 0, len(rows))}
	var ref *float64
	for _, r := range rows {
		line := Line{Label: r.Label}
		switch {
		case r.Err != nil:
			line.Status = domain.StatusSolverFailure
			line.Error = r.Err.Error()
		case r.Outcome == nil:
			line.Status = domain.StatusSolverFailure
			line.Error = "no outcome"
		default:
			line.Status = r.Outcome.Status
		}
		if line.Error == "" && line.Status == domain.StatusOptimal {
			exp := r.Outcome.ExpectedObjective
			line.Expected = &exp
			lost := 0.0
			for _, sv := range r.Outcome.Scenarios {
				lost += sv.Prob * sv.LostSales
			}
			line.LostSales = &lost
			if r.Outcome.Root != nil {
				line.Purchase = r.Outcome.Root.Purchase
			}
			if ref == nil {
				ref = &exp
				t.Reference = r.Label
			}
			gap := exp - *ref
			line.Gap = &gap
		}
		t.Lines = append(t.Lines, line)
	}
	return t
}

// Markdown renders the table.
func (t *Table) Markdown() string {
	var sb strings.Builder
	sb.WriteString("| run | status | expected | gap | expected lost sales | first-stage purchase |\n")
	sb.WriteString("|---|---|---:|---:|---:|---|\n")
	for _, l := range t.Lines {
		status := string(l.Status)
		if l.Error != "" {
			status += ": " + strings.ReplaceAll(l.Error, "|", "/")
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s |\n",
			l.Label, status, num(l.Expected), num(l.Gap), num(l.LostSales), purchase(l.Purchase))
	}
	return sb.String()
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func purchase(m map[string]float64) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.2f", k, m[k])
	}
	return strings.Join(parts, ", ")
}
