package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/plantopt/pkg/domain"
)

// Report renders a solve and its outcome as markdown.
func Report(title string, res *domain.SolveResult, out *domain.Outcome) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "- **status**: %s\n", res.Status)
	fmt.Fprintf(&sb, "- **backend**: %s (%s formulation, %d variables, %d constraints, %s)\n",
		res.Backend, res.Formulation, res.Variables, res.Constraints, res.Elapsed.Round(time.Microsecond))
	if res.Diagnostic != "" {
		fmt.Fprintf(&sb, "- **diagnostic**: %s\n", res.Diagnostic)
	}
	if out == nil || out.Status != domain.StatusOptimal {
		return sb.String()
	}

	fmt.Fprintf(&sb, "- **expected objective**: %.2f\n", out.ExpectedObjective)
	if out.VSS != nil {
		fmt.Fprintf(&sb, "- **value of the stochastic solution**: %.2f\n", *out.VSS)
	}
	if out.EVPI != nil {
		fmt.Fprintf(&sb, "- **expected value of perfect information**: %.2f\n", *out.EVPI)
	}

	if out.Root != nil && len(out.Root.Purchase) > 0 {
		sb.WriteString("\n## First-stage plan\n\n| input | purchase |\n|---|---:|\n")
		for _, k := range slices.Sorted(maps.Keys(out.Root.Purchase)) {
			fmt.Fprintf(&sb, "| %s | %.2f |\n", k, out.Root.Purchase[k])
		}
	}

	if d := out.Distribution; d != nil {
		sb.WriteString("\n## Distribution\n\n| min | mean | max | std dev | VaR | CVaR |\n|---:|---:|---:|---:|---:|---:|\n")
		fmt.Fprintf(&sb, "| %.2f | %.2f | %.2f | %.2f | %.2f | %.2f |\n", d.Min, d.Mean, d.Max, d.StdDev, d.VaR, d.CVaR)
		fmt.Fprintf(&sb, "\nVaR and CVaR at the worst %.0f%% of scenarios.\n", 100*d.Level)
	}

	if len(out.Scenarios) > 0 {
		sb.WriteString("\n## Scenarios\n\n| scenario | probability | value | lost sales | excess |\n|---|---:|---:|---:|---:|\n")
		for _, s := range out.Scenarios {
			fmt.Fprintf(&sb, "| %s | %.4f | %.2f | %.2f | %.2f |\n", s.Name, s.Prob, s.Value, s.LostSales, s.Excess)
		}
	}
	return sb.String()
}
