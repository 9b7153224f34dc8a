package domain

import "fmt"

// InputStream is a purchasable feedstock.
type InputStream struct {
	Name     string  `json:"name" yaml:"name"`
	UnitCost float64 `json:"unit_cost" yaml:"unit_cost"`
	// Availability bounds the planned purchase at each node. Nil means unlimited.
	Availability *float64 `json:"availability,omitempty" yaml:"availability,omitempty"`
	// SpotCost is the unit cost of recourse purchases made after a node's realization
	// is observed. Nil means the input has no spot market.
	SpotCost *float64 `json:"spot_cost,omitempty" yaml:"spot_cost,omitempty"`
}

// Product is a sellable output.
type Product struct {
	Name  string  `json:"name" yaml:"name"`
	Price float64 `json:"price" yaml:"price"`
	// Demand bounds sales at each node. Nil means unlimited.
	Demand *float64 `json:"demand,omitempty" yaml:"demand,omitempty"`
	// MustServe turns demand into a service floor: output must cover it.
	MustServe bool `json:"must_serve,omitempty" yaml:"must_serve,omitempty"`
}

// Process is a conversion unit with a throughput capacity.
type Process struct {
	Name     string  `json:"name" yaml:"name"`
	Capacity float64 `json:"capacity" yaml:"capacity"`
}

// Yield is the quantity of Product obtained per unit of Input run through Process.
type Yield struct {
	Input   string  `json:"input" yaml:"input"`
	Process string  `json:"process" yaml:"process"`
	Product string  `json:"product" yaml:"product"`
	Ratio   float64 `json:"ratio" yaml:"ratio"`
}

// ResourceSpec is the static description of the refinery. It is owned by the caller and
// treated as read-only by every component.
type ResourceSpec struct {
	Inputs    []InputStream `json:"inputs" yaml:"inputs"`
	Products  []Product     `json:"products" yaml:"products"`
	Processes []Process     `json:"processes" yaml:"processes"`
	Yields    []Yield       `json:"yields" yaml:"yields"`
	// RampLimit bounds how much a product's output may change between consecutive
	// operating stages. Nil disables the limit.
	RampLimit *float64 `json:"ramp_limit,omitempty" yaml:"ramp_limit,omitempty"`
}

// Route is an (input, process) pair that has at least one yield.
type Route struct {
	Input   string
	Process string
}

func (r Route) String() string { return r.Input + "/" + r.Process }

// Routes returns the distinct (input, process) pairs in yield order.
func (r *ResourceSpec) Routes() []Route {
	seen := make(map[Route]bool)
	var routes []Route
	for _, y := range r.Yields {
		rt := Route{Input: y.Input, Process: y.Process}
		if !seen[rt] {
			seen[rt] = true
			routes = append(routes, rt)
		}
	}
	return routes
}

// YieldOf returns the ratio of product per unit of input through process (0 if none).
func (r *ResourceSpec) YieldOf(rt Route, product string) float64 {
	total := 0.0
	for _, y := range r.Yields {
		if y.Input == rt.Input && y.Process == rt.Process && y.Product == product {
			total += y.Ratio
		}
	}
	return total
}

// Validate checks names, references and signs. All failures are reported at once
// in an *AggregateError.
func (r *ResourceSpec) Validate() error {
	var errs []error
	add := func(key, reason string, value any) {
		errs = append(errs, &ValidationError{Key: key, Reason: reason, Value: value})
	}

	inputs := make(map[string]bool)
	for i, in := range r.Inputs {
		key := fmt.Sprintf("inputs[%d]", i)
		switch {
		case in.Name == "":
			add(key+".name", "must not be empty", nil)
		case inputs[in.Name]:
			add(key+".name", "duplicate input", in.Name)
		}
		inputs[in.Name] = true
		if in.UnitCost < 0 {
			add(key+".unit_cost", "must not be negative", in.UnitCost)
		}
		if in.Availability != nil && *in.Availability < 0 {
			add(key+".availability", "must not be negative", *in.Availability)
		}
		if in.SpotCost != nil && *in.SpotCost < 0 {
			add(key+".spot_cost", "must not be negative", *in.SpotCost)
		}
	}

	products := make(map[string]bool)
	for i, p := range r.Products {
		key := fmt.Sprintf("products[%d]", i)
		switch {
		case p.Name == "":
			add(key+".name", "must not be empty", nil)
		case products[p.Name]:
			add(key+".name", "duplicate product", p.Name)
		}
		products[p.Name] = true
		if p.Price < 0 {
			add(key+".price", "must not be negative", p.Price)
		}
		if p.Demand != nil && *p.Demand < 0 {
			add(key+".demand", "must not be negative", *p.Demand)
		}
	}

	processes := make(map[string]bool)
	for i, p := range r.Processes {
		key := fmt.Sprintf("processes[%d]", i)
		switch {
		case p.Name == "":
			add(key+".name", "must not be empty", nil)
		case processes[p.Name]:
			add(key+".name", "duplicate process", p.Name)
		}
		processes[p.Name] = true
		if p.Capacity < 0 {
			add(key+".capacity", "must not be negative", p.Capacity)
		}
	}

	usedInputs := make(map[string]bool)
	usedProcesses := make(map[string]bool)
	for i, y := range r.Yields {
		key := fmt.Sprintf("yields[%d]", i)
		if !inputs[y.Input] {
			add(key+".input", "unknown input", y.Input)
		}
		if !processes[y.Process] {
			add(key+".process", "unknown process", y.Process)
		}
		if !products[y.Product] {
			add(key+".product", "unknown product", y.Product)
		}
		if y.Ratio < 0 {
			add(key+".ratio", "must not be negative", y.Ratio)
		}
		usedInputs[y.Input] = true
		usedProcesses[y.Process] = true
	}

	for i, in := range r.Inputs {
		if in.Name != "" && !usedInputs[in.Name] {
			add(fmt.Sprintf("inputs[%d]", i), "input has no yield and can never be consumed", in.Name)
		}
	}
	for i, p := range r.Processes {
		if p.Name != "" && !usedProcesses[p.Name] {
			add(fmt.Sprintf("processes[%d]", i), "process has no yield", p.Name)
		}
	}

	if r.RampLimit != nil && *r.RampLimit < 0 {
		add("ramp_limit", "must not be negative", *r.RampLimit)
	}
	if len(r.Inputs) == 0 {
		add("inputs", "at least one input is required", nil)
	}
	if len(r.Products) == 0 {
		add("products", "at least one product is required", nil)
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Float returns a pointer to v. It is a convenience for optional bounds.
func Float(v float64) *float64 { return &v }
