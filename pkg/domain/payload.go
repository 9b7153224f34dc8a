package domain

import (
	"maps"
	"slices"
	"strings"
)

// Payload keys recognised by the model builder. A key is "<kind>.<name>",
// e.g. "demand.gasoline" or "capacity.distill".
const (
	KeyDemand   = "demand"
	KeyPrice    = "price"
	KeyCost     = "cost"
	KeySpot     = "spot"
	KeyCapacity = "capacity"
)

// Payload is the realization of the stochastic parameters at one tree node.
// Unknown keys are carried along but ignored by the model builder.
type Payload map[string]float64

// PayloadKey joins a parameter kind and an entity name.
func PayloadKey(kind, name string) string {
	return kind + "." + name
}

// SplitPayloadKey is the inverse of PayloadKey.
func SplitPayloadKey(key string) (kind, name string, ok bool) {
	return strings.Cut(key, ".")
}

// Lookup returns the value of kind.name when present.
func (p Payload) Lookup(kind, name string) (float64, bool) {
	v, ok := p[PayloadKey(kind, name)]
	return v, ok
}

// Clone returns an independent copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	return maps.Clone(p)
}

// Keys returns the keys in sorted order.
func (p Payload) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}
