package spatial

type StyleType string

const (
	StyleCategorical StyleType = "categorical"
	StyleContinuous  StyleType = "continuous"
	StyleSimple      StyleType = "simple"
)

type StyleValue struct {
	Color   string  `json:"color,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
	Weight  float64 `json:"weight,omitempty"`
	Radius  float64 `json:"radius,omitempty"`
}

type StyleStop struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Style descriptor yang dikirim ke client bersama layer
type Style struct {
	Property string                `json:"property,omitempty"`
	Type     StyleType             `json:"type"`
	Default  *StyleValue           `json:"default,omitempty"`
	Values   map[string]StyleValue `json:"values,omitempty"`
	Stops    []StyleStop           `json:"stops,omitempty"`
}
