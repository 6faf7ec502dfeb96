package operations

import (
	"fmt"
	"strconv"

	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
)

// category10, urutan sama dengan palette d3
var clusterPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

const noiseColor = "#999999"

// gradients for heatmap output, stops on a 0..1 weight scale
var gradients = map[string][]spatial.StyleStop{
	"default": {
		{Value: 0.4, Color: "#0000ff"},
		{Value: 0.6, Color: "#00ffff"},
		{Value: 0.7, Color: "#00ff00"},
		{Value: 0.8, Color: "#ffff00"},
		{Value: 1.0, Color: "#ff0000"},
	},
	"viridis": {
		{Value: 0, Color: "#440154"},
		{Value: 0.25, Color: "#3b528b"},
		{Value: 0.5, Color: "#21918c"},
		{Value: 0.75, Color: "#5ec962"},
		{Value: 1, Color: "#fde725"},
	},
	"inferno": {
		{Value: 0, Color: "#000004"},
		{Value: 0.25, Color: "#57106e"},
		{Value: 0.5, Color: "#bc3754"},
		{Value: 0.75, Color: "#f98e09"},
		{Value: 1, Color: "#fcffa4"},
	},
	"greyscale": {
		{Value: 0, Color: "#f0f0f0"},
		{Value: 1, Color: "#000000"},
	},
}

func clusterColor(id int) string {
	if id < 0 {
		return noiseColor
	}
	return clusterPalette[id%len(clusterPalette)]
}

func clusterStyle(ids []int) spatial.Style {
	values := make(map[string]spatial.StyleValue, len(ids))
	for _, id := range ids {
		values[strconv.Itoa(id)] = spatial.StyleValue{Color: clusterColor(id), Opacity: 0.7, Radius: 6}
	}
	return spatial.Style{Property: "cluster", Type: spatial.StyleCategorical, Values: values}
}

func simpleStyle(color string) spatial.Style {
	return spatial.Style{
		Type:    spatial.StyleSimple,
		Default: &spatial.StyleValue{Color: color, Opacity: 0.5, Weight: 2},
	}
}

// heatmapStyle scales the gradient stops to the density range of the layer.
func heatmapStyle(gradient string, maxDensity float64) spatial.Style {
	src := gradients[gradient]
	stops := make([]spatial.StyleStop, 0, len(src))
	for _, s := range src {
		stops = append(stops, spatial.StyleStop{Value: s.Value * maxDensity, Color: s.Color})
	}
	return spatial.Style{Property: "density", Type: spatial.StyleContinuous, Stops: stops}
}

// colorAt interpolates the gradient at weight w in [0, 1].
func colorAt(gradient string, w float64) string {
	stops := gradients[gradient]
	if len(stops) == 0 {
		return ""
	}
	if w <= stops[0].Value {
		return stops[0].Color
	}
	for i := 1; i < len(stops); i++ {
		if w <= stops[i].Value {
			lo, hi := stops[i-1], stops[i]
			t := (w - lo.Value) / (hi.Value - lo.Value)
			return mixHex(lo.Color, hi.Color, t)
		}
	}
	return stops[len(stops)-1].Color
}

func mixHex(a, b string, t float64) string {
	ar, ag, ab := parseHex(a)
	br, bg, bb := parseHex(b)
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return fmt.Sprintf("#%02x%02x%02x", mix(ar, br), mix(ag, bg), mix(ab, bb))
}

func parseHex(s string) (r, g, b uint8) {
	if len(s) != 7 || s[0] != '#' {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}
