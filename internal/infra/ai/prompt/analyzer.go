package prompt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/geoanalysis/internal/domain/insight"
)

// Offline narrates results from their statistics without calling a model.
// It is the insight client when no OpenAI key is configured.
type Offline struct{}

func (Offline) Narrate(_ context.Context, s insight.Subject) (string, error) {
	return Summarize(s)
}

// Summarize returns a JSON string matching the narration schema.
func Summarize(s insight.Subject) (string, error) {
	out := Narration{AnalysisID: s.AnalysisID, AnalysisType: s.Type}
	stats := s.Statistics

	add := func(title, format string, args ...any) {
		out.Highlights = append(out.Highlights, Highlight{Title: title, Detail: fmt.Sprintf(format, args...)})
	}

	switch s.Type {
	case "clustering":
		n := number(stats["num_clusters"])
		total := number(stats["features_processed"])
		out.Summary = fmt.Sprintf("%s grouped %.0f features into %.0f clusters.", algorithmName(stats), total, n)
		sizes := numbers(stats["features_per_cluster"])
		if len(sizes) > 0 {
			largest, idx := sizes[0], 0
			for i, v := range sizes {
				if v > largest {
					largest, idx = v, i
				}
			}
			add("Largest cluster", "Cluster %d holds %.0f features (%.0f%% of the input).", idx, largest, pct(largest, total))
		}
		if noise, ok := stats["noise_points"]; ok {
			nv := number(noise)
			add("Noise", "%.0f features (%.0f%%) belong to no cluster.", nv, pct(nv, total))
			if pct(nv, total) > 30 {
				out.Recommendations = append(out.Recommendations, "Increase eps or lower min_samples; a large share of features is noise.")
			}
		}
	case "buffer":
		out.Summary = fmt.Sprintf("Buffered %.0f features by %.0f m.", number(stats["features_processed"]), number(stats["distance"]))
		add("Resolution", "Curves use %.0f segments per quarter circle.", number(stats["segments"]))
	case "intersection":
		found := number(stats["intersections_found"])
		out.Summary = fmt.Sprintf("Found %.0f intersections against dataset %v.", found, stats["target_dataset_id"])
		if found == 0 {
			out.Recommendations = append(out.Recommendations, "Check that both datasets cover the same area; no overlaps were found.")
		}
	case "heatmap":
		out.Summary = fmt.Sprintf("Estimated point density from %.0f points on %.0f cells.", number(stats["points_processed"]), number(stats["cells"]))
		add("Peak density", "The densest cell reaches %.4g (intensity %.2g, radius %.0f m).",
			number(stats["max_density"]), number(stats["intensity"]), number(stats["radius"]))
	default:
		out.Summary = fmt.Sprintf("Analysis %s finished.", s.AnalysisID)
	}

	if url, ok := stats["artifact_url"]; ok {
		add("Artifact", "Result GeoJSON is stored at %v.", url)
	}
	if out.Highlights == nil {
		out.Highlights = []Highlight{}
	}
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal narration: %w", err)
	}
	return string(b), nil
}

func algorithmName(stats map[string]any) string {
	if a, ok := stats["algorithm"].(string); ok && a == "dbscan" {
		return "DBSCAN"
	}
	return "K-means"
}

func pct(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total * 100
}

// number reads numeric statistics, either native or decoded from JSON.
func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func numbers(v any) []float64 {
	switch xs := v.(type) {
	case []int:
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = float64(x)
		}
		return out
	case []any:
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = number(x)
		}
		return out
	}
	return nil
}
