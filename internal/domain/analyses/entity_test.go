package analyses

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}
	allowed := map[Status][]Status{
		StatusPending: {StatusRunning},
		StatusRunning: {StatusCompleted, StatusFailed},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestAnalysisClone(t *testing.T) {
	now := time.Now()
	a := &Analysis{
		ID:             "a1",
		Parameters:     map[string]any{"distance": 10},
		ResultMetadata: map[string]any{"output_layer_id": "l1"},
		CompletedAt:    &now,
	}
	c := a.Clone()
	c.Parameters["distance"] = 20
	c.ResultMetadata["error"] = "x"
	*c.CompletedAt = now.Add(time.Hour)

	assert.Equal(t, 10, a.Parameters["distance"])
	assert.NotContains(t, a.ResultMetadata, "error")
	assert.Equal(t, now, *a.CompletedAt)
	assert.Equal(t, "l1", a.OutputLayerID())
	assert.Equal(t, "x", c.ErrorMessage())
}
