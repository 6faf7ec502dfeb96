package analyses

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
	"github.com/bryanwahyu/geoanalysis/internal/infra/db/memory"
)

// stepClock advances one second per call so created_at ordering is stable.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recordingRepo remembers every status written per analysis.
type recordingRepo struct {
	*memory.AnalysisRepository
	mu   sync.Mutex
	seen map[domain.ID][]domain.Status
	// failOn makes Update fail for this status
	failOn domain.Status
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{AnalysisRepository: memory.NewAnalysisRepository(), seen: map[domain.ID][]domain.Status{}}
}

func (r *recordingRepo) record(a *domain.Analysis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[a.ID] = append(r.seen[a.ID], a.Status)
}

func (r *recordingRepo) Save(ctx context.Context, a *domain.Analysis) error {
	if err := r.AnalysisRepository.Save(ctx, a); err != nil {
		return err
	}
	r.record(a)
	return nil
}

func (r *recordingRepo) Update(ctx context.Context, a *domain.Analysis) error {
	if r.failOn != "" && a.Status == r.failOn {
		return errors.New("db connection reset")
	}
	if err := r.AnalysisRepository.Update(ctx, a); err != nil {
		return err
	}
	r.record(a)
	return nil
}

func (r *recordingRepo) statuses(id domain.ID) []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Status(nil), r.seen[id]...)
}

type fakeArtifacts struct {
	keys    []string
	removed []string
	err     error
}

func (f *fakeArtifacts) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeArtifacts) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "http://minio.local/geoanalysis/" + key, nil
}

// failingFeatures rejects every batch.
type failingFeatures struct {
	*memory.FeatureRepository
}

func (failingFeatures) SaveBatch(context.Context, string, []*spatial.Feature) error {
	return errors.New("disk full")
}

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (f *fakeEvents) Publish(_ context.Context, e domain.StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return errors.New("broker down") // must never affect the run
}

type fixture struct {
	svc      *Service
	repo     *recordingRepo
	datasets *memory.DatasetRepository
	layers   *memory.LayerRepository
	features *memory.FeatureRepository
	errs     *memory.ErrorLog
	clock    *stepClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newRecordingRepo(),
		datasets: memory.NewDatasetRepository(),
		layers:   memory.NewLayerRepository(),
		features: memory.NewFeatureRepository(),
		errs:     memory.NewErrorLog(),
		clock:    &stepClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)},
	}
	f.svc = &Service{
		Repo:     f.repo,
		Datasets: f.datasets,
		Layers:   f.layers,
		Features: f.features,
		Errors:   f.errs,
		Clock:    f.clock,
		Log:      zap.NewNop(),
	}
	return f
}

// seed stores a dataset with one layer holding geoms.
func (f *fixture) seed(t *testing.T, id string, geoms ...orb.Geometry) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.datasets.Save(ctx, &spatial.Dataset{ID: id, Name: "ds-" + id, OwnerID: "u1", CreatedAt: f.clock.Now()}))
	if len(geoms) == 0 {
		return
	}
	layerID := "layer-" + id
	require.NoError(t, f.layers.Save(ctx, &spatial.Layer{
		ID: layerID, Name: "input", DatasetID: id, GeometryKind: spatial.KindOfAll(geoms), Type: spatial.LayerVector,
	}))
	features := make([]*spatial.Feature, 0, len(geoms))
	for i, g := range geoms {
		features = append(features, &spatial.Feature{
			ID:         fmt.Sprintf("%s-%d", layerID, i),
			Properties: map[string]any{"idx": i},
			Geometry:   g,
		})
	}
	require.NoError(t, f.features.SaveBatch(ctx, layerID, features))
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func pointGroups() []orb.Geometry {
	centers := []orb.Point{{106.8456, -6.2088}, {107.6191, -6.9175}, {112.7521, -7.2575}}
	var out []orb.Geometry
	for _, c := range centers {
		for i := 0; i < 15; i++ {
			a := float64(i) * 2 * math.Pi / 15
			out = append(out, orb.Point{c[0] + 0.003*math.Cos(a), c[1] + 0.003*math.Sin(a)})
		}
	}
	return out
}
