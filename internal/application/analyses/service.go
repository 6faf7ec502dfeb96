package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/application"
	domain "github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
)

const defaultRecentLimit = 10

// Metrics hook untuk observability run analisis
type Metrics interface {
	AnalysisStarted(kind string)
	AnalysisFinished(kind string, status string, elapsed time.Duration)
}

// Service is the analysis orchestrator: it owns the Analysis state machine
// pending -> running -> completed|failed and is the only writer of records.
// Errors, Artifacts, Events and Metrics are optional.
type Service struct {
	Repo      domain.Repository
	Datasets  spatial.DatasetRepository
	Layers    spatial.LayerRepository
	Features  spatial.FeatureRepository
	Errors    domain.ErrorLog
	Artifacts domain.ArtifactStore
	Events    domain.EventPublisher
	Metrics   Metrics
	Clock     application.Clock
	Log       *zap.Logger
}

//
// ==== USE CASES ====
//

// CreateCommand untuk bikin analysis baru
type CreateCommand struct {
	Name        string
	Description string
	Type        string
	DatasetID   string
	OwnerID     string
	Parameters  map[string]any
}

// Create validates the request and stores a pending analysis. Nothing is
// stored when validation fails.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*domain.Analysis, error) {
	kind, err := operations.ParseKind(cmd.Type)
	if err != nil {
		return nil, err
	}
	params := operations.Parameters{}
	for k, v := range cmd.Parameters {
		params[k] = v
	}
	if err := operations.Validate(kind, params); err != nil {
		return nil, err
	}
	if _, err := s.Datasets.Get(ctx, cmd.DatasetID); err != nil {
		return nil, err
	}
	if kind == operations.KindIntersection {
		target, _ := operations.TargetDataset(params)
		if _, err := s.Datasets.Get(ctx, target); err != nil {
			return nil, fmt.Errorf("target dataset: %w", err)
		}
	}

	name := cmd.Name
	if name == "" {
		name = fmt.Sprintf("%s analysis", kind)
	}
	a := &domain.Analysis{
		ID:          domain.ID(uuid.New().String()),
		Name:        name,
		Description: cmd.Description,
		Type:        kind,
		Parameters:  params,
		Status:      domain.StatusPending,
		OwnerID:     cmd.OwnerID,
		DatasetID:   cmd.DatasetID,
		CreatedAt:   s.Clock.Now().UTC(),
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return nil, err
	}

	s.log().Info("analysis created",
		zap.String("analysis_id", string(a.ID)),
		zap.String("type", string(a.Type)),
		zap.String("dataset_id", a.DatasetID))
	s.publish(ctx, a)
	return a, nil
}

// Run drives one pending analysis to completed or failed. Any error after
// the running transition is recorded on the analysis and also returned.
func (s *Service) Run(ctx context.Context, id domain.ID) error {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !a.Status.CanTransition(domain.StatusRunning) {
		// double run: programming error di sisi pemanggil, record tidak disentuh
		s.log().Error("analysis run rejected",
			zap.String("analysis_id", string(id)),
			zap.String("status", string(a.Status)))
		return fmt.Errorf("%w: analysis %s is %s", domain.ErrInvalidTransition, id, a.Status)
	}

	started := s.Clock.Now().UTC()
	a.Status = domain.StatusRunning
	a.StartedAt = &started
	if err := s.Repo.Update(ctx, a); err != nil {
		return err
	}
	s.publish(ctx, a)
	if s.Metrics != nil {
		s.Metrics.AnalysisStarted(string(a.Type))
	}

	meta, phase, err := s.execute(ctx, a)
	if err != nil {
		s.fail(ctx, a, phase, err)
		return err
	}

	done := s.Clock.Now().UTC()
	a.Status = domain.StatusCompleted
	a.CompletedAt = &done
	a.ResultMetadata = meta
	if err := s.Repo.Update(ctx, a); err != nil {
		layerID, _ := meta["output_layer_id"].(string)
		s.discardOutput(ctx, layerID, true)
		if _, ok := meta["artifact_url"]; ok {
			s.removeArtifact(ctx, artifactKey(a.ID, layerID))
		}
		s.fail(ctx, a, domain.PhasePersist, err)
		return err
	}

	s.log().Info("analysis completed",
		zap.String("analysis_id", string(a.ID)),
		zap.String("type", string(a.Type)),
		zap.String("output_layer_id", a.OutputLayerID()),
		zap.Duration("elapsed", done.Sub(started)))
	s.publish(ctx, a)
	s.observe(a, done.Sub(started))
	return nil
}

// execute loads input, runs the operation and persists the output layer.
// It returns the result metadata or the phase that failed.
func (s *Service) execute(ctx context.Context, a *domain.Analysis) (map[string]any, domain.Phase, error) {
	op, err := operations.Lookup(a.Type)
	if err != nil {
		return nil, domain.PhaseOperation, err
	}

	source, err := s.loadDataset(ctx, a.DatasetID)
	if err != nil {
		return nil, domain.PhaseLoad, err
	}
	in := operations.Input{Features: source, Params: a.Parameters}
	if a.Type == operations.KindIntersection {
		targetID, err := operations.TargetDataset(a.Parameters)
		if err != nil {
			return nil, domain.PhaseOperation, err
		}
		if in.Target, err = s.loadDataset(ctx, targetID); err != nil {
			return nil, domain.PhaseLoad, fmt.Errorf("target dataset: %w", err)
		}
	}

	out, err := op(in)
	if err != nil {
		return nil, domain.PhaseOperation, err
	}

	now := s.Clock.Now().UTC()
	layer := &spatial.Layer{
		ID:           uuid.New().String(),
		Name:         out.LayerName,
		AnalysisID:   string(a.ID),
		GeometryKind: out.GeometryKind,
		Type:         out.LayerType,
		Style:        out.Style,
		Visible:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	meta := make(map[string]any, len(out.Statistics)+2)
	for k, v := range out.Statistics {
		meta[k] = v
	}

	// features dulu baru layer: layer tanpa features tidak boleh kelihatan
	features := spatial.FromFeatureCollection(layer.ID, out.Features)
	for _, f := range features {
		f.ID = uuid.New().String()
		f.CreatedAt = now
	}
	if err := s.Features.SaveBatch(ctx, layer.ID, features); err != nil {
		s.discardOutput(ctx, layer.ID, false)
		return nil, domain.PhasePersist, err
	}
	if err := s.Layers.Save(ctx, layer); err != nil {
		s.discardOutput(ctx, layer.ID, false)
		return nil, domain.PhasePersist, err
	}

	if s.Artifacts != nil {
		data, err := json.Marshal(out.Features)
		if err != nil {
			s.discardOutput(ctx, layer.ID, true)
			return nil, domain.PhaseExport, err
		}
		key := artifactKey(a.ID, layer.ID)
		url, err := s.Artifacts.Put(ctx, key, data, "application/geo+json")
		if err != nil {
			s.discardOutput(ctx, layer.ID, true)
			return nil, domain.PhaseExport, err
		}
		meta["artifact_url"] = url
	}

	meta["output_layer_id"] = layer.ID
	return meta, "", nil
}

// discardOutput removes what was stored for an output layer of a run that
// fails afterwards. Cleanup errors are only logged.
func (s *Service) discardOutput(ctx context.Context, layerID string, layerSaved bool) {
	if err := s.Features.DeleteByLayer(ctx, layerID); err != nil {
		s.log().Warn("discard output features", zap.String("layer_id", layerID), zap.Error(err))
	}
	if !layerSaved {
		return
	}
	if err := s.Layers.Delete(ctx, layerID); err != nil {
		s.log().Warn("discard output layer", zap.String("layer_id", layerID), zap.Error(err))
	}
}

func (s *Service) removeArtifact(ctx context.Context, key string) {
	if err := s.Artifacts.Remove(ctx, key); err != nil {
		s.log().Warn("remove artifact", zap.String("key", key), zap.Error(err))
	}
}

func artifactKey(id domain.ID, layerID string) string {
	return fmt.Sprintf("analyses/%s/%s.geojson", id, layerID)
}

// loadDataset collects the features of every layer of a dataset.
func (s *Service) loadDataset(ctx context.Context, datasetID string) (*geojson.FeatureCollection, error) {
	if _, err := s.Datasets.Get(ctx, datasetID); err != nil {
		return nil, err
	}
	layers, err := s.Layers.ListByDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	var all []*spatial.Feature
	for _, l := range layers {
		fs, err := s.Features.ListByLayer(ctx, l.ID, spatial.FeatureQuery{})
		if err != nil {
			return nil, err
		}
		all = append(all, fs...)
	}
	return spatial.ToFeatureCollection(all), nil
}

func (s *Service) fail(ctx context.Context, a *domain.Analysis, phase domain.Phase, cause error) {
	now := s.Clock.Now().UTC()
	a.Status = domain.StatusFailed
	a.CompletedAt = &now
	a.ResultMetadata = map[string]any{"error": cause.Error()}

	log := s.log().With(
		zap.String("analysis_id", string(a.ID)),
		zap.String("type", string(a.Type)),
		zap.String("phase", string(phase)))
	log.Warn("analysis failed", zap.Error(cause))

	if err := s.Repo.Update(ctx, a); err != nil {
		log.Error("persist failed status", zap.Error(err))
	}
	s.recordError(ctx, a.ID, a.Type, phase, cause)
	s.publish(ctx, a)
	if a.StartedAt != nil {
		s.observe(a, now.Sub(*a.StartedAt))
	}
}

func (s *Service) recordError(ctx context.Context, id domain.ID, kind operations.Kind, phase domain.Phase, cause error) {
	if s.Errors == nil {
		return
	}
	details, _ := json.Marshal(map[string]any{
		"kind": errorKind(cause),
	})
	entry := &domain.ErrorEntry{
		AnalysisID:   id,
		AnalysisType: kind,
		Phase:        phase,
		Message:      cause.Error(),
		DetailsJSON:  string(details),
		CreatedAt:    s.Clock.Now().UTC(),
	}
	if err := s.Errors.Save(ctx, entry); err != nil {
		s.log().Error("save analysis error entry", zap.String("analysis_id", string(id)), zap.Error(err))
	}
}

// errorKind names the sentinel behind err for the error log.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrDatasetNotFound):
		return "dataset_not_found"
	case errors.Is(err, domain.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, domain.ErrGeometryOperation):
		return "geometry_operation"
	case errors.Is(err, domain.ErrUnsupportedAnalysisType):
		return "unsupported_analysis_type"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	}
	return "internal"
}

func (s *Service) publish(ctx context.Context, a *domain.Analysis) {
	if s.Events == nil {
		return
	}
	ev := domain.StatusEvent{
		AnalysisID:     a.ID,
		Type:           string(a.Type),
		Status:         a.Status,
		OwnerID:        a.OwnerID,
		DatasetID:      a.DatasetID,
		OccurredAt:     s.Clock.Now().UTC(),
		ResultMetadata: a.ResultMetadata,
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.log().Warn("publish status event",
			zap.String("analysis_id", string(a.ID)),
			zap.String("status", string(a.Status)),
			zap.Error(err))
	}
}

func (s *Service) observe(a *domain.Analysis, elapsed time.Duration) {
	if s.Metrics != nil {
		s.Metrics.AnalysisFinished(string(a.Type), string(a.Status), elapsed)
	}
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Get ambil 1 analysis by id
func (s *Service) Get(ctx context.Context, id domain.ID) (*domain.Analysis, error) {
	return s.Repo.Get(ctx, id)
}

// ListForUser returns the newest analyses of a user.
func (s *Service) ListForUser(ctx context.Context, owner string, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.Repo.ListByOwner(ctx, owner, limit)
}

// ListForDataset returns every analysis of a dataset, newest first.
func (s *Service) ListForDataset(ctx context.Context, datasetID string) ([]*domain.Analysis, error) {
	return s.Repo.ListByDataset(ctx, datasetID)
}

// OutputLayers returns the result layers of an analysis with their features.
func (s *Service) OutputLayers(ctx context.Context, id domain.ID) ([]spatial.LayerData, error) {
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return nil, err
	}
	layers, err := s.Layers.ListByAnalysis(ctx, string(id))
	if err != nil {
		return nil, err
	}
	out := make([]spatial.LayerData, 0, len(layers))
	for _, l := range layers {
		fs, err := s.Features.ListByLayer(ctx, l.ID, spatial.FeatureQuery{})
		if err != nil {
			return nil, err
		}
		out = append(out, spatial.NewLayerData(l, fs))
	}
	return out, nil
}

// ErrorLog returns recorded failures of an analysis, newest first.
func (s *Service) ErrorLog(ctx context.Context, id domain.ID, limit int) ([]*domain.ErrorEntry, error) {
	if s.Errors == nil {
		return []*domain.ErrorEntry{}, nil
	}
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Errors.ListByAnalysis(ctx, id, limit)
}
