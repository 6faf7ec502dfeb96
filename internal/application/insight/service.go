package insight

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/application"
	domain "github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
	"github.com/bryanwahyu/geoanalysis/internal/domain/insight"
)

type Service struct {
	Analyses domain.Repository
	Repo     insight.Repository
	Client   insight.Client
	Model    string
	Clock    application.Clock
	Log      *zap.Logger
}

// Narrate asks the client to explain a completed analysis and stores the result.
func (s *Service) Narrate(ctx context.Context, analysisID, owner string) (*insight.Insight, error) {
	a, err := s.Analyses.Get(ctx, domain.ID(analysisID))
	if err != nil {
		return nil, err
	}
	if a.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", insight.ErrNotCompleted, analysisID, a.Status)
	}

	subject := insight.Subject{
		AnalysisID: string(a.ID),
		Name:       a.Name,
		Type:       string(a.Type),
		DatasetID:  a.DatasetID,
		Parameters: a.Parameters,
		Statistics: a.ResultMetadata,
	}
	result, err := s.Client.Narrate(ctx, subject)
	if err != nil {
		s.log().Warn("insight narration failed", zap.String("analysis_id", analysisID), zap.Error(err))
		return nil, err
	}

	if owner == "" {
		owner = a.OwnerID
	}
	in := &insight.Insight{
		ID:         insight.ID(uuid.New().String()),
		AnalysisID: analysisID,
		OwnerID:    owner,
		Model:      s.Model,
		Result:     result,
		CreatedAt:  s.Clock.Now().UTC(),
	}
	if err := s.Repo.Save(ctx, in); err != nil {
		return nil, err
	}
	s.log().Info("insight stored", zap.String("analysis_id", analysisID), zap.String("insight_id", string(in.ID)))
	return in, nil
}

// Latest returns the newest stored insight of an analysis.
func (s *Service) Latest(ctx context.Context, analysisID string) (*insight.Insight, error) {
	return s.Repo.LatestByAnalysis(ctx, analysisID)
}

// List pages through the insights of a user, newest first.
func (s *Service) List(ctx context.Context, owner string, page, pageSize int) ([]*insight.Insight, error) {
	return s.Repo.Paginate(ctx, owner, page, pageSize)
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
