package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/suite"

	"github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
	"github.com/bryanwahyu/geoanalysis/internal/domain/insight"
	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
)

var created = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type RepoTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
}

func (s *RepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)
}

func (s *RepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

var analysisCols = []string{
	"id", "name", "description", "analysis_type", "parameters_json", "status", "task_id",
	"user_id", "dataset_id", "created_at", "started_at", "completed_at", "result_metadata_json",
}

func (s *RepoTestSuite) TestAnalysisSave() {
	repo := NewAnalysisRepository(s.db)
	s.mock.ExpectExec("INSERT INTO analyses").
		WithArgs(analyses.ID("a1"), "buffer analysis", "", "buffer", `{"distance":500}`, "pending",
			sql.NullString{}, "u1", "d1", created, sql.NullTime{}, sql.NullTime{}, "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), &analyses.Analysis{
		ID: "a1", Name: "buffer analysis", Type: operations.KindBuffer,
		Parameters: operations.Parameters{"distance": 500},
		Status:     analyses.StatusPending, OwnerID: "u1", DatasetID: "d1", CreatedAt: created,
	})
	s.NoError(err)
}

func (s *RepoTestSuite) TestAnalysisUpdateDoesNotTouchTask() {
	repo := NewAnalysisRepository(s.db)
	done := created.Add(time.Minute)
	s.mock.ExpectExec(`UPDATE analyses SET\s+name=\?, description=\?, status=\?, started_at=\?, completed_at=\?, result_metadata_json=\?\s+WHERE id=\?`).
		WithArgs("x", "", "completed", sql.NullTime{Time: created, Valid: true}, sql.NullTime{Time: done, Valid: true},
			`{"output_layer_id":"l1"}`, analyses.ID("a1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &analyses.Analysis{
		ID: "a1", Name: "x", Status: analyses.StatusCompleted, TaskID: "ignored",
		StartedAt: &created, CompletedAt: &done,
		ResultMetadata: map[string]any{"output_layer_id": "l1"},
	})
	s.NoError(err)
}

func (s *RepoTestSuite) TestAnalysisUpdateMissing() {
	repo := NewAnalysisRepository(s.db)
	s.mock.ExpectExec("UPDATE analyses SET task_id").
		WithArgs("t1", analyses.ID("nope")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AttachTask(context.Background(), "nope", "t1")
	s.ErrorIs(err, analyses.ErrAnalysisNotFound)
}

func (s *RepoTestSuite) TestAnalysisGetByTask() {
	repo := NewAnalysisRepository(s.db)
	done := created.Add(time.Minute)
	s.mock.ExpectQuery(`SELECT .* FROM analyses WHERE task_id=\?`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(analysisCols).AddRow(
			"a1", "k", "", "clustering", []byte(`{"n_clusters":3}`), "completed", "t1",
			"u1", "d1", created, created, done, []byte(`{"num_clusters":3,"output_layer_id":"l1"}`),
		))

	a, err := repo.GetByTask(context.Background(), "t1")
	s.Require().NoError(err)
	s.Equal(operations.KindClustering, a.Type)
	s.Equal(analyses.StatusCompleted, a.Status)
	s.Equal("t1", a.TaskID)
	s.Equal(float64(3), a.Parameters["n_clusters"])
	s.Equal("l1", a.OutputLayerID())
	s.Require().NotNil(a.CompletedAt)
	s.Equal(done, *a.CompletedAt)
}

func (s *RepoTestSuite) TestAnalysisGetNotFound() {
	repo := NewAnalysisRepository(s.db)
	s.mock.ExpectQuery(`FROM analyses WHERE id=\?`).WithArgs(analyses.ID("nope")).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	s.ErrorIs(err, analyses.ErrAnalysisNotFound)
}

func (s *RepoTestSuite) TestAnalysisListWrapsStorageErrors() {
	repo := NewAnalysisRepository(s.db)
	s.mock.ExpectQuery(`FROM analyses WHERE user_id=\? ORDER BY created_at DESC`).
		WithArgs("u1", 10).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.ListByOwner(context.Background(), "u1", 0)
	s.ErrorIs(err, spatial.ErrStorage)
	s.Contains(err.Error(), "connection reset")
}

func (s *RepoTestSuite) TestDatasetGetNotFound() {
	repo := NewDatasetRepository(s.db)
	s.mock.ExpectQuery(`FROM datasets WHERE id=\?`).WithArgs("d9").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "d9")
	s.ErrorIs(err, spatial.ErrDatasetNotFound)
}

func (s *RepoTestSuite) TestLayerListByAnalysis() {
	repo := NewLayerRepository(s.db)
	s.mock.ExpectQuery(`FROM layers WHERE analysis_id=\?`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "dataset_id", "analysis_id", "geometry_type", "layer_type", "style_json", "visible", "created_at", "updated_at",
		}).AddRow("l1", "Buffer 500m", nil, "a1", "polygon", "geojson", []byte(`{"type":"simple"}`), true, created, created))

	ls, err := repo.ListByAnalysis(context.Background(), "a1")
	s.Require().NoError(err)
	s.Require().Len(ls, 1)
	s.Empty(ls[0].DatasetID)
	s.Equal(spatial.KindPolygon, ls[0].GeometryKind)
	s.Equal(spatial.StyleSimple, ls[0].Style.Type)
}

func (s *RepoTestSuite) TestFeatureSaveBatch() {
	repo := NewFeatureRepository(s.db)
	pt := orb.Point{106.8, -6.2}
	geom, err := wkb.Marshal(pt)
	s.Require().NoError(err)

	s.mock.ExpectBegin()
	prep := s.mock.ExpectPrepare("INSERT INTO features")
	prep.ExpectExec().WithArgs("f1", "l1", `{"name":"a"}`, geom, created).WillReturnResult(sqlmock.NewResult(1, 1))
	s.mock.ExpectCommit()

	err = repo.SaveBatch(context.Background(), "l1", []*spatial.Feature{
		{ID: "f1", Properties: map[string]any{"name": "a"}, Geometry: pt, CreatedAt: created},
	})
	s.NoError(err)
}

func (s *RepoTestSuite) TestFeatureListByLayerWithBBox() {
	repo := NewFeatureRepository(s.db)
	geom, err := wkb.Marshal(orb.Point{106.8, -6.2})
	s.Require().NoError(err)

	s.mock.ExpectQuery(`MBRIntersects\(geom, ST_GeomFromText\(\?, 4326, 'axis-order=long-lat'\)\) ORDER BY seq ASC LIMIT \?`).
		WithArgs("l1", "POLYGON((106 -7,107 -7,107 -6,106 -6,106 -7))", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "layer_id", "properties_json", "geom", "created_at"}).
			AddRow("f1", "l1", []byte(`{}`), geom, created))

	bb := orb.Bound{Min: orb.Point{106, -7}, Max: orb.Point{107, -6}}
	fs, err := repo.ListByLayer(context.Background(), "l1", spatial.FeatureQuery{BBox: &bb, Limit: 5})
	s.Require().NoError(err)
	s.Require().Len(fs, 1)
	s.Equal(orb.Point{106.8, -6.2}, fs[0].Geometry)
	s.NotNil(fs[0].Properties)
}

func (s *RepoTestSuite) TestErrorSaveWrapsInvalidDetails() {
	repo := NewErrorRepository(s.db)
	s.mock.ExpectExec("INSERT INTO analysis_errors").
		WithArgs("a1", "heatmap", "operation", "boom", `{"raw":"not json"}`, created).
		WillReturnResult(sqlmock.NewResult(7, 1))

	e := &analyses.ErrorEntry{AnalysisID: "a1", AnalysisType: "heatmap", Phase: analyses.PhaseOperation,
		Message: "boom", DetailsJSON: "not json", CreatedAt: created}
	s.Require().NoError(repo.Save(context.Background(), e))
	s.Equal(int64(7), e.ID)
}

func (s *RepoTestSuite) TestInsightLatest() {
	repo := NewInsightRepository(s.db)
	s.mock.ExpectQuery(`FROM analysis_insights WHERE analysis_id=\?`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "analysis_id", "user_id", "model", "result_json", "created_at"}).
			AddRow("i1", "a1", "u1", "-", `{"summary":"x"}`, created))

	in, err := repo.LatestByAnalysis(context.Background(), "a1")
	s.Require().NoError(err)
	s.Equal(insight.ID("i1"), in.ID)
	s.Empty(in.Model)
}

func (s *RepoTestSuite) TestLayerUpdateWritesOnlyStyleAndVisibility() {
	repo := NewLayerRepository(s.db)
	s.mock.ExpectExec(`UPDATE layers SET style_json=\?, visible=\?, updated_at=\? WHERE id=\?`).
		WithArgs(`{"type":"simple"}`, false, created, "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(`UPDATE layers SET`).
		WithArgs(`{"type":"simple"}`, true, created, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	s.NoError(repo.Update(ctx, &spatial.Layer{
		ID: "l1", Name: "ignored", DatasetID: "d1",
		Style: spatial.Style{Type: spatial.StyleSimple}, Visible: false, UpdatedAt: created,
	}))
	err := repo.Update(ctx, &spatial.Layer{ID: "nope", Style: spatial.Style{Type: spatial.StyleSimple}, Visible: true, UpdatedAt: created})
	s.ErrorIs(err, spatial.ErrLayerNotFound)
}

func (s *RepoTestSuite) TestDeleteDatasetLayerAndFeatures() {
	ctx := context.Background()
	s.mock.ExpectExec(`DELETE FROM features WHERE layer_id=\?`).
		WithArgs("l1").
		WillReturnResult(sqlmock.NewResult(0, 12))
	s.mock.ExpectExec(`DELETE FROM layers WHERE id=\?`).
		WithArgs("l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(`DELETE FROM datasets WHERE id=\?`).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(`DELETE FROM datasets WHERE id=\?`).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s.NoError(NewFeatureRepository(s.db).DeleteByLayer(ctx, "l1"))
	s.NoError(NewLayerRepository(s.db).Delete(ctx, "l1"))
	datasets := NewDatasetRepository(s.db)
	s.NoError(datasets.Delete(ctx, "d1"))
	s.ErrorIs(datasets.Delete(ctx, "d1"), spatial.ErrDatasetNotFound)
}

func TestRepoTestSuite(t *testing.T) {
	suite.Run(t, new(RepoTestSuite))
}
