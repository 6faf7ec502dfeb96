package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/geoanalysis/internal/domain/insight"
)

type InsightRepository struct {
	db *sql.DB
}

func NewInsightRepository(db *sql.DB) *InsightRepository {
	return &InsightRepository{db: db}
}

// Save inserts an insight record
func (r *InsightRepository) Save(ctx context.Context, in *insight.Insight) error {
	const q = `
INSERT INTO analysis_insights
  (id, analysis_id, user_id, model, result_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  model=EXCLUDED.model,
  result_json=EXCLUDED.result_json;
`
	result := in.Result
	if strings.TrimSpace(result) == "" {
		// result_json column requires valid JSON; use empty object
		result = "{}"
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, in.ID, in.AnalysisID, stringOrDash(in.OwnerID), stringOrDash(in.Model), validJSON(result), createdAt)
	return storageErr("save insight", err)
}

const insightColumns = `id, analysis_id, user_id, model, result_json, created_at`

func scanInsight(row interface{ Scan(...any) error }) (*insight.Insight, error) {
	var in insight.Insight
	if err := row.Scan(&in.ID, &in.AnalysisID, &in.OwnerID, &in.Model, &in.Result, &in.CreatedAt); err != nil {
		return nil, err
	}
	in.Model = fromDash(in.Model)
	return &in, nil
}

// LatestByAnalysis returns the latest insight for a given analysis
func (r *InsightRepository) LatestByAnalysis(ctx context.Context, analysisID string) (*insight.Insight, error) {
	q := `SELECT ` + insightColumns + ` FROM analysis_insights WHERE analysis_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1;`
	in, err := scanInsight(r.db.QueryRowContext(ctx, q, analysisID))
	if err != nil {
		return nil, notFoundOr(err, fmt.Errorf("%w: analysis %s", insight.ErrInsightNotFound, analysisID), "latest insight")
	}
	return in, nil
}

// Paginate returns a page of insights ordered by created_at desc
func (r *InsightRepository) Paginate(ctx context.Context, owner string, page, pageSize int) ([]*insight.Insight, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	q := `SELECT ` + insightColumns + ` FROM analysis_insights WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, owner, pageSize, offset)
	if err != nil {
		return nil, storageErr("list insights", err)
	}
	defer rows.Close()

	var out []*insight.Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, storageErr("scan insight", err)
		}
		out = append(out, in)
	}
	return out, storageErr("list insights", rows.Err())
}
