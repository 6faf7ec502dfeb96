package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save insert Analysis record baru
func (r *AnalysisRepository) Save(ctx context.Context, a *analyses.Analysis) error {
	const q = `
INSERT INTO analyses
(id, name, description, analysis_type, parameters_json, status, task_id,
 user_id, dataset_id, created_at, started_at, completed_at, result_metadata_json)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);
`
	params, err := jsonOrEmpty(a.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	meta, err := jsonOrEmpty(a.ResultMetadata)
	if err != nil {
		return fmt.Errorf("encode result metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q,
		a.ID, stringOrDash(a.Name), a.Description, string(a.Type), params, stringOrDash(string(a.Status)),
		nullString(a.TaskID), stringOrDash(a.OwnerID), a.DatasetID, nowIfZero(a.CreatedAt),
		nullTime(a.StartedAt), nullTime(a.CompletedAt), meta,
	)
	return storageErr("save analysis", err)
}

// Update writes status and results. task_id is owned by AttachTask.
func (r *AnalysisRepository) Update(ctx context.Context, a *analyses.Analysis) error {
	const q = `
UPDATE analyses SET
 name=$1, description=$2, status=$3, started_at=$4, completed_at=$5, result_metadata_json=$6
WHERE id=$7;
`
	meta, err := jsonOrEmpty(a.ResultMetadata)
	if err != nil {
		return fmt.Errorf("encode result metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q,
		stringOrDash(a.Name), a.Description, stringOrDash(string(a.Status)),
		nullTime(a.StartedAt), nullTime(a.CompletedAt), meta, a.ID,
	)
	return r.affected(res, err, a.ID, "update analysis")
}

func (r *AnalysisRepository) AttachTask(ctx context.Context, id analyses.ID, taskID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE analyses SET task_id=$1 WHERE id=$2;`, taskID, id)
	return r.affected(res, err, id, "attach task")
}

func (r *AnalysisRepository) affected(res sql.Result, err error, id analyses.ID, op string) error {
	return affected(res, err, fmt.Errorf("%w: %s", analyses.ErrAnalysisNotFound, id), op)
}

const analysisColumns = `id, name, description, analysis_type, parameters_json, status, task_id,
       user_id, dataset_id, created_at, started_at, completed_at, result_metadata_json`

func scanAnalysis(row interface{ Scan(...any) error }) (*analyses.Analysis, error) {
	var a analyses.Analysis
	var kind, status string
	var taskID sql.NullString
	var started, completed sql.NullTime
	var params, meta []byte
	if err := row.Scan(
		&a.ID, &a.Name, &a.Description, &kind, &params, &status, &taskID,
		&a.OwnerID, &a.DatasetID, &a.CreatedAt, &started, &completed, &meta,
	); err != nil {
		return nil, err
	}
	a.Type = operations.Kind(kind)
	a.Status = analyses.Status(status)
	a.TaskID = taskID.String
	a.StartedAt = timePtr(started)
	a.CompletedAt = timePtr(completed)

	p, err := decodeMap(params)
	if err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	a.Parameters = operations.Parameters(p)
	if a.ResultMetadata, err = decodeMap(meta); err != nil {
		return nil, fmt.Errorf("decode result metadata: %w", err)
	}
	return &a, nil
}

func (r *AnalysisRepository) Get(ctx context.Context, id analyses.ID) (*analyses.Analysis, error) {
	q := `SELECT ` + analysisColumns + ` FROM analyses WHERE id=$1 LIMIT 1;`
	a, err := scanAnalysis(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, notFoundOr(err, fmt.Errorf("%w: %s", analyses.ErrAnalysisNotFound, id), "get analysis")
	}
	return a, nil
}

func (r *AnalysisRepository) GetByTask(ctx context.Context, taskID string) (*analyses.Analysis, error) {
	q := `SELECT ` + analysisColumns + ` FROM analyses WHERE task_id=$1 LIMIT 1;`
	a, err := scanAnalysis(r.db.QueryRowContext(ctx, q, taskID))
	if err != nil {
		return nil, notFoundOr(err, fmt.Errorf("%w: task %s", analyses.ErrAnalysisNotFound, taskID), "get analysis by task")
	}
	return a, nil
}

// ListByOwner newest first
func (r *AnalysisRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*analyses.Analysis, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT ` + analysisColumns + ` FROM analyses WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2;`
	return r.list(ctx, q, owner, limit)
}

func (r *AnalysisRepository) ListByDataset(ctx context.Context, datasetID string) ([]*analyses.Analysis, error) {
	q := `SELECT ` + analysisColumns + ` FROM analyses WHERE dataset_id=$1 ORDER BY created_at DESC, id DESC;`
	return r.list(ctx, q, datasetID)
}

func (r *AnalysisRepository) list(ctx context.Context, q string, args ...any) ([]*analyses.Analysis, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list analyses", err)
	}
	defer rows.Close()

	var out []*analyses.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, storageErr("scan analysis", err)
		}
		out = append(out, a)
	}
	return out, storageErr("list analyses", rows.Err())
}
