package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
)

type ErrorRepository struct {
	db *sql.DB
}

func NewErrorRepository(db *sql.DB) *ErrorRepository { return &ErrorRepository{db: db} }

func (r *ErrorRepository) Save(ctx context.Context, e *analyses.ErrorEntry) error {
	const q = `
INSERT INTO analysis_errors
  (analysis_id, analysis_type, phase, message, details_json, created_at)
VALUES (?,?,?,?,?,?)
`
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.db.ExecContext(ctx, q,
		stringOrDash(string(e.AnalysisID)), stringOrDash(string(e.AnalysisType)), stringOrDash(string(e.Phase)),
		msg, validJSON(e.DetailsJSON), created)
	if err != nil {
		return storageErr("save analysis error", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (r *ErrorRepository) ListByAnalysis(ctx context.Context, id analyses.ID, limit int) ([]*analyses.ErrorEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, 100)
	const q = `
SELECT id, analysis_id, analysis_type, phase, message, details_json, created_at
FROM analysis_errors
WHERE analysis_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, id, limit)
	if err != nil {
		return nil, storageErr("list analysis errors", err)
	}
	defer rows.Close()

	var out []*analyses.ErrorEntry
	for rows.Next() {
		var e analyses.ErrorEntry
		var kind, phase string
		if err := rows.Scan(&e.ID, &e.AnalysisID, &kind, &phase, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, storageErr("scan analysis error", err)
		}
		e.AnalysisType = operations.Kind(fromDash(kind))
		e.Phase = analyses.Phase(fromDash(phase))
		out = append(out, &e)
	}
	return out, storageErr("list analysis errors", rows.Err())
}
