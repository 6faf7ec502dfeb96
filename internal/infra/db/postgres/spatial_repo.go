package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
)

type DatasetRepository struct {
	db *sql.DB
}

func NewDatasetRepository(db *sql.DB) *DatasetRepository { return &DatasetRepository{db: db} }

// Save insert/update dataset
func (r *DatasetRepository) Save(ctx context.Context, d *spatial.Dataset) error {
	const q = `
INSERT INTO datasets
  (id, name, description, source_format, metadata_json, owner_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name, description=EXCLUDED.description, source_format=EXCLUDED.source_format,
  metadata_json=EXCLUDED.metadata_json, updated_at=EXCLUDED.updated_at;
`
	meta, err := jsonOrEmpty(d.Metadata)
	if err != nil {
		return fmt.Errorf("encode dataset metadata: %w", err)
	}
	created := nowIfZero(d.CreatedAt)
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	_, err = r.db.ExecContext(ctx, q,
		d.ID, stringOrDash(d.Name), d.Description, stringOrDash(d.Format), meta,
		stringOrDash(d.OwnerID), created, updated)
	return storageErr("save dataset", err)
}

const datasetColumns = `id, name, description, source_format, metadata_json, owner_id, created_at, updated_at`

func scanDataset(row interface{ Scan(...any) error }) (*spatial.Dataset, error) {
	var d spatial.Dataset
	var meta []byte
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Format, &meta, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Format = fromDash(d.Format)
	var err error
	if d.Metadata, err = decodeMap(meta); err != nil {
		return nil, fmt.Errorf("decode dataset metadata: %w", err)
	}
	return &d, nil
}

func (r *DatasetRepository) Get(ctx context.Context, id string) (*spatial.Dataset, error) {
	q := `SELECT ` + datasetColumns + ` FROM datasets WHERE id=$1 LIMIT 1;`
	d, err := scanDataset(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, notFoundOr(err, fmt.Errorf("%w: %s", spatial.ErrDatasetNotFound, id), "get dataset")
	}
	return d, nil
}

// ListByOwner newest first
func (r *DatasetRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*spatial.Dataset, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + datasetColumns + ` FROM datasets WHERE owner_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, owner, limit)
	if err != nil {
		return nil, storageErr("list datasets", err)
	}
	defer rows.Close()

	var out []*spatial.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, storageErr("scan dataset", err)
		}
		out = append(out, d)
	}
	return out, storageErr("list datasets", rows.Err())
}

func (r *DatasetRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE id=$1;`, id)
	return affected(res, err, fmt.Errorf("%w: %s", spatial.ErrDatasetNotFound, id), "delete dataset")
}

type LayerRepository struct {
	db *sql.DB
}

func NewLayerRepository(db *sql.DB) *LayerRepository { return &LayerRepository{db: db} }

func (r *LayerRepository) Save(ctx context.Context, l *spatial.Layer) error {
	const q = `
INSERT INTO layers
  (id, name, dataset_id, analysis_id, geometry_type, layer_type, style_json, visible, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name, style_json=EXCLUDED.style_json, visible=EXCLUDED.visible, updated_at=EXCLUDED.updated_at;
`
	style, err := json.Marshal(l.Style)
	if err != nil {
		return fmt.Errorf("encode layer style: %w", err)
	}
	created := nowIfZero(l.CreatedAt)
	updated := l.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	_, err = r.db.ExecContext(ctx, q,
		l.ID, stringOrDash(l.Name), nullString(l.DatasetID), nullString(l.AnalysisID),
		stringOrDash(string(l.GeometryKind)), stringOrDash(l.Type), string(style), l.Visible, created, updated)
	return storageErr("save layer", err)
}

const layerColumns = `id, name, dataset_id, analysis_id, geometry_type, layer_type, style_json, visible, created_at, updated_at`

func scanLayer(row interface{ Scan(...any) error }) (*spatial.Layer, error) {
	var l spatial.Layer
	var datasetID, analysisID sql.NullString
	var kind string
	var style []byte
	if err := row.Scan(&l.ID, &l.Name, &datasetID, &analysisID, &kind, &l.Type, &style, &l.Visible, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.DatasetID = datasetID.String
	l.AnalysisID = analysisID.String
	l.GeometryKind = spatial.GeometryKind(kind)
	if len(style) > 0 {
		if err := json.Unmarshal(style, &l.Style); err != nil {
			return nil, fmt.Errorf("decode layer style: %w", err)
		}
	}
	return &l, nil
}

func (r *LayerRepository) Get(ctx context.Context, id string) (*spatial.Layer, error) {
	q := `SELECT ` + layerColumns + ` FROM layers WHERE id=$1 LIMIT 1;`
	l, err := scanLayer(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, notFoundOr(err, fmt.Errorf("%w: %s", spatial.ErrLayerNotFound, id), "get layer")
	}
	return l, nil
}

func (r *LayerRepository) ListByDataset(ctx context.Context, datasetID string) ([]*spatial.Layer, error) {
	return r.list(ctx, `SELECT `+layerColumns+` FROM layers WHERE dataset_id=$1 ORDER BY created_at ASC, id ASC;`, datasetID)
}

func (r *LayerRepository) ListByAnalysis(ctx context.Context, analysisID string) ([]*spatial.Layer, error) {
	return r.list(ctx, `SELECT `+layerColumns+` FROM layers WHERE analysis_id=$1 ORDER BY created_at ASC, id ASC;`, analysisID)
}

func (r *LayerRepository) list(ctx context.Context, q string, arg string) ([]*spatial.Layer, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, storageErr("list layers", err)
	}
	defer rows.Close()

	var out []*spatial.Layer
	for rows.Next() {
		l, err := scanLayer(rows)
		if err != nil {
			return nil, storageErr("scan layer", err)
		}
		out = append(out, l)
	}
	return out, storageErr("list layers", rows.Err())
}

// Update hanya style dan visibility; sisa kolom layer immutable
func (r *LayerRepository) Update(ctx context.Context, l *spatial.Layer) error {
	style, err := json.Marshal(l.Style)
	if err != nil {
		return fmt.Errorf("encode layer style: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE layers SET style_json=$1, visible=$2, updated_at=$3 WHERE id=$4;`,
		string(style), l.Visible, nowIfZero(l.UpdatedAt), l.ID)
	return affected(res, err, fmt.Errorf("%w: %s", spatial.ErrLayerNotFound, l.ID), "update layer")
}

func (r *LayerRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM layers WHERE id=$1;`, id)
	return affected(res, err, fmt.Errorf("%w: %s", spatial.ErrLayerNotFound, id), "delete layer")
}

// FeatureRepository stores geometries in a PostGIS geometry(Geometry, 4326) column.
type FeatureRepository struct {
	db *sql.DB
}

func NewFeatureRepository(db *sql.DB) *FeatureRepository { return &FeatureRepository{db: db} }

func (r *FeatureRepository) SaveBatch(ctx context.Context, layerID string, features []*spatial.Feature) error {
	if len(features) == 0 {
		return nil
	}
	const q = `
INSERT INTO features (id, layer_id, properties_json, geom, created_at)
VALUES ($1,$2,$3,ST_GeomFromWKB($4, 4326),$5);
`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin feature batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return storageErr("prepare feature insert", err)
	}
	defer stmt.Close()

	for i, f := range features {
		geom, err := encodeGeometry(f.Geometry)
		if err != nil {
			return fmt.Errorf("encode feature %d: %w", i, err)
		}
		props, err := jsonOrEmpty(f.Properties)
		if err != nil {
			return fmt.Errorf("encode feature %d properties: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, f.ID, layerID, props, geom, nowIfZero(f.CreatedAt)); err != nil {
			return storageErr("insert feature", err)
		}
	}
	return storageErr("commit feature batch", tx.Commit())
}

func (r *FeatureRepository) ListByLayer(ctx context.Context, layerID string, fq spatial.FeatureQuery) ([]*spatial.Feature, error) {
	q := `
SELECT id, layer_id, properties_json, ST_AsBinary(geom), created_at
FROM features
WHERE layer_id=$1`
	args := []any{layerID}
	if b := fq.BBox; b != nil {
		q += ` AND ST_Intersects(geom, ST_MakeEnvelope($2, $3, $4, $5, 4326))`
		args = append(args, b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	}
	q += ` ORDER BY seq ASC`
	if fq.Limit > 0 {
		q += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, fq.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list features", err)
	}
	defer rows.Close()

	var out []*spatial.Feature
	for rows.Next() {
		var f spatial.Feature
		var props, geom []byte
		if err := rows.Scan(&f.ID, &f.LayerID, &props, &geom, &f.CreatedAt); err != nil {
			return nil, storageErr("scan feature", err)
		}
		if f.Properties, err = decodeMap(props); err != nil {
			return nil, fmt.Errorf("decode feature %s properties: %w", f.ID, err)
		}
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
		if f.Geometry, err = decodeGeometry(geom); err != nil {
			return nil, fmt.Errorf("decode feature %s geometry: %w", f.ID, err)
		}
		out = append(out, &f)
	}
	return out, storageErr("list features", rows.Err())
}

func (r *FeatureRepository) DeleteByLayer(ctx context.Context, layerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM features WHERE layer_id=$1;`, layerID)
	return storageErr("delete features", err)
}
