package documents

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo on the document_records table.
type PGRepo struct {
	DB *sql.DB
}

const selectRecordColumns = `
SELECT user_id, document_type, status, original_name, mime_type, size_bytes, storage_path,
       verdict_is_valid, verdict_confidence, verdict_reason, verified_at, version, created_at, updated_at
FROM document_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		status     string
		isValid    sql.NullBool
		confidence sql.NullInt32
		reason     sql.NullString
		verifiedAt sql.NullTime
	)
	err := row.Scan(
		&rec.UserID,
		&rec.DocumentType,
		&status,
		&rec.File.OriginalName,
		&rec.File.MimeType,
		&rec.File.SizeBytes,
		&rec.File.StoragePath,
		&isValid,
		&confidence,
		&reason,
		&verifiedAt,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	if isValid.Valid {
		rec.Verdict = &Verdict{
			IsValid:    isValid.Bool,
			Confidence: int(confidence.Int32),
			Reason:     reason.String,
		}
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		rec.VerifiedAt = &t
	}
	return rec, nil
}

func (r *PGRepo) Get(ctx context.Context, userID, documentType string) (Record, error) {
	const query = selectRecordColumns + `
WHERE user_id = $1 AND document_type = $2`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, userID, documentType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *PGRepo) Create(ctx context.Context, rec Record) (Record, error) {
	const query = `
INSERT INTO document_records (
    user_id,
    document_type,
    status,
    original_name,
    mime_type,
    size_bytes,
    storage_path,
    verdict_is_valid,
    verdict_confidence,
    verdict_reason,
    verified_at,
    version,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
ON CONFLICT (user_id, document_type) DO NOTHING`

	isValid, confidence, reason := verdictArgs(rec.Verdict)
	res, err := r.DB.ExecContext(
		ctx,
		query,
		rec.UserID,
		rec.DocumentType,
		string(rec.Status),
		rec.File.OriginalName,
		rec.File.MimeType,
		rec.File.SizeBytes,
		rec.File.StoragePath,
		isValid,
		confidence,
		reason,
		timeArg(rec.VerifiedAt),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Record{}, err
	} else if n == 0 {
		return Record{}, ErrStale
	}
	rec.Version = 1
	return rec, nil
}

func (r *PGRepo) CompareAndSet(ctx context.Context, rec Record, expected int64) (Record, error) {
	const query = `
UPDATE document_records
SET status = $3,
    original_name = $4,
    mime_type = $5,
    size_bytes = $6,
    storage_path = $7,
    verdict_is_valid = $8,
    verdict_confidence = $9,
    verdict_reason = $10,
    verified_at = $11,
    version = version + 1,
    updated_at = $12
WHERE user_id = $1 AND document_type = $2 AND version = $13`

	isValid, confidence, reason := verdictArgs(rec.Verdict)
	res, err := r.DB.ExecContext(
		ctx,
		query,
		rec.UserID,
		rec.DocumentType,
		string(rec.Status),
		rec.File.OriginalName,
		rec.File.MimeType,
		rec.File.SizeBytes,
		rec.File.StoragePath,
		isValid,
		confidence,
		reason,
		timeArg(rec.VerifiedAt),
		rec.UpdatedAt,
		expected,
	)
	if err != nil {
		return Record{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, err
	}
	if n == 0 {
		return Record{}, ErrStale
	}
	rec.Version = expected + 1
	return rec, nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	const query = selectRecordColumns + `
WHERE user_id = $1
ORDER BY document_type`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func verdictArgs(v *Verdict) (any, any, any) {
	if v == nil {
		return nil, nil, nil
	}
	return v.IsValid, int64(v.Confidence), v.Reason
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var _ Repo = (*PGRepo)(nil)
