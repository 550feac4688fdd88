package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const photoColumns = `id, account_id, order_id, caption, storage_key,
	thumbnail_key, content_type, size_bytes, created_at`

func scanPhoto(row interface{ Scan(...interface{}) error }) (Photo, error) {
	var p Photo
	err := row.Scan(&p.ID, &p.AccountID, &p.OrderID, &p.Caption, &p.StorageKey,
		&p.ThumbnailKey, &p.ContentType, &p.SizeBytes, &p.CreatedAt)
	return p, err
}

// CreatePhotoParams are the inputs for CreatePhoto.
type CreatePhotoParams struct {
	AccountID   uuid.UUID
	OrderID     uuid.NullUUID
	Caption     sql.NullString
	StorageKey  string
	ContentType string
	SizeBytes   int64
}

const createPhoto = `
INSERT INTO photos (account_id, order_id, caption, storage_key, content_type, size_bytes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + photoColumns

func (q *Queries) CreatePhoto(ctx context.Context, arg CreatePhotoParams) (Photo, error) {
	row := q.db.QueryRowContext(ctx, createPhoto,
		arg.AccountID, arg.OrderID, arg.Caption, arg.StorageKey, arg.ContentType, arg.SizeBytes)
	return scanPhoto(row)
}

const getPhoto = `
SELECT ` + photoColumns + ` FROM photos WHERE id = $1 AND account_id = $2`

func (q *Queries) GetPhoto(ctx context.Context, id, accountID uuid.UUID) (Photo, error) {
	return scanPhoto(q.db.QueryRowContext(ctx, getPhoto, id, accountID))
}

const getPhotoByID = `
SELECT ` + photoColumns + ` FROM photos WHERE id = $1`

// GetPhotoByID retrieves a photo without account scoping, for worker jobs
// that carry the owner in their payload.
func (q *Queries) GetPhotoByID(ctx context.Context, id uuid.UUID) (Photo, error) {
	return scanPhoto(q.db.QueryRowContext(ctx, getPhotoByID, id))
}

// ListPhotosParams are the inputs for ListPhotos.
type ListPhotosParams struct {
	AccountID uuid.UUID
	Limit     int32
	Offset    int32
}

const listPhotos = `
SELECT ` + photoColumns + `
FROM photos
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListPhotos(ctx context.Context, arg ListPhotosParams) ([]Photo, error) {
	rows, err := q.db.QueryContext(ctx, listPhotos, arg.AccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

const countPhotos = `SELECT count(*) FROM photos WHERE account_id = $1`

func (q *Queries) CountPhotos(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countPhotos, accountID).Scan(&count)
	return count, err
}

const updatePhotoThumbnail = `
UPDATE photos SET thumbnail_key = $2 WHERE id = $1`

func (q *Queries) UpdatePhotoThumbnail(ctx context.Context, id uuid.UUID, thumbnailKey sql.NullString) error {
	_, err := q.db.ExecContext(ctx, updatePhotoThumbnail, id, thumbnailKey)
	return err
}

const deletePhoto = `DELETE FROM photos WHERE id = $1 AND account_id = $2`

func (q *Queries) DeletePhoto(ctx context.Context, id, accountID uuid.UUID) error {
	result, err := q.db.ExecContext(ctx, deletePhoto, id, accountID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
