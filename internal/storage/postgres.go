package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/storage/migrations"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const assetColumns = `id, storage_name, original_name, mime_type, size, checksum, storage_location,
    derived_location, width, height, owner_id, created_at`

// PostgresStorage implements Repository on PostgreSQL.
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Connect opens and pings a PostgreSQL pool.
func Connect(ctx context.Context, connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Println("[DB] connected to PostgreSQL")
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Create(ctx context.Context, a *models.Asset) error {
	query := `
    INSERT INTO assets (` + assetColumns + `)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err := p.db.ExecContext(ctx, query,
		a.ID,
		a.StorageName,
		a.OriginalName,
		a.MimeType,
		a.Size,
		a.Checksum,
		a.StorageLocation,
		nullString(a.DerivedLocation),
		nullInt(a.Width),
		nullInt(a.Height),
		a.OwnerID,
		a.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (p *PostgresStorage) FindByStorageName(ctx context.Context, storageName string) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE storage_name = $1`

	a, err := scanAsset(p.db.QueryRowContext(ctx, query, storageName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select asset: %w", err)
	}
	return a, nil
}

func (p *PostgresStorage) ListByOwner(ctx context.Context, ownerID string, page, limit int) ([]models.Asset, int64, error) {
	var total int64
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assets WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assets: %w", err)
	}

	query := `
    SELECT ` + assetColumns + `
    FROM assets WHERE owner_id = $1
    ORDER BY created_at DESC, storage_name DESC
    LIMIT $2 OFFSET $3
    `
	items, err := p.queryAssets(ctx, query, ownerID, limit, pageOffset(page, limit))
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (p *PostgresStorage) DeleteByStorageName(ctx context.Context, storageName, ownerID string) error {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM assets WHERE storage_name = $1 AND owner_id = $2`, storageName, ownerID)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStorage) SetDerived(ctx context.Context, storageName, ownerID, derivedLocation string, width, height int) error {
	result, err := p.db.ExecContext(ctx, `
    UPDATE assets
    SET derived_location = $1, width = $2, height = $3
    WHERE storage_name = $4 AND owner_id = $5
    `, derivedLocation, nullInt(width), nullInt(height), storageName, ownerID)
	if err != nil {
		return fmt.Errorf("update derived asset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStorage) ListCreatedBefore(ctx context.Context, cutoff time.Time, afterName string, limit int) ([]models.Asset, error) {
	query := `
    SELECT ` + assetColumns + `
    FROM assets WHERE created_at < $1 AND storage_name > $2
    ORDER BY storage_name
    LIMIT $3
    `
	return p.queryAssets(ctx, query, cutoff, afterName, limit)
}

func (p *PostgresStorage) OwnerStats(ctx context.Context, ownerID string) (models.OwnerStats, error) {
	stats := models.OwnerStats{OwnerID: ownerID}
	var latest sql.NullTime
	err := p.db.QueryRowContext(ctx, `
    SELECT COUNT(*), COALESCE(SUM(size), 0), MAX(created_at)
    FROM assets WHERE owner_id = $1
    `, ownerID).Scan(&stats.AssetCount, &stats.TotalBytes, &latest)
	if err != nil {
		return models.OwnerStats{}, fmt.Errorf("owner stats: %w", err)
	}
	if latest.Valid {
		t := latest.Time
		stats.LatestUpload = &t
	}
	return stats, nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStorage) queryAssets(ctx context.Context, query string, args ...any) ([]models.Asset, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer func(rows *sql.Rows) {
		if cerr := rows.Close(); cerr != nil {
			log.Printf("[DB] error closing rows: %v", cerr)
		}
	}(rows)

	items := make([]models.Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*models.Asset, error) {
	var (
		a       models.Asset
		derived sql.NullString
		width   sql.NullInt32
		height  sql.NullInt32
	)
	err := row.Scan(
		&a.ID,
		&a.StorageName,
		&a.OriginalName,
		&a.MimeType,
		&a.Size,
		&a.Checksum,
		&a.StorageLocation,
		&derived,
		&width,
		&height,
		&a.OwnerID,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.DerivedLocation = derived.String
	a.Width = int(width.Int32)
	a.Height = int(height.Int32)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt32 {
	return sql.NullInt32{Int32: int32(n), Valid: n > 0}
}
