// Package storage holds the asset metadata repository. Every mutating and
// owner-scoped operation filters by owner_id here, not only at the caller.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/models"
)

var (
	ErrNotFound      = errors.New("asset not found")
	ErrAlreadyExists = errors.New("asset already exists")
)

// Repository defines the contract for all metadata implementations.
type Repository interface {
	Create(ctx context.Context, asset *models.Asset) error
	FindByStorageName(ctx context.Context, storageName string) (*models.Asset, error)
	// ListByOwner returns one page (1-based) newest first, and the owner's
	// total record count.
	ListByOwner(ctx context.Context, ownerID string, page, limit int) ([]models.Asset, int64, error)
	// DeleteByStorageName returns ErrNotFound when no row owned by ownerID
	// matched.
	DeleteByStorageName(ctx context.Context, storageName, ownerID string) error
	// SetDerived records a generated thumbnail and the source dimensions.
	SetDerived(ctx context.Context, storageName, ownerID, derivedLocation string, width, height int) error
	// ListCreatedBefore pages expired records by storage name, starting
	// strictly after afterName.
	ListCreatedBefore(ctx context.Context, cutoff time.Time, afterName string, limit int) ([]models.Asset, error)
	OwnerStats(ctx context.Context, ownerID string) (models.OwnerStats, error)
	Ping(ctx context.Context) error
}

func pageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
