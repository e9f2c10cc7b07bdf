package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/models"
)

// LocalStorage keeps metadata in memory, optionally snapshotting it to a
// JSON file after every mutation. It serves single-node deployments and tests.
type LocalStorage struct {
	assets map[string]models.Asset
	mu     sync.RWMutex
	path   string
}

// NewMemoryStorage returns a repository with no persistence.
func NewMemoryStorage() *LocalStorage {
	return &LocalStorage{assets: make(map[string]models.Asset)}
}

// NewFileStorage loads metadata from path if it exists and persists every
// change back to it.
func NewFileStorage(path string) (*LocalStorage, error) {
	l := &LocalStorage{assets: make(map[string]models.Asset), path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	var stored map[string]snapshot
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file: %w", err)
	}
	for k, s := range stored {
		a := s.Asset
		a.StorageLocation = s.StorageLocation
		a.DerivedLocation = s.DerivedLocation
		l.assets[k] = a
	}
	log.Printf("[DB] loaded %d asset records from %s", len(l.assets), path)
	return l, nil
}

// snapshot is the on-disk shape; json:"-" fields on the model must survive.
type snapshot struct {
	models.Asset
	StorageLocation string `json:"storage_location"`
	DerivedLocation string `json:"derived_location,omitempty"`
}

// saveLocked writes via a temp file and rename. Caller holds mu.
func (l *LocalStorage) saveLocked() error {
	if l.path == "" {
		return nil
	}
	out := make(map[string]snapshot, len(l.assets))
	for k, a := range l.assets {
		out[k] = snapshot{Asset: a, StorageLocation: a.StorageLocation, DerivedLocation: a.DerivedLocation}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	tempFile := l.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := os.Rename(tempFile, l.path); err != nil {
		return fmt.Errorf("failed to rename metadata file: %w", err)
	}
	return nil
}

func (l *LocalStorage) Create(ctx context.Context, asset *models.Asset) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.assets[asset.StorageName]; exists {
		return ErrAlreadyExists
	}
	l.assets[asset.StorageName] = *asset
	if err := l.saveLocked(); err != nil {
		delete(l.assets, asset.StorageName)
		return fmt.Errorf("failed to persist metadata: %w", err)
	}
	return nil
}

func (l *LocalStorage) FindByStorageName(ctx context.Context, storageName string) (*models.Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, exists := l.assets[storageName]
	if !exists {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (l *LocalStorage) ListByOwner(ctx context.Context, ownerID string, page, limit int) ([]models.Asset, int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	owned := make([]models.Asset, 0)
	for _, a := range l.assets {
		if a.OwnerID == ownerID {
			owned = append(owned, a)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].StorageName > owned[j].StorageName
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := int64(len(owned))
	offset := pageOffset(page, limit)
	if offset >= len(owned) {
		return []models.Asset{}, total, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], total, nil
}

func (l *LocalStorage) DeleteByStorageName(ctx context.Context, storageName, ownerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, exists := l.assets[storageName]
	if !exists || a.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(l.assets, storageName)
	if err := l.saveLocked(); err != nil {
		l.assets[storageName] = a
		return fmt.Errorf("failed to persist metadata deletion: %w", err)
	}
	return nil
}

func (l *LocalStorage) SetDerived(ctx context.Context, storageName, ownerID, derivedLocation string, width, height int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, exists := l.assets[storageName]
	if !exists || a.OwnerID != ownerID {
		return ErrNotFound
	}
	prev := a
	a.DerivedLocation = derivedLocation
	a.Width = width
	a.Height = height
	l.assets[storageName] = a
	if err := l.saveLocked(); err != nil {
		l.assets[storageName] = prev
		return err
	}
	return nil
}

func (l *LocalStorage) ListCreatedBefore(ctx context.Context, cutoff time.Time, afterName string, limit int) ([]models.Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	expired := make([]models.Asset, 0)
	for _, a := range l.assets {
		if a.CreatedAt.Before(cutoff) && a.StorageName > afterName {
			expired = append(expired, a)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].StorageName < expired[j].StorageName
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (l *LocalStorage) OwnerStats(ctx context.Context, ownerID string) (models.OwnerStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := models.OwnerStats{OwnerID: ownerID}
	for _, a := range l.assets {
		if a.OwnerID != ownerID {
			continue
		}
		stats.AssetCount++
		stats.TotalBytes += a.Size
		if stats.LatestUpload == nil || a.CreatedAt.After(*stats.LatestUpload) {
			created := a.CreatedAt
			stats.LatestUpload = &created
		}
	}
	return stats, nil
}

func (l *LocalStorage) Ping(ctx context.Context) error {
	return nil
}

// Len reports the number of records, mostly for tests and stats.
func (l *LocalStorage) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.assets)
}
