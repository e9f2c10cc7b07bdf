package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/blobstore"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/logging"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/previews"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	SubjectUploaded = "assets.uploaded"
	SubjectDeleted  = "assets.deleted"

	defaultPageSize = 20
	maxPageSize     = 100
)

// Deriver produces a thumbnail for a stored asset.
type Deriver interface {
	Derive(ctx context.Context, storageName, mimeType string) (previews.Result, error)
}

// DeriveDispatcher hands thumbnail work to an asynchronous executor.
type DeriveDispatcher interface {
	Dispatch(ctx context.Context, t previews.Task) error
}

// Scanner inspects persisted bytes for malware.
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) (clean bool, signature string, err error)
}

// EventPublisher emits lifecycle events. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Payload is one file of an upload request. Size is the declared length, or
// -1 when unknown.
type Payload struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// UploadResult is the outcome for one payload of a batch, in request order.
type UploadResult struct {
	Asset *models.Asset
	Err   error
}

type Options struct {
	Repo        storage.Repository
	Blobs       blobstore.BlobStore
	Logger      logging.Logger
	Constraints Constraints

	// Deriver runs inline when Dispatcher is nil. With a Dispatcher the
	// record is created first and the thumbnail is recorded later through
	// DeriveAndRecord.
	Deriver    Deriver
	Dispatcher DeriveDispatcher

	Scanner          Scanner
	Events           EventPublisher
	Authorize        Authorizer
	VerifyOnDownload bool
	BatchParallelism int
	Now              func() time.Time

	// HealthChecks are reported by Health but never make it unhealthy.
	HealthChecks []HealthCheck
}

// AssetService is the upload, retrieval and deletion path for assets. All
// mutation of bytes goes through a tracked metadata record.
type AssetService struct {
	repo        storage.Repository
	blobs       blobstore.BlobStore
	log         logging.Logger
	constraints Constraints
	deriver     Deriver
	dispatcher  DeriveDispatcher
	scanner     Scanner
	events      EventPublisher
	authorize   Authorizer
	verify      bool
	parallelism int
	now         func() time.Time
	locks       *keyedMutex
	checks      []HealthCheck
}

func NewAssetService(opts Options) *AssetService {
	s := &AssetService{
		repo:        opts.Repo,
		blobs:       opts.Blobs,
		log:         opts.Logger,
		constraints: opts.Constraints,
		deriver:     opts.Deriver,
		dispatcher:  opts.Dispatcher,
		scanner:     opts.Scanner,
		events:      opts.Events,
		authorize:   opts.Authorize,
		verify:      opts.VerifyOnDownload,
		parallelism: opts.BatchParallelism,
		now:         opts.Now,
		locks:       newKeyedMutex(),
		checks:      opts.HealthChecks,
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	s.log = s.log.With("component", "assets")
	if s.constraints.MaxSizeBytes <= 0 {
		s.constraints.MaxSizeBytes = DefaultConstraints().MaxSizeBytes
	}
	if len(s.constraints.AllowedMimeTypes) == 0 {
		s.constraints.AllowedMimeTypes = DefaultAllowedMimeTypes
	}
	if s.authorize == nil {
		s.authorize = OwnerOnly
	}
	if s.parallelism <= 0 {
		s.parallelism = 4
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// UploadBatch processes every payload independently with bounded
// parallelism. One failure never affects its siblings.
func (s *AssetService) UploadBatch(ctx context.Context, ownerID string, payloads []Payload) []UploadResult {
	results := make([]UploadResult, len(payloads))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, p := range payloads {
		g.Go(func() error {
			asset, err := s.uploadPayload(ctx, ownerID, p)
			results[i] = UploadResult{Asset: asset, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *AssetService) uploadPayload(ctx context.Context, ownerID string, p Payload) (*models.Asset, error) {
	rc, err := p.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", p.Name, err)
	}
	defer rc.Close()
	return s.Upload(ctx, ownerID, p.Name, p.Size, rc)
}

// Upload runs validate, name, write, hash, derive and persist, strictly in
// that order. Any failure before the record is created leaves no bytes
// behind.
func (s *AssetService) Upload(ctx context.Context, ownerID, originalName string, declaredSize int64, body io.Reader) (*models.Asset, error) {
	mimeType, r, err := Validate(declaredSize, body, s.constraints)
	if err != nil {
		return nil, err
	}

	name := GenerateName(originalName)
	key := blobstore.AssetKey(name)
	log := s.log.With("storage_name", name, "owner_id", ownerID)

	bounded := &boundedReader{r: r, max: s.constraints.MaxSizeBytes}
	_, err = s.blobs.Write(ctx, key, bounded, declaredSize, mimeType)
	if err == nil {
		err = bounded.drained()
	}
	if err != nil {
		s.removeBytes(ctx, log, key)
		if errors.Is(err, errSizeExceeded) || bounded.read > bounded.max {
			return nil, &ValidationError{Kind: TooLarge, Detail: fmt.Sprintf("exceeds limit of %d", s.constraints.MaxSizeBytes)}
		}
		if errors.Is(err, errLongerThan) {
			return nil, &ValidationError{Kind: SizeMismatch, Detail: fmt.Sprintf("declared %d bytes", declaredSize)}
		}
		log.Error(ctx, "failed to persist asset bytes", "op", "write", "error", err)
		return nil, &IOError{Op: "write", StorageName: name, Err: err}
	}

	if err := s.scan(ctx, log, key); err != nil {
		s.removeBytes(ctx, log, key)
		return nil, err
	}

	checksum, size, err := Checksum(ctx, s.blobs, key)
	if err != nil {
		s.removeBytes(ctx, log, key)
		log.Error(ctx, "failed to hash persisted bytes", "op", "checksum", "error", err)
		return nil, &IOError{Op: "checksum", StorageName: name, Err: err}
	}
	if size > s.constraints.MaxSizeBytes {
		s.removeBytes(ctx, log, key)
		return nil, &ValidationError{Kind: TooLarge, Detail: fmt.Sprintf("exceeds limit of %d", s.constraints.MaxSizeBytes)}
	}

	asset := &models.Asset{
		ID:              uuid.NewString(),
		StorageName:     name,
		OriginalName:    originalName,
		MimeType:        mimeType,
		Size:            size,
		Checksum:        checksum,
		StorageLocation: key,
		OwnerID:         ownerID,
		CreatedAt:       s.now().UTC(),
	}

	inline := s.dispatcher == nil && s.deriver != nil && previews.IsImage(mimeType)
	if inline {
		s.applyDerived(ctx, log, asset)
	}

	if err := s.repo.Create(ctx, asset); err != nil {
		s.removeBytes(ctx, log, key)
		if asset.HasThumbnail() {
			s.removeBytes(ctx, log, asset.DerivedLocation)
		}
		log.Error(ctx, "failed to save asset metadata", "op", "create", "error", err)
		return nil, &IOError{Op: "create metadata", StorageName: name, Err: err}
	}

	if s.dispatcher != nil && previews.IsImage(mimeType) {
		task := previews.Task{StorageName: name, OwnerID: ownerID, MimeType: mimeType}
		if err := s.dispatcher.Dispatch(ctx, task); err != nil {
			log.Warn(ctx, "thumbnail task not queued", "error", err)
		}
	}

	log.Info(ctx, "asset stored", "size", size, "mime_type", mimeType)
	s.publish(ctx, SubjectUploaded, map[string]any{
		"action":       "uploaded",
		"asset_id":     asset.ID,
		"storage_name": name,
		"mime_type":    mimeType,
		"size":         size,
		"owner_id":     ownerID,
		"uploaded_at":  asset.CreatedAt.Format(time.RFC3339),
	})
	return asset, nil
}

// applyDerived fills the thumbnail fields in place. Failure is logged and
// leaves all three fields empty.
func (s *AssetService) applyDerived(ctx context.Context, log logging.Logger, asset *models.Asset) {
	res, err := s.deriver.Derive(ctx, asset.StorageName, asset.MimeType)
	if err != nil {
		if !errors.Is(err, previews.ErrSkipped) {
			log.Warn(ctx, "thumbnail derivation failed", "error", err)
		}
		return
	}
	asset.DerivedLocation = res.Location
	asset.Width = res.Width
	asset.Height = res.Height
}

func (s *AssetService) scan(ctx context.Context, log logging.Logger, key string) error {
	if s.scanner == nil {
		return nil
	}
	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		return &IOError{Op: "scan", StorageName: key, Err: err}
	}
	defer rc.Close()

	clean, signature, err := s.scanner.Scan(ctx, rc)
	if err != nil {
		log.Warn(ctx, "malware scan unavailable, accepting upload", "error", err)
		return nil
	}
	if !clean {
		log.Warn(ctx, "infected upload rejected", "signature", signature)
		return &ValidationError{Kind: Infected, Detail: signature}
	}
	return nil
}

// DeriveAndRecord is the asynchronous derivation step. It is safe to run
// after the asset was deleted: the orphan thumbnail is removed.
func (s *AssetService) DeriveAndRecord(ctx context.Context, t previews.Task) error {
	if s.deriver == nil {
		return errors.New("no thumbnail deriver configured")
	}
	unlock := s.locks.Lock(t.StorageName)
	defer unlock()

	log := s.log.With("storage_name", t.StorageName, "owner_id", t.OwnerID)
	res, err := s.deriver.Derive(ctx, t.StorageName, t.MimeType)
	if err != nil {
		if errors.Is(err, previews.ErrSkipped) {
			return nil
		}
		return err
	}
	if err := s.repo.SetDerived(ctx, t.StorageName, t.OwnerID, res.Location, res.Width, res.Height); err != nil {
		s.removeBytes(ctx, log, res.Location)
		if errors.Is(err, storage.ErrNotFound) {
			log.Info(ctx, "asset gone before thumbnail was recorded")
			return nil
		}
		return fmt.Errorf("record thumbnail: %w", err)
	}
	log.Debug(ctx, "thumbnail recorded", "width", res.Width, "height", res.Height)
	return nil
}

func (s *AssetService) GetInfo(ctx context.Context, storageName string) (*models.Asset, error) {
	asset, err := s.repo.FindByStorageName(ctx, storageName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &IOError{Op: "find", StorageName: storageName, Err: err}
	}
	return asset, nil
}

// Download opens the primary bytes. The caller closes the stream. A record
// without bytes yields ErrStorageInconsistency.
func (s *AssetService) Download(ctx context.Context, storageName string) (io.ReadCloser, *models.Asset, error) {
	asset, err := s.GetInfo(ctx, storageName)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.openTracked(ctx, asset, asset.StorageLocation, "download")
	if err != nil {
		return nil, nil, err
	}
	if s.verify {
		log := s.log.With("storage_name", asset.StorageName, "owner_id", asset.OwnerID)
		rc = newVerifyingReader(rc, asset.Checksum, func(got string) {
			log.Error(ctx, "checksum mismatch on download", "op", "download", "expected", asset.Checksum, "actual", got)
		})
	}
	return rc, asset, nil
}

// Thumbnail opens the derived bytes, or returns ErrNoThumbnail.
func (s *AssetService) Thumbnail(ctx context.Context, storageName string) (io.ReadCloser, *models.Asset, error) {
	asset, err := s.GetInfo(ctx, storageName)
	if err != nil {
		return nil, nil, err
	}
	if !asset.HasThumbnail() {
		return nil, nil, ErrNoThumbnail
	}
	rc, err := s.openTracked(ctx, asset, asset.DerivedLocation, "thumbnail")
	if err != nil {
		return nil, nil, err
	}
	return rc, asset, nil
}

func (s *AssetService) openTracked(ctx context.Context, asset *models.Asset, key, op string) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(ctx, key)
	if err == nil {
		return rc, nil
	}
	if errors.Is(err, blobstore.ErrObjectNotFound) {
		s.log.Error(ctx, "metadata references missing bytes",
			"storage_name", asset.StorageName, "owner_id", asset.OwnerID, "op", op, "key", key)
		return nil, fmt.Errorf("%w: %s", ErrStorageInconsistency, asset.StorageName)
	}
	s.log.Error(ctx, "failed to open asset bytes",
		"storage_name", asset.StorageName, "owner_id", asset.OwnerID, "op", op, "error", err)
	return nil, &IOError{Op: op, StorageName: asset.StorageName, Err: err}
}

// Delete removes an asset on behalf of requesterID. A repeated delete by the
// owner returns ErrNotFound.
func (s *AssetService) Delete(ctx context.Context, storageName, requesterID string) error {
	unlock := s.locks.Lock(storageName)
	defer unlock()

	asset, err := s.GetInfo(ctx, storageName)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, requesterID, asset.OwnerID); err != nil {
		return err
	}
	return s.remove(ctx, asset)
}

// Purge removes an asset without an authorization check. It is the
// deletion path of the retention sweeper and of owner offboarding.
func (s *AssetService) Purge(ctx context.Context, storageName string) error {
	unlock := s.locks.Lock(storageName)
	defer unlock()

	asset, err := s.GetInfo(ctx, storageName)
	if err != nil {
		return err
	}
	return s.remove(ctx, asset)
}

// remove attempts every step even when an earlier one fails. The caller
// holds the lock for asset.StorageName.
func (s *AssetService) remove(ctx context.Context, asset *models.Asset) error {
	log := s.log.With("storage_name", asset.StorageName, "owner_id", asset.OwnerID)

	if err := s.blobs.Delete(ctx, asset.StorageLocation); err != nil {
		log.Error(ctx, "failed to remove asset bytes", "op", "delete", "key", asset.StorageLocation, "error", err)
	}
	if asset.HasThumbnail() {
		if err := s.blobs.Delete(ctx, asset.DerivedLocation); err != nil {
			log.Error(ctx, "failed to remove thumbnail bytes", "op", "delete", "key", asset.DerivedLocation, "error", err)
		}
	}
	if err := s.repo.DeleteByStorageName(ctx, asset.StorageName, asset.OwnerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		log.Error(ctx, "failed to remove asset metadata", "op", "delete", "error", err)
		return &IOError{Op: "delete metadata", StorageName: asset.StorageName, Err: err}
	}

	log.Info(ctx, "asset deleted")
	s.publish(ctx, SubjectDeleted, map[string]any{
		"action":       "deleted",
		"asset_id":     asset.ID,
		"storage_name": asset.StorageName,
		"owner_id":     asset.OwnerID,
		"deleted_at":   s.now().UTC().Format(time.RFC3339),
	})
	return nil
}

// ListOwnerAssets returns one page of ownerID's assets, newest first.
func (s *AssetService) ListOwnerAssets(ctx context.Context, requesterID, ownerID string, page, limit int) (*models.AssetPage, error) {
	if err := s.authorize(ctx, requesterID, ownerID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	items, total, err := s.repo.ListByOwner(ctx, ownerID, page, limit)
	if err != nil {
		return nil, &IOError{Op: "list", StorageName: "", Err: err}
	}
	return &models.AssetPage{
		Items: items,
		Total: total,
		Pages: int((total + int64(limit) - 1) / int64(limit)),
		Page:  page,
		Limit: limit,
	}, nil
}

// OwnerStats reports how many assets ownerID holds and their total size.
func (s *AssetService) OwnerStats(ctx context.Context, requesterID, ownerID string) (models.OwnerStats, error) {
	if err := s.authorize(ctx, requesterID, ownerID); err != nil {
		return models.OwnerStats{}, err
	}
	stats, err := s.repo.OwnerStats(ctx, ownerID)
	if err != nil {
		return models.OwnerStats{}, &IOError{Op: "stats", Err: err}
	}
	return stats, nil
}

// DeleteOwnerAssets purges every asset of ownerID and returns how many were
// removed. It stops when a full pass removes nothing.
func (s *AssetService) DeleteOwnerAssets(ctx context.Context, ownerID string) (int, error) {
	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		items, _, err := s.repo.ListByOwner(ctx, ownerID, 1, maxPageSize)
		if err != nil {
			return deleted, fmt.Errorf("list owner assets: %w", err)
		}
		if len(items) == 0 {
			return deleted, nil
		}
		progress := 0
		for _, a := range items {
			err := s.Purge(ctx, a.StorageName)
			switch {
			case err == nil:
				deleted++
				progress++
			case errors.Is(err, ErrNotFound):
				progress++
			default:
				s.log.Error(ctx, "failed to delete owner asset", "storage_name", a.StorageName, "owner_id", ownerID, "error", err)
			}
		}
		if progress == 0 {
			return deleted, fmt.Errorf("%d assets of owner %s could not be deleted", len(items), ownerID)
		}
	}
}

const (
	healthOK          = "ok"
	healthUnavailable = "unavailable"
)

// HealthCheck pings an optional dependency such as the event bus or the
// malware scanner.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthStatus reports each dependency as "ok" or "unavailable". Failure
// details only go to the log.
type HealthStatus struct {
	Metadata string            `json:"metadata"`
	Storage  string            `json:"storage"`
	Optional map[string]string `json:"optional,omitempty"`
}

// Health is false when the metadata or byte store is down. Optional checks
// are reported without affecting it.
func (s *AssetService) Health(ctx context.Context) (HealthStatus, bool) {
	status := HealthStatus{Metadata: healthOK, Storage: healthOK}
	healthy := true
	if err := s.repo.Ping(ctx); err != nil {
		s.log.Error(ctx, "health check failed", "dependency", "metadata", "error", err)
		status.Metadata = healthUnavailable
		healthy = false
	}
	if err := s.blobs.Ping(ctx); err != nil {
		s.log.Error(ctx, "health check failed", "dependency", "storage", "error", err)
		status.Storage = healthUnavailable
		healthy = false
	}
	if len(s.checks) > 0 {
		status.Optional = make(map[string]string, len(s.checks))
		for _, c := range s.checks {
			status.Optional[c.Name] = healthOK
			if err := c.Ping(ctx); err != nil {
				s.log.Warn(ctx, "health check failed", "dependency", c.Name, "error", err)
				status.Optional[c.Name] = healthUnavailable
			}
		}
	}
	return status, healthy
}

func (s *AssetService) removeBytes(ctx context.Context, log logging.Logger, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		log.Error(ctx, "failed to clean up bytes", "key", key, "error", err)
	}
}

func (s *AssetService) publish(ctx context.Context, subject string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, subject, payload); err != nil {
		s.log.Warn(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}
