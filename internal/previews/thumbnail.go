package previews

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/blobstore"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	// ErrSkipped is returned for payloads that are not images.
	ErrSkipped    = errors.New("thumbnail skipped: not an image")
	ErrDerivation = errors.New("thumbnail derivation failed")
)

// Result describes a stored thumbnail and the source image dimensions.
type Result struct {
	Location string
	Width    int
	Height   int
}

// Task asks for a thumbnail of one stored asset.
type Task struct {
	StorageName string `json:"storage_name"`
	OwnerID     string `json:"owner_id"`
	MimeType    string `json:"mime_type"`
}

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
}

func IsImage(mimeType string) bool {
	t, _, _ := strings.Cut(mimeType, ";")
	return imageTypes[strings.ToLower(strings.TrimSpace(t))]
}

type Generator struct {
	blobs     blobstore.BlobStore
	box       int
	quality   int
	maxPixels int
}

func NewGenerator(blobs blobstore.BlobStore, box, quality, maxPixels int) *Generator {
	if box <= 0 {
		box = 200
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	if maxPixels <= 0 {
		maxPixels = 50_000_000
	}
	return &Generator{blobs: blobs, box: box, quality: quality, maxPixels: maxPixels}
}

// Derive reads the primary bytes of storageName, fits them into the
// configured box preserving aspect ratio and stores a JPEG under the
// thumbnail key. Width and height are those of the source image.
func (g *Generator) Derive(ctx context.Context, storageName, mimeType string) (Result, error) {
	if !IsImage(mimeType) {
		return Result{}, ErrSkipped
	}

	rc, err := g.blobs.Open(ctx, blobstore.AssetKey(storageName))
	if err != nil {
		return Result{}, fmt.Errorf("%w: open source: %v", ErrDerivation, err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return Result{}, fmt.Errorf("%w: read source: %v", ErrDerivation, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode header: %v", ErrDerivation, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > g.maxPixels {
		return Result{}, fmt.Errorf("%w: %dx%d outside allowed dimensions", ErrDerivation, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode: %v", ErrDerivation, err)
	}
	thumb := imaging.Fit(img, g.box, g.box, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		return Result{}, fmt.Errorf("%w: encode: %v", ErrDerivation, err)
	}

	key := blobstore.ThumbnailKey(storageName)
	if _, err := g.blobs.Write(ctx, key, &buf, int64(buf.Len()), "image/jpeg"); err != nil {
		return Result{}, fmt.Errorf("%w: store: %v", ErrDerivation, err)
	}
	return Result{Location: key, Width: cfg.Width, Height: cfg.Height}, nil
}
