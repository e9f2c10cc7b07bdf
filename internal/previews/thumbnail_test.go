package previews

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWith(t *testing.T, name string, data []byte) *blobstore.LocalStore {
	t.Helper()
	s := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, s.EnsureLocation(context.Background()))
	_, err := s.Write(context.Background(), blobstore.AssetKey(name), bytes.NewReader(data), int64(len(data)), "")
	require.NoError(t, err)
	return s
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDerive_FitsBoxAndKeepsSourceDimensions(t *testing.T) {
	s := storeWith(t, "1-abc.png", encodePNG(t, 400, 300))
	g := NewGenerator(s, 200, 80, 0)

	res, err := g.Derive(context.Background(), "1-abc.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "thumbnails/thumb_1-abc.jpg", res.Location)
	assert.Equal(t, 400, res.Width)
	assert.Equal(t, 300, res.Height)

	rc, err := s.Open(context.Background(), res.Location)
	require.NoError(t, err)
	defer rc.Close()
	thumb, format, err := image.Decode(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 200, thumb.Bounds().Dx())
	assert.Equal(t, 150, thumb.Bounds().Dy())
}

func TestDerive_SmallImageIsNotUpscaled(t *testing.T) {
	s := storeWith(t, "2-abc.png", encodePNG(t, 50, 20))
	res, err := NewGenerator(s, 200, 80, 0).Derive(context.Background(), "2-abc.png", "image/png")
	require.NoError(t, err)

	rc, err := s.Open(context.Background(), res.Location)
	require.NoError(t, err)
	defer rc.Close()
	cfg, _, err := image.DecodeConfig(rc)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
}

func TestDerive_Failures(t *testing.T) {
	ctx := context.Background()

	s := storeWith(t, "3-abc.pdf", []byte("%PDF-1.4"))
	_, err := NewGenerator(s, 200, 80, 0).Derive(ctx, "3-abc.pdf", "application/pdf")
	require.ErrorIs(t, err, ErrSkipped)

	s = storeWith(t, "4-abc.png", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...))
	_, err = NewGenerator(s, 200, 80, 0).Derive(ctx, "4-abc.png", "image/png")
	require.ErrorIs(t, err, ErrDerivation)

	s = storeWith(t, "5-abc.png", encodePNG(t, 100, 100))
	_, err = NewGenerator(s, 200, 80, 5000).Derive(ctx, "5-abc.png", "image/png")
	require.ErrorIs(t, err, ErrDerivation)

	_, err = NewGenerator(s, 200, 80, 0).Derive(ctx, "missing.png", "image/png")
	require.ErrorIs(t, err, ErrDerivation)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/png"))
	assert.True(t, IsImage("IMAGE/JPEG"))
	assert.True(t, IsImage("image/webp; foo=bar"))
	assert.False(t, IsImage("image/svg+xml"))
	assert.False(t, IsImage("application/pdf"))
}
