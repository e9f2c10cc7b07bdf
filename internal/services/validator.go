package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLen = 3072

// DefaultAllowedMimeTypes covers common images, PDF, archives, office
// documents and spreadsheets.
var DefaultAllowedMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
	"application/pdf",
	"application/zip",
	"application/gzip",
	"application/x-tar",
	"application/x-7z-compressed",
	"application/x-rar-compressed",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.oasis.opendocument.spreadsheet",
	"text/csv",
	"text/plain",
}

// Constraints are supplied per call site.
type Constraints struct {
	MaxSizeBytes     int64
	AllowedMimeTypes []string
}

func DefaultConstraints() Constraints {
	return Constraints{
		MaxSizeBytes:     100 << 20,
		AllowedMimeTypes: DefaultAllowedMimeTypes,
	}
}

// Validate checks the declared size and the sniffed type of r. It consumes
// at most the sniff header and returns a reader that replays it, followed
// by the rest of r. declaredSize < 0 means unknown.
func Validate(declaredSize int64, r io.Reader, c Constraints) (string, io.Reader, error) {
	if declaredSize > c.MaxSizeBytes {
		return "", nil, &ValidationError{
			Kind:   TooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds limit of %d", declaredSize, c.MaxSizeBytes),
		}
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, fmt.Errorf("read upload header: %w", err)
	}
	header = header[:n]
	if n == 0 {
		return "", nil, &ValidationError{Kind: UnsupportedType, Detail: "empty payload"}
	}
	if int64(n) > c.MaxSizeBytes {
		return "", nil, &ValidationError{Kind: TooLarge, Detail: fmt.Sprintf("exceeds limit of %d", c.MaxSizeBytes)}
	}

	detected := mimetype.Detect(header)
	mimeType, ok := allowed(detected, c.AllowedMimeTypes)
	if !ok {
		return "", nil, &ValidationError{Kind: UnsupportedType, Detail: baseType(detected.String())}
	}
	return mimeType, io.MultiReader(bytes.NewReader(header), r), nil
}

// containerFormats are detected as children of a generic container type.
// Only these may be accepted when just the container is allowed; any other
// child (a jar under zip, html under text/plain) must be listed itself.
var containerFormats = map[string]string{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "application/zip",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "application/zip",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "application/zip",
	"application/vnd.oasis.opendocument.text":                                   "application/zip",
	"application/vnd.oasis.opendocument.spreadsheet":                            "application/zip",
}

// allowed reports whether the detected type (or one of its aliases) is in
// the allow-list. The returned type is always the detected one.
func allowed(detected *mimetype.MIME, allowList []string) (string, bool) {
	found := baseType(detected.String())
	for _, a := range allowList {
		if detected.Is(a) {
			return found, true
		}
	}
	if container, ok := containerFormats[found]; ok && mimetype.EqualsAny(container, allowList...) {
		return found, true
	}
	return "", false
}

func baseType(mediaType string) string {
	t, _, _ := strings.Cut(mediaType, ";")
	return strings.TrimSpace(t)
}

var (
	errSizeExceeded = errors.New("payload exceeds size limit")
	errLongerThan   = errors.New("payload longer than declared size")
)

// boundedReader fails once more than max bytes have passed through, so an
// understated declared size is still caught while streaming.
type boundedReader struct {
	r    io.Reader
	max  int64
	read int64
}

func (b *boundedReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		return n, errSizeExceeded
	}
	return n, err
}

// drained checks that a store which stopped at the declared size consumed the
// whole payload. Stores that read to EOF always pass.
func (b *boundedReader) drained() error {
	var extra [1]byte
	for {
		n, err := b.Read(extra[:])
		switch {
		case errors.Is(err, errSizeExceeded):
			return err
		case n > 0:
			return errLongerThan
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
	}
}
