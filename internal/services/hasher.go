package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/blobstore"
)

// Checksum re-reads key from the store and returns the hex SHA-256 of the
// persisted bytes together with their count.
func Checksum(ctx context.Context, store blobstore.BlobStore, key string) (string, int64, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	h := sha256.New()
	n, err := io.Copy(h, rc)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// verifyingReader recomputes the digest while streaming and fails the final
// read when it does not match.
type verifyingReader struct {
	rc         io.ReadCloser
	h          hash.Hash
	want       string
	onMismatch func(got string)
}

func newVerifyingReader(rc io.ReadCloser, want string, onMismatch func(got string)) *verifyingReader {
	return &verifyingReader{rc: rc, h: sha256.New(), want: want, onMismatch: onMismatch}
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	v.h.Write(p[:n])
	if err == io.EOF {
		if got := hex.EncodeToString(v.h.Sum(nil)); got != v.want {
			if v.onMismatch != nil {
				v.onMismatch(got)
			}
			return n, ErrChecksumMismatch
		}
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	return v.rc.Close()
}
