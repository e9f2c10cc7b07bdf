// Package scan checks uploaded bytes with a ClamAV daemon.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"

	clamd "github.com/dutchcoders/go-clamd"
)

// ClamAV streams content to clamd over INSTREAM.
type ClamAV struct {
	client *clamd.Clamd
}

// NewClamAV takes a clamd address such as tcp://clamav:3310.
func NewClamAV(address string) *ClamAV {
	return &ClamAV{client: clamd.NewClamd(address)}
}

func (c *ClamAV) Ping() error {
	return c.client.Ping()
}

// Scan reports clean=false with the matched signature when clamd finds
// malware. Transport failures and clamd errors are returned as err.
func (c *ClamAV) Scan(ctx context.Context, r io.Reader) (bool, string, error) {
	abort := make(chan bool, 1)
	results, err := c.client.ScanStream(r, abort)
	if err != nil {
		return false, "", fmt.Errorf("clamd scan: %w", err)
	}

	clean := true
	signature := ""
	var scanErr error
	for {
		select {
		case <-ctx.Done():
			abort <- true
			return false, "", ctx.Err()
		case res, ok := <-results:
			if !ok {
				if scanErr != nil {
					return false, "", scanErr
				}
				return clean, signature, nil
			}
			switch res.Status {
			case clamd.RES_FOUND:
				clean = false
				signature = res.Description
			case clamd.RES_ERROR, clamd.RES_PARSE_ERROR:
				scanErr = errors.New("clamd: " + res.Description)
			}
		}
	}
}
