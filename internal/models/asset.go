package models

import (
	"time"
)

// Asset is the metadata record describing one stored upload. Every field
// except the derived ones is immutable after creation.
type Asset struct {
	ID              string    `json:"id"`
	StorageName     string    `json:"storage_name"`
	OriginalName    string    `json:"original_name"`
	MimeType        string    `json:"mime_type"`
	Size            int64     `json:"size"`
	Checksum        string    `json:"checksum"`
	StorageLocation string    `json:"-"`
	DerivedLocation string    `json:"-"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	OwnerID         string    `json:"owner_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasThumbnail reports whether derivation succeeded for this asset.
func (a *Asset) HasThumbnail() bool {
	return a.DerivedLocation != ""
}

// OwnerStats summarizes what one owner has stored.
type OwnerStats struct {
	OwnerID      string     `json:"owner_id"`
	AssetCount   int64      `json:"asset_count"`
	TotalBytes   int64      `json:"total_bytes"`
	LatestUpload *time.Time `json:"latest_upload,omitempty"`
}

// AssetPage is one offset-based page of an owner's assets.
type AssetPage struct {
	Items []Asset `json:"items"`
	Total int64   `json:"total"`
	Pages int     `json:"pages"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}
