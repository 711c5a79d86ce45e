package simplemedia

import "io"

// Request/Response DTOs

// UploadRequest contains parameters for uploading a new asset. Exactly one
// of Path or Reader is used; Path names a temporary file that is moved into
// the store.
type UploadRequest struct {
	Type   string
	Path   string
	Reader io.Reader
	Rotate int
	Crop   *CropParams
	Fields map[string]string
}

// UploadResult is returned for a successful upload
type UploadResult struct {
	Host   string `json:"host"`
	FileID string `json:"file_id"`
}

// AssetDetails is the public view of an asset with URLs in place of paths
type AssetDetails struct {
	FileID     string            `json:"file_id"`
	Kind       MediaKind         `json:"kind"`
	Type       string            `json:"type"`
	Fields     map[string]string `json:"fields"`
	Original   string            `json:"original"`
	Sizes      Variants          `json:"sizes"`
	CropSquare Variants          `json:"crop_square,omitempty"`
	CropCustom Variants          `json:"crop_custom,omitempty"`
	Cover      *CoverDetails     `json:"cover,omitempty"`
	Duration   int               `json:"duration,omitempty"`
	Hash       string            `json:"hash"`
	Size       int64             `json:"size"`
	CreatedAt  int64             `json:"time"`
	IsUse      bool              `json:"is_use"`
}

// CoverDetails is the public view of a cover
type CoverDetails struct {
	FileID     string   `json:"file_id"`
	Original   string   `json:"original"`
	Sizes      Variants `json:"sizes,omitempty"`
	CropSquare Variants `json:"crop_square,omitempty"`
	CropCustom Variants `json:"crop_custom,omitempty"`
}

// CropResult holds the re-derived variant URLs after a crop
type CropResult struct {
	Sizes    Variants `json:"sizes"`
	Original string   `json:"original"`
}

// ListParams pages through records
type ListParams struct {
	Offset int
	Limit  int
}
