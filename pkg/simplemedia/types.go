package simplemedia

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// MediaKind is the broad category an upload type belongs to.
type MediaKind string

// Media kind constants (typed).
const (
	KindPhoto MediaKind = "photo"
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// Valid reports whether k is one of the known media kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case KindPhoto, KindAudio, KindVideo:
		return true
	}
	return false
}

// Variants maps a target width to the stored path (or URL) of the derived file.
// It always serializes with keys in ascending numeric order.
type Variants map[int]string

// Widths returns the keys of v in ascending order.
func (v Variants) Widths() []int {
	widths := make([]int, 0, len(v))
	for w := range v {
		widths = append(widths, w)
	}
	sort.Ints(widths)
	return widths
}

// Clone returns a shallow copy of v. A nil map clones to nil.
func (v Variants) Clone() Variants {
	if v == nil {
		return nil
	}
	out := make(Variants, len(v))
	for w, p := range v {
		out[w] = p
	}
	return out
}

// Contains reports whether path is one of the values of v.
func (v Variants) Contains(path string) bool {
	for _, p := range v {
		if p == path {
			return true
		}
	}
	return false
}

// MarshalJSON writes the map ordered by width rather than by string key.
func (v Variants) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, w := range v.Widths() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(w)))
		buf.WriteByte(':')
		val, err := json.Marshal(v[w])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// File is the stored location and fingerprint of an original.
// Dir is relative to the storage root and always ends with "/".
type File struct {
	Host string
	Dir  string
	Name string
	Ext  string
	Hash string
	Size int64
}

// OriginalPath returns the storage-relative path of the original file.
func (f File) OriginalPath() string {
	return f.Dir + f.Name + "." + f.Ext
}

// Derived groups the three variant maps produced by the planner.
type Derived struct {
	Sizes      Variants
	CropSquare Variants
	CropCustom Variants
}

// Paths returns every derived path across all categories.
func (d Derived) Paths() []string {
	var out []string
	for _, m := range []Variants{d.Sizes, d.CropSquare, d.CropCustom} {
		for _, w := range m.Widths() {
			out = append(out, m[w])
		}
	}
	return out
}

// Clone returns a copy whose variant maps are not shared with d.
func (d Derived) Clone() Derived {
	return Derived{
		Sizes:      d.Sizes.Clone(),
		CropSquare: d.CropSquare.Clone(),
		CropCustom: d.CropCustom.Clone(),
	}
}

// Asset is the persisted description of an uploaded original and its variants.
type Asset struct {
	File
	Derived

	FileID    string
	Kind      MediaKind
	Type      string
	Duration  int
	Fields    map[string]string
	CoverID   string
	CreatedAt time.Time
	IsUse     bool
	HiddenAt  int64
}

// Hidden reports whether the asset has been tombstoned.
func (a *Asset) Hidden() bool {
	return a.HiddenAt != 0
}

// Cover is a companion image stored for an audio or video asset. MediaKind
// and Type name the parent's profile.
type Cover struct {
	File
	Derived

	FileID    string
	MediaKind MediaKind
	Type      string
	CreatedAt time.Time
	HiddenAt  int64
}

func (c *Cover) clone() *Cover {
	out := *c
	out.Derived = c.Derived.Clone()
	return &out
}

// CropBox is a resolved crop rectangle in source pixel coordinates.
type CropBox struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// CropParams carries a caller supplied crop box. Any nil field makes the box
// incomplete and the planner falls back to an auto-centered crop.
type CropParams struct {
	Left   *int `json:"left,omitempty"`
	Top    *int `json:"top,omitempty"`
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`
}

// Complete reports whether all four coordinates were supplied.
func (p *CropParams) Complete() bool {
	return p != nil && p.Left != nil && p.Top != nil && p.Width != nil && p.Height != nil
}

// Box returns the explicit crop box. Only meaningful when Complete is true.
func (p *CropParams) Box() CropBox {
	if !p.Complete() {
		return CropBox{}
	}
	return CropBox{Left: *p.Left, Top: *p.Top, Width: *p.Width, Height: *p.Height}
}

// StoredFile is what the content-addressed store returns after a commit.
type StoredFile struct {
	Dir  string
	Name string
	Ext  string
}

// ProbeResult describes the true format of an upload.
type ProbeResult struct {
	Ext      string
	MIME     string
	Size     int64
	Width    int
	Height   int
	Duration int
}
