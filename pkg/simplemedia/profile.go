package simplemedia

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultLevel is the shard depth used when a profile leaves it unset.
const DefaultLevel = 4

// CropSpec configures a crop-then-resize derivation.
type CropSpec struct {
	IsNeed  bool       `yaml:"is_need" json:"is_need"`
	Default *Dimension `yaml:"default,omitempty" json:"default,omitempty"`
	Resize  []int      `yaml:"resize" json:"resize"`
}

// Dimension is a width and height pair.
type Dimension struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// CoverSpec configures the companion cover image of an audio or video type.
type CoverSpec struct {
	IsNeed  bool         `yaml:"is_need" json:"is_need"`
	Profile *TypeProfile `yaml:"profile,omitempty" json:"profile,omitempty"`
}

// TypeProfile describes validation limits and derivations for one upload type.
type TypeProfile struct {
	Key        string    `yaml:"key" json:"key"`
	Kind       MediaKind `yaml:"kind" json:"kind"`
	Dir        string    `yaml:"dir" json:"dir"`
	MinSize    int64     `yaml:"min_size" json:"min_size"`
	MaxSize    int64     `yaml:"max_size" json:"max_size"`
	AllowTypes []string  `yaml:"allow_types" json:"allow_types"`
	Level      int       `yaml:"level" json:"level"`
	Fields     []string  `yaml:"fields" json:"fields"`

	// Sizes holds [width, height] pairs for plain resize. A zero height keeps
	// the aspect ratio.
	Sizes [][]int `yaml:"sizes" json:"sizes"`

	// Cropped derives Sizes from a crop of the original sized by Sizes[0].
	Cropped    bool      `yaml:"cropped" json:"cropped"`
	CropSquare CropSpec  `yaml:"crop_square" json:"crop_square"`
	CropCustom CropSpec  `yaml:"crop_custom" json:"crop_custom"`
	Cover      CoverSpec `yaml:"cover" json:"cover"`

	Quality int `yaml:"quality" json:"quality"`

	// OptimizeFloor is the size in bytes above which originals are optimized.
	OptimizeFloor int64 `yaml:"optimize_floor" json:"optimize_floor"`

	// Retention is how long an unused asset is kept before collection. Zero
	// disables collection for this type.
	Retention time.Duration `yaml:"retention" json:"retention"`
}

// UnmarshalJSON accepts retention as a duration string such as "720h" or as
// integer nanoseconds, matching what the YAML decoder understands.
func (p *TypeProfile) UnmarshalJSON(data []byte) error {
	type plain TypeProfile
	aux := struct {
		*plain
		Retention json.RawMessage `json:"retention"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Retention) == 0 || string(aux.Retention) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(aux.Retention, &text); err == nil {
		d, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("profile %s: invalid retention %q: %w", p.Key, text, err)
		}
		p.Retention = d
		return nil
	}
	var nanos int64
	if err := json.Unmarshal(aux.Retention, &nanos); err != nil {
		return fmt.Errorf("profile %s: invalid retention %s", p.Key, aux.Retention)
	}
	p.Retention = time.Duration(nanos)
	return nil
}

// ShardLevel returns the configured level or DefaultLevel.
func (p *TypeProfile) ShardLevel() int {
	if p.Level <= 0 {
		return DefaultLevel
	}
	return p.Level
}

// Allows reports whether ext is in the allow list. Comparison ignores case
// and a leading dot.
func (p *TypeProfile) Allows(ext string) bool {
	ext = normalizeExt(ext)
	for _, a := range p.AllowTypes {
		if normalizeExt(a) == ext {
			return true
		}
	}
	return false
}

// SortedSizes returns Sizes ordered by ascending width.
func (p *TypeProfile) SortedSizes() []Dimension {
	out := make([]Dimension, 0, len(p.Sizes))
	for _, s := range p.Sizes {
		d := Dimension{}
		if len(s) > 0 {
			d.Width = s[0]
		}
		if len(s) > 1 {
			d.Height = s[1]
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Width < out[j].Width })
	return out
}

// Validate checks the structural invariants of the profile.
func (p *TypeProfile) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("profile key is required")
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("profile %s: invalid kind %q", p.Key, p.Kind)
	}
	if p.Dir == "" {
		return fmt.Errorf("profile %s: dir is required", p.Key)
	}
	if p.MaxSize > 0 && p.MinSize > p.MaxSize {
		return fmt.Errorf("profile %s: min_size exceeds max_size", p.Key)
	}
	seen := make(map[int]bool)
	for _, s := range p.Sizes {
		if len(s) != 2 || s[0] <= 0 || s[1] < 0 {
			return fmt.Errorf("profile %s: sizes entries must be [width, height]", p.Key)
		}
		if seen[s[0]] {
			return fmt.Errorf("profile %s: duplicate width %d in sizes", p.Key, s[0])
		}
		seen[s[0]] = true
	}
	if p.Cropped && len(p.Sizes) == 0 {
		return fmt.Errorf("profile %s: cropped requires at least one size", p.Key)
	}
	for name, spec := range map[string]CropSpec{"crop_square": p.CropSquare, "crop_custom": p.CropCustom} {
		if err := validateWidths(p.Key, name, spec.Resize); err != nil {
			return err
		}
	}
	if p.Cover.IsNeed {
		if p.Cover.Profile == nil {
			return fmt.Errorf("profile %s: cover.profile is required when cover.is_need is set", p.Key)
		}
		cover := *p.Cover.Profile
		if cover.Key == "" {
			cover.Key = p.Key + ".cover"
		}
		if cover.Kind == "" {
			cover.Kind = KindPhoto
		}
		if err := cover.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateWidths(key, name string, widths []int) error {
	seen := make(map[int]bool)
	for _, w := range widths {
		if w <= 0 {
			return fmt.Errorf("profile %s: %s widths must be positive", key, name)
		}
		if seen[w] {
			return fmt.Errorf("profile %s: duplicate width %d in %s", key, w, name)
		}
		seen[w] = true
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

// Registry maps type keys to validated profiles.
type Registry struct {
	profiles map[string]*TypeProfile
}

// NewRegistry validates and indexes the given profiles.
func NewRegistry(profiles ...TypeProfile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]*TypeProfile, len(profiles))}
	for i := range profiles {
		p := profiles[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.profiles[p.Key]; exists {
			return nil, fmt.Errorf("duplicate profile key %s", p.Key)
		}
		if p.Cover.IsNeed {
			cover := *p.Cover.Profile
			if cover.Kind == "" {
				cover.Kind = KindPhoto
			}
			if cover.Key == "" {
				cover.Key = p.Key + ".cover"
			}
			p.Cover.Profile = &cover
		}
		r.profiles[p.Key] = &p
	}
	return r, nil
}

// Lookup returns the profile for key or ErrUnknownType.
func (r *Registry) Lookup(key string) (*TypeProfile, error) {
	if r == nil {
		return nil, ErrUnknownType
	}
	p, ok := r.profiles[key]
	if !ok {
		return nil, ErrUnknownType
	}
	return p, nil
}

// Keys returns all registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
