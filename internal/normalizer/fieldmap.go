// package normalizer converts flattened upstream track records into [models.CanonicalTrack]
// values using explicit, validated field mapping tables.
package normalizer

import (
	"errors"
	"fmt"
)

var ErrInvalidFieldMap = errors.New("invalid field map")

// Target is a canonical track field a source path can feed.
type Target int

const (
	Title Target = iota + 1
	Artists
	Album
	AlbumCover
	DurationSeconds
	DurationMillis
	DurationText // "m:ss" or "h:mm:ss"
	ExternalID   // requires Mapping.Key, e.g. "isrc" or the source name
	Explicit
	Version
	AddedAtUnix // seconds, or milliseconds when larger than 1e10
	AddedAtText // RFC 3339
	lastTarget
)

func (t Target) String() string {
	switch t {
	case Title:
		return "title"
	case Artists:
		return "artists"
	case Album:
		return "album"
	case AlbumCover:
		return "album_cover"
	case DurationSeconds:
		return "duration_seconds"
	case DurationMillis:
		return "duration_millis"
	case DurationText:
		return "duration_text"
	case ExternalID:
		return "external_id"
	case Explicit:
		return "explicit"
	case Version:
		return "version"
	case AddedAtUnix:
		return "added_at_unix"
	case AddedAtText:
		return "added_at_text"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// Mapping routes one flattened source path to a canonical target.
type Mapping struct {
	Path   string
	Target Target
	Key    string
}

// FieldMap is the explicit source → canonical table for one upstream service.
//
// When several paths feed the same target, they are tried in table order and
// the first usable value wins.
type FieldMap struct {
	source   string
	mappings []Mapping
}

// NewFieldMap validates and builds a field map.
func NewFieldMap(source string, mappings ...Mapping) (FieldMap, error) {
	if source == "" {
		return FieldMap{}, fmt.Errorf("%w: source name is required", ErrInvalidFieldMap)
	}

	seen := make(map[string]bool, len(mappings))
	covered := make(map[Target]bool)
	for i, m := range mappings {
		switch {
		case m.Path == "":
			return FieldMap{}, fmt.Errorf("%w: %s mapping %d has no path", ErrInvalidFieldMap, source, i)
		case m.Target <= 0 || m.Target >= lastTarget:
			return FieldMap{}, fmt.Errorf("%w: %s path %q has unknown target %v", ErrInvalidFieldMap, source, m.Path, m.Target)
		case m.Target == ExternalID && m.Key == "":
			return FieldMap{}, fmt.Errorf("%w: %s path %q needs an external id key", ErrInvalidFieldMap, source, m.Path)
		case m.Target != ExternalID && m.Key != "":
			return FieldMap{}, fmt.Errorf("%w: %s path %q sets a key on %v", ErrInvalidFieldMap, source, m.Path, m.Target)
		case seen[m.Path]:
			return FieldMap{}, fmt.Errorf("%w: %s path %q mapped twice", ErrInvalidFieldMap, source, m.Path)
		}
		seen[m.Path] = true
		covered[m.Target] = true
	}

	for _, required := range []Target{Title, Artists} {
		if !covered[required] {
			return FieldMap{}, fmt.Errorf("%w: %s does not map %v", ErrInvalidFieldMap, source, required)
		}
	}

	return FieldMap{source: source, mappings: append([]Mapping(nil), mappings...)}, nil
}

// MustFieldMap is like [NewFieldMap] but panics on an invalid table.
// Use it for package-level tables so mistakes surface at startup.
func MustFieldMap(source string, mappings ...Mapping) FieldMap {
	fm, err := NewFieldMap(source, mappings...)
	if err != nil {
		panic(err)
	}
	return fm
}

func (m FieldMap) Source() string { return m.source }

// Mappings returns a copy of the table.
func (m FieldMap) Mappings() []Mapping {
	return append([]Mapping(nil), m.mappings...)
}
