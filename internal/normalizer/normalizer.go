package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/shared"
)

// Normalize maps a raw entry to a canonical track.
//
// It is pure: the same entry and table always produce the same record. Entries
// without a title or artist yield a [shared.SkippedTrackWarning] instead.
func Normalize(entry models.RawTrackEntry, fm FieldMap) (models.CanonicalTrack, *shared.SkippedTrackWarning) {
	track := models.CanonicalTrack{Position: entry.Position}

	for _, m := range fm.mappings {
		v, ok := entry.Lookup(m.Path)
		if !ok {
			continue
		}
		apply(&track, m, v)
	}

	if track.Title == "" {
		return models.CanonicalTrack{}, &shared.SkippedTrackWarning{Position: entry.Position, Field: "title", Reason: "missing"}
	}
	if len(track.Artists) == 0 {
		return models.CanonicalTrack{}, &shared.SkippedTrackWarning{Position: entry.Position, Field: "artists", Reason: "missing"}
	}
	return track, nil
}

// Normalize is a convenience for [Normalize] with this table.
func (m FieldMap) Normalize(entry models.RawTrackEntry) (models.CanonicalTrack, *shared.SkippedTrackWarning) {
	return Normalize(entry, m)
}

func apply(track *models.CanonicalTrack, m Mapping, v any) {
	switch m.Target {
	case Title:
		if track.Title == "" {
			track.Title, _ = asString(v)
		}
	case Artists:
		if len(track.Artists) == 0 {
			track.Artists = asStrings(v)
		}
	case Album:
		if track.Album == nil {
			if s, ok := asString(v); ok {
				track.Album = &s
			}
		}
	case AlbumCover:
		if track.AlbumCover == "" {
			if covers := asStrings(v); len(covers) > 0 {
				track.AlbumCover = covers[0]
			}
		}
	case DurationSeconds, DurationMillis, DurationText:
		if track.Duration == nil {
			track.Duration = duration(m.Target, v)
		}
	case ExternalID:
		if s, ok := asString(v); ok {
			if track.ExternalIDs == nil {
				track.ExternalIDs = make(map[string]string)
			}
			if _, exists := track.ExternalIDs[m.Key]; !exists {
				track.ExternalIDs[m.Key] = s
			}
		}
	case Explicit:
		if b, ok := asBool(v); ok && b {
			track.Explicit = true
		}
	case Version:
		if track.Version == "" {
			track.Version, _ = asString(v)
		}
	case AddedAtUnix, AddedAtText:
		if track.AddedAt == nil {
			track.AddedAt = addedAt(m.Target, v)
		}
	}
}

func duration(target Target, v any) *int {
	var secs int
	switch target {
	case DurationSeconds:
		n, ok := asInt(v)
		if !ok {
			return nil
		}
		secs = n
	case DurationMillis:
		n, ok := asInt(v)
		if !ok {
			return nil
		}
		secs = (n + 500) / 1000
	case DurationText:
		s, ok := asString(v)
		if !ok {
			return nil
		}
		n, ok := ParseDuration(s)
		if !ok {
			return nil
		}
		secs = n
	}
	if secs <= 0 {
		return nil
	}
	return &secs
}

func addedAt(target Target, v any) *time.Time {
	switch target {
	case AddedAtUnix:
		n, ok := asInt64(v)
		if !ok || n <= 0 {
			return nil
		}
		if n > 1e10 {
			n /= 1000
		}
		t := time.Unix(n, 0).UTC()
		return &t
	case AddedAtText:
		s, ok := asString(v)
		if !ok {
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil
		}
		t = t.UTC()
		return &t
	}
	return nil
}

// ParseDuration converts "m:ss" or "h:mm:ss" into seconds.
func ParseDuration(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		if i > 0 && n >= 60 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}

func asString(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case json.Number:
		s = x.String()
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case []any:
		if len(x) > 0 {
			return asString(x[0])
		}
	}
	return s, s != ""
}

func asStrings(v any) []string {
	var out []string
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if s, ok := asString(item); ok {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range x {
			if s, ok := asString(item); ok {
				out = append(out, s)
			}
		}
	default:
		if s, ok := asString(v); ok {
			out = append(out, s)
		}
	}
	return out
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			return int64(f), ferr == nil
		}
		return n, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	n, ok := asInt64(v)
	return int(n), ok
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case float64:
		return x != 0, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	}
	return false, false
}
