package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/normalizer"
	"github.com/desertthunder/musixporter/internal/shared"
)

// Source fetches playlists from one upstream service.
type Source interface {
	// Name returns the service key ("deezer", "ytmusic", "spotify").
	Name() string

	// ResolveRef turns a playlist ID or service URL into a [models.PlaylistRef].
	ResolveRef(raw string) (models.PlaylistRef, error)

	// Playlist retrieves playlist metadata.
	Playlist(ctx context.Context, ref models.PlaylistRef) (*models.Playlist, error)

	// FetchPage retrieves one page of entries; the empty cursor is the first page.
	FetchPage(ctx context.Context, ref models.PlaylistRef, cursor string) (*Page, error)

	// FieldMap returns the table used to normalize this source's entries.
	FieldMap() normalizer.FieldMap

	// Close releases the source's session.
	Close() error
}

// Tracks returns the lazy entry sequence for ref.
func Tracks(src Source, ref models.PlaylistRef, prefetch bool) *Pager {
	return NewPager(func(ctx context.Context, cursor string) (*Page, error) {
		return src.FetchPage(ctx, ref, cursor)
	}, prefetch)
}

// Factory builds a source from configuration.
type Factory func(cfg *shared.Config, logger *log.Logger) (Source, error)

var factories = map[string]Factory{
	DeezerName:  newDeezer,
	YouTubeName: newYouTube,
	SpotifyName: NewSpotifySource,
}

func newDeezer(cfg *shared.Config, logger *log.Logger) (Source, error) {
	return NewDeezerSource(cfg, logger), nil
}

func newYouTube(cfg *shared.Config, logger *log.Logger) (Source, error) {
	return NewYouTubeSource(cfg, logger), nil
}

// NewSource builds the named source.
func NewSource(name string, cfg *shared.Config, logger *log.Logger) (Source, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", shared.ErrUnknownSource, name, Names())
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return factory(cfg, logger)
}

// Names lists the registered sources in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
