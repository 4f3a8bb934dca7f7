package services

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/shared"
)

// Page is one upstream page of playlist entries. An empty Next ends the sequence.
type Page struct {
	Entries []models.RawTrackEntry
	Next    string
	Total   int
}

// PageFunc fetches the page identified by cursor; the empty cursor is the first page.
type PageFunc func(ctx context.Context, cursor string) (*Page, error)

type pageResult struct {
	page *Page
	err  error
}

// Pager turns a [PageFunc] into a finite, ordered, single-use sequence of entries.
//
// Entries are renumbered 1..N in upstream order. Iterating a second time yields
// [shared.ErrSequenceConsumed].
type Pager struct {
	fetch    PageFunc
	prefetch bool
	used     atomic.Bool
	pages    atomic.Int64
}

// NewPager creates a pager. With prefetch, page N+1 is requested while page N is consumed.
func NewPager(fetch PageFunc, prefetch bool) *Pager {
	return &Pager{fetch: fetch, prefetch: prefetch}
}

// Pages reports how many pages have been fetched so far.
func (p *Pager) Pages() int { return int(p.pages.Load()) }

// All returns the lazy entry sequence. Fetch errors are yielded once and end the sequence.
func (p *Pager) All(ctx context.Context) iter.Seq2[models.RawTrackEntry, error] {
	return func(yield func(models.RawTrackEntry, error) bool) {
		if p.used.Swap(true) {
			yield(models.RawTrackEntry{}, shared.ErrSequenceConsumed)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		cursor := ""
		page, err := p.get(ctx, cursor)
		position := 0

		for {
			if err != nil {
				yield(models.RawTrackEntry{}, err)
				return
			}
			if page == nil || len(page.Entries) == 0 {
				return
			}

			next := page.Next
			if next != "" && next == cursor {
				yield(models.RawTrackEntry{}, fmt.Errorf("%w: pagination cursor %q did not advance", shared.ErrAPIRequest, next))
				return
			}

			var pending chan pageResult
			if p.prefetch && next != "" {
				pending = make(chan pageResult, 1)
				go func(cursor string) {
					pg, err := p.get(ctx, cursor)
					pending <- pageResult{page: pg, err: err}
				}(next)
			}

			for _, entry := range page.Entries {
				position++
				entry.Position = position
				if !yield(entry, nil) {
					return
				}
			}

			if next == "" {
				return
			}
			cursor = next

			if pending != nil {
				res := <-pending
				page, err = res.page, res.err
			} else {
				page, err = p.get(ctx, cursor)
			}
		}
	}
}

func (p *Pager) get(ctx context.Context, cursor string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := p.fetch(ctx, cursor)
	if err == nil {
		p.pages.Add(1)
	}
	return page, err
}
