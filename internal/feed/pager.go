package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"carelink/internal/domain"
)

// Pager walks the paginated feed once, from the persisted cursor to the
// newest page, collecting entries published after the cursor. It is a
// single-pass traversal: every invocation restarts from the cursor it was
// given.
type Pager struct {
	source PageSource
	log    *zap.Logger

	// now is injectable for tests.
	now func() time.Time
}

func NewPager(source PageSource, log *zap.Logger) *Pager {
	return &Pager{source: source, log: log, now: time.Now}
}

// Poll traverses the feed from cursor and returns the new entries together
// with the replacement cursor. The returned cursor is only valid on success;
// on any transport or parse failure the caller must keep the old cursor so
// the same work is retried next cycle.
func (p *Pager) Poll(ctx context.Context, cursor domain.Cursor) ([]domain.FeedEntry, domain.Cursor, error) {
	token := cursor.LastPage
	fetchToken := token
	if fetchToken == "" {
		fetchToken = RecentPage
	}

	var entries []domain.FeedEntry
	for {
		page, err := p.source.GetPage(ctx, fetchToken)
		if err != nil {
			return nil, domain.Cursor{}, err
		}

		if cursor.LastPolledAt.IsZero() || page.Updated.After(cursor.LastPolledAt) {
			for _, entry := range page.Entries {
				if cursor.LastPolledAt.IsZero() || entry.PublishedAt.After(cursor.LastPolledAt) {
					entries = append(entries, entry)
				}
			}
		}

		if page.NextArchive != "" {
			token = page.NextArchive
			fetchToken = token
			continue
		}

		// A first-ever poll that never left the recent sentinel has no
		// durable token yet; anchor the cursor on the page's via link
		// so the next cycle resumes from a stable address.
		if token == "" {
			token = page.Via
		}
		break
	}

	next := domain.Cursor{
		LastPolledAt: p.now().UTC(),
		LastPage:     token,
	}
	p.log.Info("feed traversal complete",
		zap.Int("entries", len(entries)),
		zap.String("last_page", next.LastPage),
		zap.Time("last_polled_at", next.LastPolledAt),
	)
	return entries, next, nil
}
