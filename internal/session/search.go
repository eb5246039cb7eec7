package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
)

// Search narrows the visible lines to products whose name matches term.
// An empty term clears the filter. Only the most recent search may change
// the filter; a failed search leaves the current filter in place.
func (c *Controller) Search(ctx context.Context, term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return c.ClearSearch()
	}
	if c.opts.Searcher == nil {
		return errors.New("session: no product searcher configured")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.searchSeq++
	seq := c.searchSeq
	c.state.searchPending = true
	c.mu.Unlock()
	c.publish()

	ids, err := c.opts.Searcher.SearchProducts(ctx, term, c.opts.SearchLimit)

	c.mu.Lock()
	if seq != c.searchSeq || c.closed {
		c.mu.Unlock()
		logging.Debug("Dropping outdated search result",
			zap.String("subject", c.subject.String()),
			zap.String("term", term),
			zap.Uint64("seq", seq),
		)
		return nil
	}
	c.state.searchPending = false
	if err == nil {
		if len(ids) == 0 {
			c.state.filter = MatchNothing(term)
		} else {
			c.state.filter = MatchProducts(term, ids)
		}
	}
	c.mu.Unlock()

	switch {
	case err != nil:
		logging.Warn("Product search failed",
			zap.String("subject", c.subject.String()),
			zap.String("term", term),
			zap.Error(err),
		)
		c.host.Notify(NoticeDanger, MsgSearchFailed)
	case len(ids) == 0:
		c.host.Notify(NoticeWarning, MsgNoMatchingProducts)
	default:
		logging.Debug("Product search applied",
			zap.String("subject", c.subject.String()),
			zap.String("term", term),
			zap.Int("products", len(ids)),
		)
	}
	c.publish()

	if err != nil {
		return fmt.Errorf("search %q: %w", term, err)
	}
	return nil
}

// ClearSearch removes the product filter and discards pending searches.
func (c *Controller) ClearSearch() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.searchSeq++
	c.state.filter = NoFilter()
	c.state.searchPending = false
	c.mu.Unlock()

	c.publish()
	return nil
}
