package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
)

// Refresh re-reads the session from the backend after a confirmed mutation,
// merges the records into the model, recomputes counters and returns to the
// line list. Each call is a full refresh, so overlapping calls converge.
// When the operator navigated while the refresh was in flight, the new
// data is published but the view is left alone.
func (c *Controller) Refresh(ctx context.Context, params RefreshParams) error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.opts.Transport == nil {
		return ErrNoTransport
	}

	c.mu.Lock()
	epoch := c.navEpoch
	c.mu.Unlock()

	start := time.Now()
	err := c.refresh(ctx, params, epoch)
	logging.LogRefresh(c.subject.String(), params.RecordID, params.LineID, time.Since(start), err)
	return err
}

func (c *Controller) refresh(ctx context.Context, params RefreshParams, epoch uint64) error {
	req := c.model.ActionRefresh(params.RecordID)

	var result RefreshResult
	if err := c.opts.Transport.Call(ctx, req.Route, req.Params, &result); err != nil {
		return fmt.Errorf("refresh %s: %w", c.subject, err)
	}
	if err := c.model.RefreshCache(ctx, result.Data.Records); err != nil {
		return fmt.Errorf("refresh %s: merge records: %w", c.subject, err)
	}

	c.mu.Lock()
	if c.opts.ResetFilterOnRefresh {
		c.state.filter = NoFilter()
		c.state.searchPending = false
		c.searchSeq++
	}
	stale := c.navEpoch != epoch
	c.mu.Unlock()

	if stale {
		logging.Info("Refresh finished after navigation, keeping current view",
			zap.String("subject", c.subject.String()),
			zap.Int64("line_id", params.LineID),
		)
		c.publish()
		return nil
	}
	return c.backToLines(ctx, params.LineID, "refresh", &epoch)
}
