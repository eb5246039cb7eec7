package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
)

// OpenActions shows the actions menu.
func (c *Controller) OpenActions(ctx context.Context) error {
	return c.enter(ViewActionsMenu, "open_actions", nil)
}

// OpenPackage shows the detail of one package.
func (c *Controller) OpenPackage(ctx context.Context, packageID int64) error {
	return c.enter(ViewPackageDetail, "open_package", func(s *viewState) {
		s.inspectedPackage = packageID
	})
}

// OpenInformation saves pending edits and shows the record's info form.
func (c *Controller) OpenInformation(ctx context.Context) error {
	return c.enterAfterSave(ctx, ViewInfoForm, "open_information", func() func(*viewState) {
		return nil
	})
}

// OpenProductPage saves pending edits and opens the product screen, for line
// when given or for a new line otherwise. A line that was not persisted when
// the caller captured it is looked up again by its virtual id.
func (c *Controller) OpenProductPage(ctx context.Context, line *Line) error {
	return c.enterAfterSave(ctx, ViewProductDetail, "open_product", func() func(*viewState) {
		params := c.editParams(line)
		return func(s *viewState) { s.editedLine = &params }
	})
}

func (c *Controller) editParams(line *Line) LineParams {
	if line == nil {
		return LineParams{
			ResModel: c.model.LineModel(),
			ViewID:   c.model.LineFormViewID(),
			Context:  c.model.NewLineContext(),
		}
	}

	target := *line
	if target.ID == 0 && target.VirtualID != "" {
		found := false
		for _, l := range c.model.PageLines() {
			if l.VirtualID == target.VirtualID {
				target, found = l, true
				break
			}
		}
		if !found {
			logging.Warn("Edited line not found by virtual id",
				zap.String("subject", c.subject.String()),
				zap.String("virtual_id", target.VirtualID),
			)
		}
	}
	return c.model.EditedLineParams(target)
}

// BackToLines returns to the line list from any screen, highlighting lineID
// when it is not zero.
func (c *Controller) BackToLines(ctx context.Context, lineID int64) error {
	return c.backToLines(ctx, lineID, "back", nil)
}

// Exit leaves the session from the line list and goes back one screen from
// anywhere else.
func (c *Controller) Exit(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.currentView() != ViewLineList {
		return c.backToLines(ctx, 0, "exit", nil)
	}
	if err := c.model.BeforeQuit(ctx); err != nil {
		return fmt.Errorf("leave %s: %w", c.subject, err)
	}
	logging.LogTransition(c.subject.String(), ViewLineList.String(), "caller", "exit")
	c.host.HistoryBack()
	return nil
}

// SaveFormView runs the refresh cycle after a form saved record.
func (c *Controller) SaveFormView(ctx context.Context, record FormRecord) error {
	c.mu.Lock()
	edited := c.state.editedLine
	c.mu.Unlock()

	lineID := record.ResID
	if lineID == 0 && edited != nil {
		lineID = edited.CurrentID
	}
	var recordID int64
	if record.ResModel == c.subject.ResModel {
		recordID = lineID
	}
	return c.Refresh(ctx, RefreshParams{RecordID: recordID, LineID: lineID})
}

// DiscardFormView abandons the form and returns to the line list.
func (c *Controller) DiscardFormView(ctx context.Context) error {
	return c.backToLines(ctx, 0, "discard", nil)
}

// Validate asks the model to validate the record.
func (c *Controller) Validate(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.model.Validate(ctx)
}

// PutInPack puts the current lines in a package when the model supports it.
func (c *Controller) PutInPack(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	p, ok := c.model.(Packer)
	if !ok {
		return fmt.Errorf("put in pack on %s: %w", c.subject.ResModel, ErrUnsupported)
	}
	return p.PutInPack(ctx)
}

// ReturnProducts starts a return of the subject's products when the model
// supports it. The return dialog arrives as a process-action event.
func (c *Controller) ReturnProducts(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	r, ok := c.model.(Returner)
	if !ok {
		return fmt.Errorf("return products on %s: %w", c.subject.ResModel, ErrUnsupported)
	}
	return r.ReturnProducts(ctx)
}

// Cancel saves, asks the backend for the cancellation action and runs it.
// When the operator confirms, the session is left.
func (c *Controller) Cancel(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.opts.Transport == nil {
		return ErrNoTransport
	}
	if err := c.model.Save(ctx); err != nil {
		return fmt.Errorf("save before cancel: %w", err)
	}

	var action Action
	if err := callKW(ctx, c.opts.Transport, c.subject.ResModel, "action_cancel_from_barcode",
		[]any{[]int64{c.subject.ResID}}, &action); err != nil {
		return fmt.Errorf("cancel %s: %w", c.subject, err)
	}

	result, err := c.host.RunAction(ctx, action)
	if err != nil {
		return fmt.Errorf("cancel %s: %w", c.subject, err)
	}
	if !result.Cancelled {
		return nil
	}

	level, msg := NoticeInfo, MsgCancelled
	if cn, ok := c.model.(CancelNotifier); ok {
		level, msg = cn.CancelNotification()
	}
	c.host.Notify(level, msg)
	c.host.HistoryBack()
	return nil
}

// enter switches from the line list to to without a save.
func (c *Controller) enter(to View, reason string, mutate func(*viewState)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	from := c.state.view
	if from != ViewLineList {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.state.view = to
	c.navEpoch++
	if mutate != nil {
		mutate(&c.state)
	}
	c.mu.Unlock()

	logging.LogTransition(c.subject.String(), from.String(), to.String(), reason)
	c.publish()
	return nil
}

// enterAfterSave saves the model and then switches to to. A failed save
// leaves the view unchanged and is returned. prepare runs after the save so
// it sees the persisted lines.
func (c *Controller) enterAfterSave(ctx context.Context, to View, reason string, prepare func() func(*viewState)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	from := c.state.view
	if from != ViewLineList {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	epoch := c.navEpoch
	c.mu.Unlock()

	if err := c.model.Save(ctx); err != nil {
		logging.Warn("Save failed, staying on current view",
			zap.String("subject", c.subject.String()),
			zap.String("target", to.String()),
			zap.Error(err),
		)
		return fmt.Errorf("save before %s: %w", to, err)
	}
	mutate := prepare()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.navEpoch != epoch || c.state.view != ViewLineList {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSuperseded, to)
	}
	c.state.view = to
	c.navEpoch++
	if mutate != nil {
		mutate(&c.state)
	}
	c.mu.Unlock()

	logging.LogTransition(c.subject.String(), from.String(), to.String(), reason)
	c.publish()
	return nil
}

// backToLines re-derives the line list from the model and clears edit
// context. Operator navigations (since == nil) move the epoch. A refresh
// passes the epoch it started at and only switches the view if no operator
// navigation happened since; otherwise the new data is published in place.
func (c *Controller) backToLines(ctx context.Context, lineID int64, reason string, since *uint64) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.model.DisplayBarcodeLines(ctx, lineID); err != nil {
		return fmt.Errorf("show lines: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if since != nil && c.navEpoch != *since {
		c.mu.Unlock()
		logging.Info("Operator navigated during refresh, keeping current view",
			zap.String("subject", c.subject.String()),
			zap.Int64("line_id", lineID),
		)
		c.publish()
		return nil
	}
	from := c.state.view
	c.state.view = ViewLineList
	c.state.editedLine = nil
	c.state.inspectedPackage = 0
	if since == nil {
		c.navEpoch++
	}
	c.mu.Unlock()

	logging.LogTransition(c.subject.String(), from.String(), ViewLineList.String(), reason)
	c.publish()
	return nil
}
