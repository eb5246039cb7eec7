package barcode

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/session"
)

// LineForm holds the values entered on the product screen.
type LineForm struct {
	// Product is a product barcode. It is required for new lines and
	// ignored when editing an existing one.
	Product  string
	Quantity float64
}

// LineFormValues returns the line a form edits, for prefilling. It reports
// false for a new line.
func (m *RemoteModel) LineFormValues(params session.LineParams) (session.Line, bool) {
	if params.CurrentID == 0 {
		return session.Line{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.cache.lineByID(params.CurrentID)
	if e == nil {
		return session.Line{}, false
	}
	return m.cache.toLine(e), true
}

// SaveLineForm writes the edited line, or creates one from the form's
// product and the defaults in params.Context. It returns the saved record
// id.
func (m *RemoteModel) SaveLineForm(ctx context.Context, params session.LineParams, form LineForm) (int64, error) {
	if form.Quantity < 0 {
		return 0, session.NewUserError("The quantity cannot be negative.")
	}
	model := params.ResModel
	if model == "" {
		model = m.kind.lineModel
	}

	if params.CurrentID != 0 {
		var ok bool
		vals := map[string]any{m.kind.qtyField: form.Quantity}
		if err := m.callModel(ctx, model, "write", []any{[]int64{params.CurrentID}, vals}, params.Context, &ok); err != nil {
			return 0, fmt.Errorf("save line %d: %w", params.CurrentID, err)
		}
		logging.Debug("Line saved from form",
			zap.String("subject", m.subject.String()),
			zap.Int64("line_id", params.CurrentID),
			zap.Float64("quantity", form.Quantity),
		)
		return params.CurrentID, nil
	}

	code := strings.TrimSpace(form.Product)
	if code == "" {
		return 0, session.NewUserError("Scan or type a product barcode.")
	}
	productID, err := m.productForForm(ctx, code)
	if err != nil {
		return 0, err
	}

	vals := map[string]any{"product_id": productID, m.kind.qtyField: form.Quantity}
	for k, v := range params.Context {
		if field, ok := strings.CutPrefix(k, "default_"); ok {
			vals[field] = v
		}
	}
	var id int64
	if err := m.callModel(ctx, model, "create", []any{vals}, params.Context, &id); err != nil {
		return 0, fmt.Errorf("create line: %w", err)
	}
	logging.Debug("Line created from form",
		zap.String("subject", m.subject.String()),
		zap.Int64("line_id", id),
		zap.Int64("product_id", productID),
	)
	return id, nil
}

func (m *RemoteModel) productForForm(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	id, ok := m.cache.productByBarcode[code]
	m.mu.Unlock()
	if ok {
		return id, nil
	}
	if err := m.fetch(ctx, code); err != nil {
		return 0, err
	}
	m.mu.Lock()
	id, ok = m.cache.productByBarcode[code]
	m.mu.Unlock()
	if !ok {
		return 0, &session.UserError{
			Message: fmt.Sprintf("No product has the barcode %s.", code),
			Err:     ErrUnknownBarcode,
		}
	}
	return id, nil
}

// DeleteLine removes a persisted line on the backend and asks the session
// to reload.
func (m *RemoteModel) DeleteLine(ctx context.Context, id int64) error {
	if id == 0 {
		return session.NewUserError("This line is not saved yet.")
	}
	var ok bool
	if err := m.callModel(ctx, m.kind.lineModel, "unlink", []any{[]int64{id}}, nil, &ok); err != nil {
		return fmt.Errorf("delete line %d: %w", id, err)
	}

	m.mu.Lock()
	kept := m.cache.lines[:0]
	for _, e := range m.cache.lines {
		if e.rec.ID == id {
			delete(m.dirty, e.key())
			continue
		}
		kept = append(kept, e)
	}
	m.cache.lines = kept
	m.mu.Unlock()

	logging.Debug("Line deleted", zap.String("subject", m.subject.String()), zap.Int64("line_id", id))
	m.publish(session.Event{Kind: session.EventRefresh, Refresh: &session.RefreshParams{}})
	return nil
}

func (m *RemoteModel) callModel(ctx context.Context, model, method string, args []any, kwctx map[string]any, out any) error {
	kwargs := map[string]any{}
	if len(kwctx) > 0 {
		kwargs["context"] = kwctx
	}
	params := map[string]any{
		"model":  model,
		"method": method,
		"args":   args,
		"kwargs": kwargs,
	}
	return m.transport.Call(ctx, routeCallKW+model+"/"+method, params, out)
}
