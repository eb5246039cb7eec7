package barcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/session"
)

// Save pushes locally modified lines to the backend. Lines scanned again
// while the save was in flight stay dirty.
func (m *RemoteModel) Save(ctx context.Context) error {
	m.mu.Lock()
	if len(m.dirty) == 0 {
		m.mu.Unlock()
		return nil
	}
	sent := make(map[string]uint64, len(m.dirty))
	var commands []any
	for _, e := range m.cache.lines {
		rev, ok := m.dirty[e.key()]
		if !ok {
			continue
		}
		sent[e.key()] = rev
		vals := m.writeVals(e)
		if e.rec.ID == 0 {
			commands = append(commands, []any{0, 0, vals})
		} else {
			commands = append(commands, []any{1, e.rec.ID, vals})
		}
	}
	m.mu.Unlock()

	resID := any(false)
	if m.subject.ResID != 0 {
		resID = m.subject.ResID
	}
	params := map[string]any{
		"model":       m.kind.subjectModel,
		"res_id":      resID,
		"write_field": m.kind.writeField,
		"write_vals":  commands,
	}
	var records session.Records
	if err := m.transport.Call(ctx, RouteSaveBarcodeData, params, &records); err != nil {
		return fmt.Errorf("save %s: %w", m.subject, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rev := range sent {
		if m.dirty[key] == rev {
			delete(m.dirty, key)
		}
	}
	// Lines still dirty were scanned again while the save was in flight;
	// the echoed values are older than theirs.
	if err := m.cache.merge(records, false, m.isDirty); err != nil {
		return err
	}
	logging.Debug("Saved barcode lines",
		zap.String("subject", m.subject.String()),
		zap.Int("lines", len(commands)),
	)
	return nil
}

func (m *RemoteModel) writeVals(e *entry) map[string]any {
	rec := e.rec
	vals := map[string]any{
		"product_id":    rec.Product,
		"location_id":   rec.Location,
		"lot_id":        rec.Lot,
		m.kind.qtyField: m.done(e),
	}
	if e.virtualID != "" {
		vals["dummy_id"] = e.virtualID
	}
	if m.kind.lineModel == ModelMoveLine {
		vals["picking_id"] = rec.Picking
		vals["location_dest_id"] = rec.LocationDest
		vals["result_package_id"] = rec.ResultPackage
	} else {
		vals["package_id"] = rec.Package
	}
	return vals
}

// Validate saves and asks the backend to validate the subject. An action
// returned by the backend (a backorder wizard, say) is handed to the host;
// otherwise the session is left.
func (m *RemoteModel) Validate(ctx context.Context) error {
	if err := m.Save(ctx); err != nil {
		return err
	}

	args := []any{[]int64{m.subject.ResID}}
	if m.kind.lineModel == ModelQuant {
		args = []any{m.countedIDs()}
	}
	var result json.RawMessage
	if err := m.callKW(ctx, m.kind.validateMethod, args, &result); err != nil {
		return fmt.Errorf("validate %s: %w", m.subject, err)
	}

	if action, ok := decodeAction(result); ok {
		m.publish(session.Event{Kind: session.EventProcessAction, Action: action})
		return nil
	}
	logging.Info("Validated", zap.String("subject", m.subject.String()))
	m.publish(
		session.Event{Kind: session.EventPlaySound, Sound: session.SoundNotify},
		session.Event{Kind: session.EventHistoryBack},
	)
	return nil
}

func (m *RemoteModel) countedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, e := range m.cache.lines {
		if e.rec.ID != 0 && e.rec.Counted > 0 {
			ids = append(ids, e.rec.ID)
		}
	}
	return ids
}

// decodeAction reports whether a method result is an action descriptor.
func decodeAction(raw json.RawMessage) (session.Action, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var action session.Action
	if err := json.Unmarshal(raw, &action); err != nil || len(action) == 0 {
		return nil, false
	}
	return action, true
}
