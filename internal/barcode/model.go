package barcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/session"
)

// Backend routes used by the models.
const (
	RouteBarcodeData     = session.RouteBarcodeData
	RouteSpecificBarcode = "/stock_barcode/get_specific_barcode_data"
	RouteSaveBarcodeData = "/stock_barcode/save_barcode_data"
	routeCallKW          = "/web/dataset/call_kw/"
)

// ErrUnknownBarcode is returned when a code matches no cached or remote
// record.
var ErrUnknownBarcode = errors.New("unknown barcode")

// kind describes how one subject type maps onto the backend.
type kind struct {
	subjectModel   string
	lineModel      string
	writeField     string
	qtyField       string
	validateMethod string
	groupByMove    bool
}

var (
	pickingKind = kind{
		subjectModel:   ModelPicking,
		lineModel:      ModelMoveLine,
		writeField:     "move_line_ids",
		qtyField:       "qty_done",
		validateMethod: "button_validate",
		groupByMove:    true,
	}
	quantKind = kind{
		subjectModel:   ModelQuant,
		lineModel:      ModelQuant,
		writeField:     "quant_ids",
		qtyField:       "inventory_quantity",
		validateMethod: "action_apply_all",
	}
)

// RemoteModel keeps the session's records in memory and applies scans to
// them. Changes are pushed to the backend on Save. All cache mutations are
// serialised by mu and bus events are published after it is released.
type RemoteModel struct {
	kind      kind
	subject   session.Subject
	bus       *session.Bus
	transport session.Transport
	newID     func() string

	mu         sync.Mutex
	cache      *cache
	lineViewID int64
	location   int64 // current source location
	dirty      map[string]uint64
	rev        uint64
}

func newRemoteModel(k kind, subject session.Subject, bus *session.Bus, transport session.Transport) (*RemoteModel, error) {
	if transport == nil {
		return nil, session.ErrNoTransport
	}
	return &RemoteModel{
		kind:      k,
		subject:   subject,
		bus:       bus,
		transport: transport,
		newID:     newVirtualID,
		cache:     newCache(k.lineModel, subject.ResID),
		dirty:     make(map[string]uint64),
	}, nil
}

// SetData replaces the cache with the initial payload.
func (m *RemoteModel) SetData(payload session.Payload) error {
	var data payloadData
	if len(payload.Data) > 0 {
		if err := json.Unmarshal(payload.Data, &data); err != nil {
			return fmt.Errorf("decode barcode data: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := newCache(m.kind.lineModel, m.subject.ResID)
	if err := c.merge(data.Records, false, nil); err != nil {
		return err
	}
	if m.kind.subjectModel == ModelPicking && c.picking == nil {
		return fmt.Errorf("%s %d missing from barcode data", ModelPicking, m.subject.ResID)
	}
	m.cache = c
	m.lineViewID = data.LineViewID
	m.dirty = make(map[string]uint64)
	m.location = 0
	if c.picking != nil {
		m.location = c.picking.Location.ID
	}

	logging.Debug("Barcode data loaded",
		zap.String("subject", m.subject.String()),
		zap.Int("lines", len(c.lines)),
		zap.Int("products", len(c.products)),
	)
	return nil
}

// GroupedLines returns the lines for display. Move lines of the same stock
// move are grouped under a header summing their quantities.
func (m *RemoteModel) GroupedLines() []session.GroupedLine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.kind.groupByMove {
		out := make([]session.GroupedLine, 0, len(m.cache.lines))
		for _, e := range m.cache.lines {
			out = append(out, session.Leaf(m.cache.toLine(e)))
		}
		return out
	}

	byMove := make(map[int64][]*entry)
	for _, e := range m.cache.lines {
		if id := e.rec.Move.ID; id != 0 {
			byMove[id] = append(byMove[id], e)
		}
	}

	out := make([]session.GroupedLine, 0, len(m.cache.lines))
	emitted := make(map[int64]bool)
	for _, e := range m.cache.lines {
		moveID := e.rec.Move.ID
		members := byMove[moveID]
		if moveID == 0 || len(members) < 2 {
			out = append(out, session.Leaf(m.cache.toLine(e)))
			continue
		}
		if emitted[moveID] {
			continue
		}
		emitted[moveID] = true

		sub := make([]session.Line, 0, len(members))
		for _, member := range members {
			sub = append(sub, m.cache.toLine(member))
		}
		header := sub[0]
		header.ID = 0
		header.VirtualID = fmt.Sprintf("move-%d", moveID)
		header.Lot = ""
		header.Highlighted = false
		header.Quantity, header.QtyDone = 0, 0
		for _, l := range sub {
			header.Quantity += l.Quantity
			header.QtyDone += l.QtyDone
		}
		out = append(out, session.NewGroup(header, sub))
	}
	return out
}

// PageLines returns every line, ungrouped.
func (m *RemoteModel) PageLines() []session.Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.Line, 0, len(m.cache.lines))
	for _, e := range m.cache.lines {
		out = append(out, m.cache.toLine(e))
	}
	return out
}

// PackageLines lists the packages the lines go to or come from.
func (m *RemoteModel) PackageLines() []session.PackageLine {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := make(map[int64]int)
	var out []session.PackageLine
	for _, e := range m.cache.lines {
		line := m.cache.toLine(e)
		if line.PackageID == 0 {
			continue
		}
		i, ok := index[line.PackageID]
		if !ok {
			i = len(out)
			index[line.PackageID] = i
			loc := line.LocationDest
			if m.kind.lineModel == ModelQuant || e.rec.ResultPackage.ID == 0 {
				loc = line.Location
			}
			out = append(out, session.PackageLine{ID: line.PackageID, Name: line.PackageName, Location: loc})
		}
		out[i].Lines = append(out[i].Lines, line)
	}
	return out
}

// CanBeProcessed is false once the transfer is done or cancelled.
func (m *RemoteModel) CanBeProcessed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.cache.picking; p != nil {
		return p.State != "done" && p.State != "cancel"
	}
	return true
}

// HighlightValidateButton reports whether the work looks complete: every
// reserved move line is fully processed, or for counts, something was
// counted.
func (m *RemoteModel) HighlightValidateButton() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.cache.lines) == 0 {
		return false
	}
	if m.kind.lineModel == ModelQuant {
		for _, e := range m.cache.lines {
			if e.rec.Counted > 0 {
				return true
			}
		}
		return false
	}
	for _, e := range m.cache.lines {
		if e.rec.Quantity > 0 && e.rec.QtyDone < e.rec.Quantity {
			return false
		}
	}
	return true
}

// HasNote reports whether the transfer carries a note.
func (m *RemoteModel) HasNote() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.picking != nil && m.cache.picking.Note != ""
}

// LineModel returns the backend model of the lines.
func (m *RemoteModel) LineModel() string {
	return m.kind.lineModel
}

// LineFormViewID returns the form view used to edit a line.
func (m *RemoteModel) LineFormViewID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lineViewID
}

// CleanBarcode normalises manual input.
func (m *RemoteModel) CleanBarcode(code string) string {
	return Clean(code)
}

// BeforeQuit pushes unsaved changes.
func (m *RemoteModel) BeforeQuit(ctx context.Context) error {
	return m.Save(ctx)
}

// ActionRefresh returns the request that reloads the whole session.
func (m *RemoteModel) ActionRefresh(recordID int64) session.RefreshRequest {
	resID := any(false)
	if m.subject.ResID != 0 {
		resID = m.subject.ResID
	}
	return session.RefreshRequest{
		Route: RouteBarcodeData,
		Params: map[string]any{
			"model":     m.subject.ResModel,
			"res_id":    resID,
			"record_id": recordID,
		},
	}
}

// RefreshCache merges reloaded records. Lines holding unsaved changes keep
// their local values; other persisted lines the backend no longer returns
// are dropped.
func (m *RemoteModel) RefreshCache(ctx context.Context, records session.Records) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.merge(records, true, m.isDirty)
}

// DisplayBarcodeLines highlights lineID when it is set.
func (m *RemoteModel) DisplayBarcodeLines(ctx context.Context, lineID int64) error {
	if lineID == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.cache.lineByID(lineID); e != nil {
		m.cache.highlight(e)
	}
	return nil
}

// EditedLineParams describes the form that edits line.
func (m *RemoteModel) EditedLineParams(line session.Line) session.LineParams {
	return session.LineParams{
		CurrentID: line.ID,
		ResModel:  m.kind.lineModel,
		ViewID:    m.LineFormViewID(),
		Context:   m.NewLineContext(),
	}
}

// NewLineContext returns the defaults for a line created from a form.
func (m *RemoteModel) NewLineContext() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := map[string]any{}
	if m.location != 0 {
		ctx["default_location_id"] = m.location
	}
	if p := m.cache.picking; p != nil {
		ctx["default_picking_id"] = p.ID
		ctx["default_location_dest_id"] = p.LocationDest.ID
	}
	if m.kind.lineModel == ModelQuant {
		ctx["inventory_mode"] = true
	}
	return ctx
}

// FindLineForCurrentLocation returns the first line at the scanned location.
func (m *RemoteModel) FindLineForCurrentLocation() (session.Line, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.location == 0 {
		return session.Line{}, false
	}
	for _, e := range m.cache.lines {
		if e.rec.Location.ID == m.location {
			return m.cache.toLine(e), true
		}
	}
	return session.Line{}, false
}

// isDirty reports whether e has unsaved changes. Callers hold mu.
func (m *RemoteModel) isDirty(e *entry) bool {
	_, ok := m.dirty[e.key()]
	return ok
}

func (m *RemoteModel) markDirty(e *entry) {
	m.rev++
	m.dirty[e.key()] = m.rev
}

func (m *RemoteModel) callKW(ctx context.Context, method string, args []any, out any) error {
	params := map[string]any{
		"model":  m.kind.subjectModel,
		"method": method,
		"args":   args,
		"kwargs": map[string]any{},
	}
	return m.transport.Call(ctx, routeCallKW+m.kind.subjectModel+"/"+method, params, out)
}

// publish sends events in order. Callers must not hold mu.
func (m *RemoteModel) publish(events ...session.Event) {
	for _, ev := range events {
		m.bus.Publish(ev)
	}
}
