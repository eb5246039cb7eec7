package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

type fakeModel struct {
	bus *Bus

	mu         sync.Mutex
	lines      []GroupedLine
	packages   []PackageLine
	pageLines  []Line
	canProcess bool
	note       bool

	processErr   error
	processGate  map[string]chan struct{}
	processed    []string
	saveErr      error
	saves        int
	quitErr      error
	quits        int
	validations  int
	displayed    []int64
	displayGate  chan struct{}
	displaying   chan struct{}
	refreshed    []Records
	payloads     []Payload
	panicOnLines bool
}

func newFakeModel(bus *Bus) *fakeModel {
	return &fakeModel{bus: bus, canProcess: true, processGate: map[string]chan struct{}{}}
}

func (m *fakeModel) SetData(p Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, p)
	return nil
}

func (m *fakeModel) GroupedLines() []GroupedLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnLines {
		panic("corrupt cache")
	}
	return append([]GroupedLine(nil), m.lines...)
}

func (m *fakeModel) setLines(lines ...GroupedLine) {
	m.mu.Lock()
	m.lines = lines
	m.mu.Unlock()
}

func (m *fakeModel) PackageLines() []PackageLine { return m.packages }
func (m *fakeModel) PageLines() []Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageLines
}
func (m *fakeModel) CanBeProcessed() bool          { return m.canProcess }
func (m *fakeModel) HighlightValidateButton() bool { return false }
func (m *fakeModel) HasNote() bool                 { return m.note }
func (m *fakeModel) LineModel() string             { return "stock.move.line" }
func (m *fakeModel) LineFormViewID() int64         { return 42 }

// ProcessBarcode appends a leaf line for the scanned product id (the code
// itself) and publishes an update, like a real model would.
func (m *fakeModel) ProcessBarcode(ctx context.Context, code string) error {
	m.mu.Lock()
	gate := m.processGate[code]
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	m.processed = append(m.processed, code)
	if m.processErr != nil {
		err := m.processErr
		m.mu.Unlock()
		return err
	}
	m.lines = append(m.lines, Leaf(Line{ID: int64(len(m.lines) + 100), Product: 7}))
	m.mu.Unlock()

	m.bus.Publish(Event{Kind: EventUpdate})
	return nil
}

func (m *fakeModel) CleanBarcode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (m *fakeModel) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return m.saveErr
}

func (m *fakeModel) Validate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations++
	return nil
}

func (m *fakeModel) BeforeQuit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quits++
	return m.quitErr
}

func (m *fakeModel) ActionRefresh(recordID int64) RefreshRequest {
	return RefreshRequest{Route: "/stock_barcode/get_barcode_data", Params: map[string]any{"res_id": recordID}}
}

func (m *fakeModel) RefreshCache(ctx context.Context, records Records) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = append(m.refreshed, records)
	return nil
}

func (m *fakeModel) DisplayBarcodeLines(ctx context.Context, lineID int64) error {
	m.mu.Lock()
	gate, entered := m.displayGate, m.displaying
	m.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.displayed = append(m.displayed, lineID)
	return nil
}

func (m *fakeModel) EditedLineParams(line Line) LineParams {
	return LineParams{CurrentID: line.ID, ResModel: "stock.move.line"}
}

func (m *fakeModel) NewLineContext() map[string]any {
	return map[string]any{"default_picking_id": 1}
}

type notice struct {
	level NoticeLevel
	msg   string
}

type fakeHost struct {
	mu          sync.Mutex
	notices     []notice
	sounds      []string
	flashes     int
	backs       int
	vibrations  []time.Duration
	actions     []Action
	actionResFn func(Action) (ActionResult, error)
}

func (h *fakeHost) Notify(level NoticeLevel, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notices = append(h.notices, notice{level, msg})
}

func (h *fakeHost) PlaySound(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sounds = append(h.sounds, name)
}

func (h *fakeHost) Flash() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flashes++
}

func (h *fakeHost) HistoryBack() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backs++
}

func (h *fakeHost) Vibrate(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vibrations = append(h.vibrations, d)
}

func (h *fakeHost) RunAction(ctx context.Context, a Action) (ActionResult, error) {
	h.mu.Lock()
	h.actions = append(h.actions, a)
	fn := h.actionResFn
	h.mu.Unlock()
	if fn != nil {
		return fn(a)
	}
	return ActionResult{}, nil
}

func (h *fakeHost) lastNotice() notice {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.notices) == 0 {
		return notice{}
	}
	return h.notices[len(h.notices)-1]
}

func (h *fakeHost) noticeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notices)
}

// fakeTransport answers routes with canned results encoded through JSON.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(params any) (any, error)
	calls    []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string]func(any) (any, error){}}
}

func (t *fakeTransport) handle(route string, fn func(params any) (any, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[route] = fn
}

func (t *fakeTransport) Call(ctx context.Context, route string, params any, out any) error {
	t.mu.Lock()
	t.calls = append(t.calls, route)
	fn := t.handlers[route]
	t.mu.Unlock()

	if fn == nil {
		return errors.New("no handler for " + route)
	}
	res, err := fn(params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (t *fakeTransport) callCount(route string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.calls {
		if r == route {
			n++
		}
	}
	return n
}

type harness struct {
	ctrl      *Controller
	model     *fakeModel
	host      *fakeHost
	transport *fakeTransport
}

func pickingSubject() Subject {
	return Subject{ResModel: "stock.picking", ResID: 1}
}

func newHarness(opts Options) (*harness, error) {
	h := &harness{host: &fakeHost{}, transport: newFakeTransport()}
	opts.Factories = ModelFactories{
		"stock.picking": func(s Subject, bus *Bus, tr Transport) (Model, error) {
			h.model = newFakeModel(bus)
			return h.model, nil
		},
	}
	if opts.Transport == nil {
		opts.Transport = h.transport
	}
	h.transport.handle(RouteBarcodeData, func(any) (any, error) {
		return map[string]any{"data": map[string]any{"records": map[string]any{}}, "config": map[string]any{}}, nil
	})

	ctrl, err := New(pickingSubject(), h.host, opts)
	if err != nil {
		return nil, err
	}
	h.ctrl = ctrl
	return h, nil
}
