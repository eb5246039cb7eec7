package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mhma/stockbarcode/internal/barcode"
	"github.com/mhma/stockbarcode/internal/session"
)

type fakeSession struct {
	mu     sync.Mutex
	calls  []string
	snap   session.Snapshot
	scroll *session.ScrollSynchronizer
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		scroll: session.NewScrollSynchronizer(session.NewLayoutRegistry(), nil, scrollThreshold),
	}
}

func (f *fakeSession) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return nil
}

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSession) Start(ctx context.Context) error { return f.record("start") }
func (f *fakeSession) Subscribe(fn func(session.Snapshot)) func() {
	return func() {}
}
func (f *fakeSession) Snapshot() session.Snapshot          { return f.snap }
func (f *fakeSession) Scroll() *session.ScrollSynchronizer { return f.scroll }
func (f *fakeSession) Model() session.Model                { return nil }
func (f *fakeSession) HandleScan(ctx context.Context, code string) {
	_ = f.record("scan %s", code)
}
func (f *fakeSession) HandleManualScan(ctx context.Context, input string) {
	_ = f.record("manual %s", input)
}
func (f *fakeSession) Search(ctx context.Context, term string) error {
	return f.record("search %s", term)
}
func (f *fakeSession) ClearSearch() error                        { return f.record("clear_search") }
func (f *fakeSession) OpenActions(ctx context.Context) error     { return f.record("open_actions") }
func (f *fakeSession) OpenInformation(ctx context.Context) error { return f.record("open_information") }
func (f *fakeSession) OpenPackage(ctx context.Context, id int64) error {
	return f.record("open_package %d", id)
}
func (f *fakeSession) OpenProductPage(ctx context.Context, line *session.Line) error {
	if line == nil {
		return f.record("open_product new")
	}
	return f.record("open_product %s", line.Key())
}
func (f *fakeSession) BackToLines(ctx context.Context, id int64) error {
	return f.record("back %d", id)
}
func (f *fakeSession) Exit(ctx context.Context) error { return f.record("exit") }
func (f *fakeSession) SaveFormView(ctx context.Context, r session.FormRecord) error {
	return f.record("save_form %s %d", r.ResModel, r.ResID)
}
func (f *fakeSession) DiscardFormView(ctx context.Context) error { return f.record("discard") }
func (f *fakeSession) Refresh(ctx context.Context, p session.RefreshParams) error {
	return f.record("refresh")
}
func (f *fakeSession) Validate(ctx context.Context) error  { return f.record("validate") }
func (f *fakeSession) PutInPack(ctx context.Context) error { return f.record("put_in_pack") }
func (f *fakeSession) ReturnProducts(ctx context.Context) error {
	return f.record("return_products")
}
func (f *fakeSession) Cancel(ctx context.Context) error    { return f.record("cancel") }

type fakeEditor struct {
	line  session.Line
	saved []barcode.LineForm
	id    int64
}

func (e *fakeEditor) LineFormValues(params session.LineParams) (session.Line, bool) {
	return e.line, params.CurrentID != 0
}

func (e *fakeEditor) SaveLineForm(ctx context.Context, params session.LineParams, form barcode.LineForm) (int64, error) {
	e.saved = append(e.saved, form)
	return e.id, nil
}

func (e *fakeEditor) DeleteLine(ctx context.Context, id int64) error { return nil }

func newTestApp(t *testing.T, sess *fakeSession) AppModel {
	t.Helper()
	m := NewAppModel(context.Background(), sess, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func update(t *testing.T, m AppModel, msg tea.Msg) (AppModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	app, ok := next.(AppModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return app, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// runOp executes an operation command and feeds its result back.
func runOp(t *testing.T, m AppModel, cmd tea.Cmd) AppModel {
	t.Helper()
	if cmd == nil {
		t.Fatal("Expected a command")
	}
	done, ok := cmd().(opDoneMsg)
	if !ok {
		t.Fatal("Expected an operation result")
	}
	m, _ = update(t, m, done)
	return m
}

func listSnapshot(seq uint64, n, highlighted int) session.Snapshot {
	lines := make([]session.GroupedLine, 0, n)
	for i := 1; i <= n; i++ {
		lines = append(lines, session.Leaf(session.Line{
			ID:          int64(i),
			ProductName: fmt.Sprintf("Product %d", i),
			Quantity:    2,
			UoM:         "Units",
			Location:    "WH/Stock",
			Highlighted: i == highlighted,
		}))
	}
	return session.Snapshot{
		Seq:            seq,
		Subject:        session.Subject{ResModel: barcode.ModelPicking, ResID: 1},
		View:           session.ViewLineList,
		Lines:          lines,
		Counters:       session.Counters{Total: n, Filtered: n},
		CanBeProcessed: true,
	}
}

func TestSnapshotRendersLines(t *testing.T) {
	sess := newFakeSession()
	m := newTestApp(t, sess)
	m, _ = update(t, m, snapshotMsg{snap: listSnapshot(1, 3, 0)})

	view := m.View()
	for _, want := range []string{"Product 1", "Product 3", "0 / 2 Units", "WH/Stock"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}

	reg := sess.scroll.Registry()
	for key, top := range map[string]float64{"1": 0, "2": 2, "3": 4} {
		r, ok := reg.Line(key)
		if !ok {
			t.Fatalf("Line %s not registered", key)
		}
		if r.Top != top || r.Height != lineRows {
			t.Errorf("Line %s: expected top %v height %d, got %+v", key, top, lineRows, r)
		}
	}
	if h, _, content := reg.Viewport(); h != 18 || content != 6 {
		t.Errorf("Unexpected viewport registration: height %v content %v", h, content)
	}
}

func TestEmptyFilterMessage(t *testing.T) {
	m := newTestApp(t, newFakeSession())
	snap := listSnapshot(1, 0, 0)
	snap.Filter = session.MatchNothing("zzz")
	m, _ = update(t, m, snapshotMsg{snap: snap})

	if !strings.Contains(m.View(), `No product matches "zzz"`) {
		t.Error("Expected the no-match message")
	}
}

func TestHighlightedLineScrolls(t *testing.T) {
	sess := newFakeSession()
	m := newTestApp(t, sess)

	// first scroll is immediate
	m, _ = update(t, m, snapshotMsg{snap: listSnapshot(1, 30, 25)})
	if m.viewport.YOffset != 40 {
		t.Fatalf("Expected offset 40, got %d", m.viewport.YOffset)
	}
	if l, _ := m.cursorLine(); l.ID != 25 {
		t.Errorf("Expected cursor on line 25, got %d", l.ID)
	}

	// later scrolls animate towards the target
	m, _ = update(t, m, snapshotMsg{snap: listSnapshot(2, 30, 2)})
	if !m.scrolling || m.scrollTarget != 0 {
		t.Fatalf("Expected an animated scroll to 0, got scrolling=%v target=%d", m.scrolling, m.scrollTarget)
	}
	for i := 0; i < 50 && m.scrolling; i++ {
		m, _ = update(t, m, scrollStepMsg{})
	}
	if m.scrolling || m.viewport.YOffset != 0 {
		t.Errorf("Expected the animation to end at 0, got %d", m.viewport.YOffset)
	}
}

func TestScrollJumpsAfterLeavingLineList(t *testing.T) {
	sess := newFakeSession()
	m := newTestApp(t, sess)

	m, _ = update(t, m, snapshotMsg{snap: listSnapshot(1, 30, 25)})
	if m.viewport.YOffset != 40 {
		t.Fatalf("Expected offset 40, got %d", m.viewport.YOffset)
	}

	menu := listSnapshot(2, 30, 25)
	menu.View = session.ViewActionsMenu
	m, _ = update(t, m, snapshotMsg{snap: menu})
	if got := sess.scroll.Behavior(); got != session.ScrollImmediate {
		t.Fatalf("Expected immediate scrolling after leaving the line list, got %v", got)
	}

	m, _ = update(t, m, snapshotMsg{snap: listSnapshot(3, 30, 2)})
	if m.scrolling {
		t.Fatal("Expected the first scroll back on the line list to jump, not animate")
	}
	if m.viewport.YOffset != 0 {
		t.Errorf("Expected offset 0, got %d", m.viewport.YOffset)
	}
}

func TestWedgeScan(t *testing.T) {
	sess := newFakeSession()
	m := newTestApp(t, sess)

	for _, r := range "4006381" {
		m, _ = update(t, m, runes(string(r)))
	}
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	runOp(t, m, cmd)

	calls := sess.Calls()
	if len(calls) != 1 || calls[0] != "scan 4006381" {
		t.Errorf("Unexpected calls %v", calls)
	}
}

func TestWedgeTimeout(t *testing.T) {
	tests := []struct {
		name  string
		typed string
		want  []string
	}{
		{"command key", "a", []string{"open_actions"}},
		{"validate key", "v", []string{"validate"}},
		{"partial scan discarded", "123", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession()
			m := newTestApp(t, sess)
			for _, r := range tt.typed {
				m, _ = update(t, m, runes(string(r)))
			}
			m, cmd := update(t, m, wedgeTimeoutMsg{gen: m.wedgeGen})
			if cmd != nil {
				runOp(t, m, cmd)
			}
			calls := sess.Calls()
			if len(calls) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, calls)
			}
			for i := range calls {
				if calls[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, calls)
				}
			}
		})
	}
}

func TestStaleWedgeTimeoutIgnored(t *testing.T) {
	sess := newFakeSession()
	m := newTestApp(t, sess)
	m, _ = update(t, m, runes("a"))
	stale := m.wedgeGen
	m, _ = update(t, m, runes("b"))

	_, cmd := update(t, m, wedgeTimeoutMsg{gen: stale})
	if cmd != nil {
		t.Error("Expected no command for a stale timeout")
	}
}

func TestSearch(t *testing.T) {
	sess := newFakeSession()
	m := newTestApp(t, sess)
	m, _ = update(t, m, snapshotMsg{snap: listSnapshot(1, 3, 0)})

	m, _ = update(t, m, runes("/"))
	m, _ = update(t, m, wedgeTimeoutMsg{gen: m.wedgeGen})
	if !m.searching {
		t.Fatal("Expected the search field to open")
	}
	for _, r := range "bolt" {
		m, _ = update(t, m, runes(string(r)))
	}
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	runOp(t, m, cmd)

	if calls := sess.Calls(); len(calls) != 1 || calls[0] != "search bolt" {
		t.Errorf("Unexpected calls %v", calls)
	}
}

func TestOperationErrorsBecomeNotices(t *testing.T) {
	m := newTestApp(t, newFakeSession())
	m, _ = update(t, m, snapshotMsg{snap: listSnapshot(1, 1, 0)})

	m, _ = update(t, m, opDoneMsg{op: "validate", err: session.NewUserError("Nothing to validate.")})
	if !strings.Contains(m.View(), "Nothing to validate.") {
		t.Error("Expected the error notice")
	}

	m, _ = update(t, m, opDoneMsg{op: "scan", err: session.ErrClosed})
	if len(m.notices) != 1 {
		t.Errorf("Expected closed-session errors to be silent, got %d notices", len(m.notices))
	}

	m, _ = update(t, m, noticeExpiredMsg{id: m.notices[0].id})
	if len(m.notices) != 0 {
		t.Error("Expected the notice to expire")
	}
}

func TestConfirmDialog(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"y", true},
		{"n", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m := newTestApp(t, newFakeSession())
			reply := make(chan bool, 1)
			m, _ = update(t, m, confirmMsg{title: "Cancel this transfer?", reply: reply})
			if !strings.Contains(m.View(), "Cancel this transfer?") {
				t.Error("Expected the dialog title")
			}
			m, _ = update(t, m, runes(tt.key))
			if got := <-reply; got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
			if m.confirm != nil {
				t.Error("Expected the dialog to close")
			}
		})
	}
}

func TestClosedSnapshotQuits(t *testing.T) {
	m := newTestApp(t, newFakeSession())
	_, cmd := update(t, m, snapshotMsg{snap: session.Snapshot{Seq: 2, Closed: true}})
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestActionsMenu(t *testing.T) {
	sess := newFakeSession()
	m := newTestApp(t, sess)
	snap := listSnapshot(1, 1, 0)
	snap.View = session.ViewActionsMenu
	m, _ = update(t, m, snapshotMsg{snap: snap})

	view := m.View()
	for _, want := range []string{"Validate", "Put in pack", "Return products", "Cancel transfer", "Add product"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected menu entry %q", want)
		}
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = runOp(t, m, cmd)
	if calls := sess.Calls(); len(calls) != 1 || calls[0] != "put_in_pack" {
		t.Errorf("Unexpected calls %v", calls)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	runOp(t, m, cmd)
	if calls := sess.Calls(); len(calls) != 2 || calls[1] != "return_products" {
		t.Errorf("Unexpected calls %v", calls)
	}
}

func TestProductFormSavesEditedLine(t *testing.T) {
	sess := newFakeSession()
	m := newTestApp(t, sess)
	editor := &fakeEditor{line: session.Line{ID: 31, ProductName: "Bolt", QtyDone: 2}, id: 31}
	m.editor = editor

	snap := listSnapshot(1, 1, 0)
	snap.View = session.ViewProductDetail
	snap.EditedLine = &session.LineParams{CurrentID: 31, ResModel: "stock.move.line"}
	m, _ = update(t, m, snapshotMsg{snap: snap})

	if got := m.fields[1].Value(); got != "2" {
		t.Fatalf("Expected the quantity prefilled with 2, got %q", got)
	}
	m.fields[1].SetValue("5")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	runOp(t, m, cmd)

	if len(editor.saved) != 1 || editor.saved[0].Quantity != 5 || editor.saved[0].Product != "" {
		t.Errorf("Unexpected saved forms %+v", editor.saved)
	}
	if calls := sess.Calls(); len(calls) != 1 || calls[0] != "save_form stock.move.line 31" {
		t.Errorf("Unexpected calls %v", calls)
	}
}

func TestProductFormRejectsBadQuantity(t *testing.T) {
	sess := newFakeSession()
	m := newTestApp(t, sess)
	snap := listSnapshot(1, 1, 0)
	snap.View = session.ViewProductDetail
	snap.EditedLine = &session.LineParams{ResModel: "stock.move.line"}
	m, _ = update(t, m, snapshotMsg{snap: snap})

	m.fields[1].SetValue("lots")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})

	if len(sess.Calls()) != 0 {
		t.Errorf("Expected no session call, got %v", sess.Calls())
	}
	if !strings.Contains(m.View(), "The quantity must be a number.") {
		t.Error("Expected a quantity notice")
	}
}
