package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/barcode"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/session"
	"github.com/mhma/stockbarcode/internal/ui"
)

// Session is the part of the session controller the program drives.
type Session interface {
	Start(ctx context.Context) error
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
	Snapshot() session.Snapshot
	Scroll() *session.ScrollSynchronizer
	Model() session.Model

	HandleScan(ctx context.Context, barcode string)
	HandleManualScan(ctx context.Context, input string)
	Search(ctx context.Context, term string) error
	ClearSearch() error

	OpenActions(ctx context.Context) error
	OpenPackage(ctx context.Context, packageID int64) error
	OpenInformation(ctx context.Context) error
	OpenProductPage(ctx context.Context, line *session.Line) error
	BackToLines(ctx context.Context, lineID int64) error
	Exit(ctx context.Context) error
	SaveFormView(ctx context.Context, record session.FormRecord) error
	DiscardFormView(ctx context.Context) error
	Refresh(ctx context.Context, params session.RefreshParams) error

	Validate(ctx context.Context) error
	PutInPack(ctx context.Context) error
	ReturnProducts(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// LineEditor is implemented by models whose lines can be edited from the
// product screen.
type LineEditor interface {
	LineFormValues(params session.LineParams) (session.Line, bool)
	SaveLineForm(ctx context.Context, params session.LineParams, form barcode.LineForm) (int64, error)
	DeleteLine(ctx context.Context, id int64) error
}

const (
	// A keyboard wedge types a barcode faster than this between keys.
	wedgeTimeout  = 60 * time.Millisecond
	noticeTimeout = 4 * time.Second
	flashDuration = 150 * time.Millisecond
	scrollFrame   = 16 * time.Millisecond

	maxNotices = 2
	// Rows taken by the borders, header, footer, counters and notices.
	chromeRows = 12
)

// Internal messages
type (
	opDoneMsg struct {
		op  string
		err error
	}
	bridgeScanMsg struct {
		barcode string
	}
	bridgeClosedMsg  struct{}
	noticeExpiredMsg struct{ id int }
	flashEndMsg      struct{}
	wedgeTimeoutMsg  struct{ gen int }
	scrollStepMsg    struct{}
)

type notice struct {
	id      int
	level   session.NoticeLevel
	message string
}

type menuItem struct {
	label string
	run   func(ctx context.Context) error
}

// AppModel is the terminal program for one barcode session.
type AppModel struct {
	ctx    context.Context
	sess   Session
	editor LineEditor
	box    *mailbox
	unsub  func()
	scans  <-chan string

	snap   session.Snapshot
	width  int
	height int

	viewport viewport.Model
	layout   lineLayout
	cursor   int

	// scanner keyboard wedge
	wedge    []rune
	wedgeGen int

	search    textinput.Model
	searching bool
	manual    textinput.Model
	typing    bool

	menuCursor int

	// product form
	fields     []textinput.Model
	fieldFocus int
	formFor    uint64

	confirm *confirmMsg

	notices  []notice
	noticeID int
	flash    bool
	busy     int

	scrollTarget int
	scrolling    bool

	counter *ui.CounterBar
	spinner spinner.Model
	help    help.Model
	keys    keyMaps
}

// NewAppModel creates the program model for sess. scans, when not nil,
// delivers barcodes from a scanner bridge.
func NewAppModel(ctx context.Context, sess Session, scans <-chan string) AppModel {
	box := newMailbox()
	unsub := sess.Subscribe(box.put)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	search := textinput.New()
	search.Placeholder = "Search products"
	search.Prompt = "/ "
	search.CharLimit = 64

	manual := textinput.New()
	manual.Placeholder = "Barcode"
	manual.Prompt = "› "
	manual.CharLimit = 128

	editor, _ := sess.Model().(LineEditor)

	return AppModel{
		ctx:      ctx,
		sess:     sess,
		editor:   editor,
		box:      box,
		unsub:    unsub,
		scans:    scans,
		snap:     sess.Snapshot(),
		viewport: viewport.New(80, 10),
		search:   search,
		manual:   manual,
		counter:  ui.NewCounterBar(80),
		spinner:  s,
		help:     help.New(),
		keys:     newKeyMaps(),
	}
}

// Init starts the session and begins listening for snapshots and scans.
func (m AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.box.wait(), m.spinner.Tick, m.op("start", m.sess.Start)}
	if m.scans != nil {
		cmds = append(cmds, m.waitScan())
	}
	return tea.Batch(cmds...)
}

// Update handles incoming messages
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.rebuild()
		return m, nil

	case snapshotMsg:
		return m.applySnapshot(msg.snap)

	case noticeMsg:
		m.noticeID++
		m.notices = append(m.notices, notice{id: m.noticeID, level: msg.level, message: msg.message})
		if len(m.notices) > maxNotices {
			m.notices = m.notices[len(m.notices)-maxNotices:]
		}
		id := m.noticeID
		return m, tea.Tick(noticeTimeout, func(time.Time) tea.Msg { return noticeExpiredMsg{id: id} })

	case noticeExpiredMsg:
		for i, n := range m.notices {
			if n.id == msg.id {
				m.notices = append(m.notices[:i:i], m.notices[i+1:]...)
				break
			}
		}
		return m, nil

	case flashMsg:
		m.flash = true
		return m, tea.Tick(flashDuration, func(time.Time) tea.Msg { return flashEndMsg{} })

	case flashEndMsg:
		m.flash = false
		return m, nil

	case historyBackMsg:
		return m.quit()

	case confirmMsg:
		c := msg
		m.confirm = &c
		return m, nil

	case opDoneMsg:
		if m.busy > 0 {
			m.busy--
		}
		return m.opFailed(msg)

	case bridgeScanMsg:
		logging.Debug("Bridge scan", zap.String("barcode", msg.barcode))
		return m, tea.Batch(m.scan(msg.barcode), m.waitScan())

	case bridgeClosedMsg:
		m.scans = nil
		return m.notify(session.NoticeWarning, "Scanner bridge disconnected.")

	case wedgeTimeoutMsg:
		return m.wedgeTimeout(msg.gen)

	case scrollStepMsg:
		return m.scrollStep()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m.quit()
		}
		if m.confirm != nil {
			return m.updateConfirm(msg)
		}
		switch m.snap.View {
		case session.ViewActionsMenu:
			return m.updateMenu(msg)
		case session.ViewProductDetail:
			return m.updateProductForm(msg)
		case session.ViewInfoForm:
			return m.updateInfoForm(msg)
		case session.ViewPackageDetail:
			return m.updatePackageDetail(msg)
		default:
			return m.updateLineList(msg)
		}

	case tea.MouseMsg:
		if m.snap.View == session.ViewLineList {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			m.syncViewport()
			return m, cmd
		}
	}
	return m, nil
}

// op runs fn against the session off the update loop. Callers increment
// busy beforehand.
func (m AppModel) op(name string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: name, err: fn(ctx)}
	}
}

// run is op with the busy count kept.
func (m *AppModel) run(name string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy++
	return m.op(name, fn)
}

func (m *AppModel) scan(code string) tea.Cmd {
	return m.run("scan", func(ctx context.Context) error {
		m.sess.HandleScan(ctx, code)
		return nil
	})
}

func (m AppModel) waitScan() tea.Cmd {
	scans := m.scans
	if scans == nil {
		return nil
	}
	return func() tea.Msg {
		code, ok := <-scans
		if !ok {
			return bridgeClosedMsg{}
		}
		return bridgeScanMsg{barcode: code}
	}
}

func (m AppModel) opFailed(msg opDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err == nil || errors.Is(msg.err, context.Canceled) {
		return m, nil
	}
	if errors.Is(msg.err, session.ErrClosed) || errors.Is(msg.err, session.ErrSuperseded) {
		logging.Debug("Operation dropped", zap.String("op", msg.op), zap.Error(msg.err))
		return m, nil
	}
	logging.Warn("Operation failed", zap.String("op", msg.op), zap.Error(msg.err))

	text := session.UserMessage(msg.err)
	if text == "" {
		text = msg.err.Error()
	}
	if errors.Is(msg.err, session.ErrUnsupported) {
		text = "Not available for this record."
	}
	return m.notify(session.NoticeDanger, text)
}

func (m AppModel) notify(level session.NoticeLevel, text string) (tea.Model, tea.Cmd) {
	return m.Update(noticeMsg{level: level, message: text})
}

func (m AppModel) quit() (tea.Model, tea.Cmd) {
	m.box.close()
	if m.unsub != nil {
		m.unsub()
	}
	if m.confirm != nil {
		m.confirm.reply <- false
		m.confirm = nil
	}
	return m, tea.Quit
}

func (m AppModel) applySnapshot(snap session.Snapshot) (tea.Model, tea.Cmd) {
	prev := m.snap.View
	m.snap = snap
	if snap.Closed {
		return m.quit()
	}

	if snap.View == session.ViewProductDetail && (prev != snap.View || m.formFor == 0) {
		m.openProductForm()
	}
	if snap.View != session.ViewProductDetail {
		m.formFor = 0
	}
	if snap.View == session.ViewActionsMenu && prev != snap.View {
		m.menuCursor = 0
	}

	m.rebuild()
	cmd := m.afterRender()
	return m, tea.Batch(m.box.wait(), cmd)
}

func (m *AppModel) resize() {
	w := m.width - 6
	if w < 20 {
		w = 20
	}
	h := m.height - chromeRows
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.counter.SetWidth(w)
	m.search.Width = w - 4
	m.manual.Width = w - 4
	m.help.Width = w
}

// rebuild renders the line list into the viewport and records where every
// line landed.
func (m *AppModel) rebuild() {
	var cursorKey string
	if m.cursor >= 0 && m.cursor < len(m.layout.order) {
		cursorKey = m.layout.order[m.cursor]
	}
	m.layout = renderLineList(m.snap, m.viewport.Width, cursorKey)
	if m.cursor >= len(m.layout.order) {
		m.cursor = max(0, len(m.layout.order)-1)
	}
	m.viewport.SetContent(m.layout.content)

	reg := m.sess.Scroll().Registry()
	reg.Reset()
	for k, r := range m.layout.rects {
		reg.SetLine(k, r)
	}
	m.syncViewport()

	m.counter.Set(doneLeaves(m.snap.Lines), m.snap.Counters.Total, m.snap.Counters.Filtered, m.snap.HasFilter())
}

func (m *AppModel) syncViewport() {
	m.sess.Scroll().Registry().SetViewport(
		float64(m.viewport.Height), float64(m.viewport.YOffset), float64(m.layout.rows))
}

// afterRender applies the session's scroll decision for the new snapshot.
// Every render is reported, including other views, so the synchronizer can
// go back to immediate positioning once the line list is left.
func (m *AppModel) afterRender() tea.Cmd {
	cmd, ok := m.sess.Scroll().AfterRender(m.snap)
	if !ok {
		return nil
	}
	if i := m.indexOf(cmd.Key); i >= 0 {
		m.cursor = i
	}
	target := int(cmd.Top)
	if cmd.Behavior == session.ScrollImmediate {
		m.viewport.SetYOffset(target)
		m.syncViewport()
		return nil
	}
	m.scrollTarget = target
	if m.scrolling {
		return nil
	}
	m.scrolling = true
	return tea.Tick(scrollFrame, func(time.Time) tea.Msg { return scrollStepMsg{} })
}

func (m AppModel) scrollStep() (tea.Model, tea.Cmd) {
	diff := m.scrollTarget - m.viewport.YOffset
	if diff == 0 {
		m.scrolling = false
		return m, nil
	}
	step := diff / 3
	if step == 0 {
		step = diff
	}
	before := m.viewport.YOffset
	m.viewport.SetYOffset(before + step)
	if m.viewport.YOffset == before {
		// clamped by the content height
		m.scrolling = false
		return m, nil
	}
	return m, tea.Tick(scrollFrame, func(time.Time) tea.Msg { return scrollStepMsg{} })
}

func (m AppModel) indexOf(k string) int {
	if first, ok := m.layout.firstOf[k]; ok {
		k = first
	}
	for i, o := range m.layout.order {
		if o == k {
			return i
		}
	}
	return -1
}

func (m AppModel) cursorLine() (session.Line, bool) {
	if m.cursor < 0 || m.cursor >= len(m.layout.order) {
		return session.Line{}, false
	}
	l, ok := m.layout.lines[m.layout.order[m.cursor]]
	return l, ok
}

// keepCursorVisible scrolls just enough to show the selected line.
func (m *AppModel) keepCursorVisible() {
	l, ok := m.cursorLine()
	if !ok {
		return
	}
	r, ok := m.layout.rects[l.Key()]
	if !ok {
		return
	}
	top, bottom := int(r.Top), int(r.Top+r.Height)
	if top < m.viewport.YOffset {
		m.viewport.SetYOffset(top)
	} else if bottom > m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(bottom - m.viewport.Height)
	}
	m.syncViewport()
}

func (m AppModel) updateLineList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.updateSearch(msg)
	}
	if m.typing {
		return m.updateManual(msg)
	}

	switch msg.Type {
	case tea.KeyRunes:
		m.wedge = append(m.wedge, msg.Runes...)
		m.wedgeGen++
		gen := m.wedgeGen
		return m, tea.Tick(wedgeTimeout, func(time.Time) tea.Msg { return wedgeTimeoutMsg{gen: gen} })
	case tea.KeyEnter:
		if len(m.wedge) > 0 {
			code := string(m.wedge)
			m.wedge = nil
			m.wedgeGen++
			return m, m.scan(code)
		}
		return m.openCursorLine()
	}

	switch {
	case key.Matches(msg, m.keys.list.Up):
		if m.cursor > 0 {
			m.cursor--
			m.rebuild()
			m.keepCursorVisible()
		}
	case key.Matches(msg, m.keys.list.Down):
		if m.cursor < len(m.layout.order)-1 {
			m.cursor++
			m.rebuild()
			m.keepCursorVisible()
		}
	case key.Matches(msg, m.keys.list.Clear):
		if m.snap.HasFilter() || m.search.Value() != "" {
			m.search.SetValue("")
			return m, m.run("clear_search", func(context.Context) error { return m.sess.ClearSearch() })
		}
	case msg.Type == tea.KeyPgUp, msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.syncViewport()
		return m, cmd
	}
	return m, nil
}

// wedgeTimeout ends a burst of typed characters. A single character is a
// command key; anything longer that never got an Enter is discarded.
func (m AppModel) wedgeTimeout(gen int) (tea.Model, tea.Cmd) {
	if gen != m.wedgeGen || len(m.wedge) == 0 {
		return m, nil
	}
	typed := m.wedge
	m.wedge = nil
	if len(typed) != 1 {
		logging.Debug("Discarding partial scan", zap.String("input", string(typed)))
		return m, nil
	}
	return m.runCommandKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: typed})
}

func (m AppModel) runCommandKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys.list
	switch {
	case key.Matches(msg, k.Search):
		m.searching = true
		return m, m.search.Focus()
	case key.Matches(msg, k.Manual):
		m.typing = true
		m.manual.SetValue("")
		return m, m.manual.Focus()
	case key.Matches(msg, k.Open):
		return m.openCursorLine()
	case key.Matches(msg, k.Package):
		if l, ok := m.cursorLine(); ok && l.PackageID != 0 {
			id := l.PackageID
			return m, m.run("open_package", func(ctx context.Context) error { return m.sess.OpenPackage(ctx, id) })
		}
	case key.Matches(msg, k.Actions):
		return m, m.run("open_actions", m.sess.OpenActions)
	case key.Matches(msg, k.Info):
		return m, m.run("open_information", m.sess.OpenInformation)
	case key.Matches(msg, k.Validate):
		return m, m.run("validate", m.sess.Validate)
	case key.Matches(msg, k.Refresh):
		return m, m.run("refresh", func(ctx context.Context) error {
			return m.sess.Refresh(ctx, session.RefreshParams{})
		})
	case key.Matches(msg, k.Quit):
		return m, m.run("exit", m.sess.Exit)
	}
	return m, nil
}

func (m AppModel) openCursorLine() (tea.Model, tea.Cmd) {
	l, ok := m.cursorLine()
	if !ok {
		return m, nil
	}
	return m, m.run("open_product", func(ctx context.Context) error { return m.sess.OpenProductPage(ctx, &l) })
}

func (m AppModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.input.Confirm):
		m.searching = false
		m.search.Blur()
		term := strings.TrimSpace(m.search.Value())
		if term == "" {
			return m, m.run("clear_search", func(context.Context) error { return m.sess.ClearSearch() })
		}
		return m, m.run("search", func(ctx context.Context) error { return m.sess.Search(ctx, term) })
	case key.Matches(msg, m.keys.input.Cancel):
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m AppModel) updateManual(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.input.Confirm):
		m.typing = false
		m.manual.Blur()
		input := m.manual.Value()
		return m, m.run("manual_scan", func(ctx context.Context) error {
			m.sess.HandleManualScan(ctx, input)
			return nil
		})
	case key.Matches(msg, m.keys.input.Cancel):
		m.typing = false
		m.manual.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.manual, cmd = m.manual.Update(msg)
	return m, cmd
}

func (m AppModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var answer, answered bool
	switch {
	case key.Matches(msg, m.keys.confirm.Yes):
		answer, answered = true, true
	case key.Matches(msg, m.keys.confirm.No):
		answered = true
	}
	if answered {
		m.confirm.reply <- answer
		m.confirm = nil
	}
	return m, nil
}

func (m AppModel) menuItems() []menuItem {
	items := []menuItem{
		{"Validate", m.sess.Validate},
	}
	if m.snap.Subject.ResModel == barcode.ModelPicking {
		items = append(items,
			menuItem{"Put in pack", m.sess.PutInPack},
			menuItem{"Return products", m.sess.ReturnProducts},
			menuItem{"Cancel transfer", m.sess.Cancel},
		)
	}
	items = append(items,
		menuItem{"Add product", func(ctx context.Context) error { return m.sess.OpenProductPage(ctx, nil) }},
		menuItem{"Information", m.sess.OpenInformation},
		menuItem{"Back to lines", func(ctx context.Context) error { return m.sess.BackToLines(ctx, 0) }},
	)
	return items
}

func (m AppModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.menuItems()
	switch {
	case key.Matches(msg, m.keys.menu.Up):
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case key.Matches(msg, m.keys.menu.Down):
		if m.menuCursor < len(items)-1 {
			m.menuCursor++
		}
	case key.Matches(msg, m.keys.menu.Select):
		item := items[m.menuCursor]
		name := strings.ReplaceAll(strings.ToLower(item.label), " ", "_")
		return m, m.run(name, item.run)
	case key.Matches(msg, m.keys.menu.Back):
		return m, m.run("back", func(ctx context.Context) error { return m.sess.BackToLines(ctx, 0) })
	}
	return m, nil
}

// openProductForm prepares the fields for the edited line.
func (m *AppModel) openProductForm() {
	m.formFor = m.snap.Seq
	product := textinput.New()
	product.Placeholder = "Product barcode"
	product.Prompt = "Product  "
	product.CharLimit = 128

	qty := textinput.New()
	qty.Placeholder = "0"
	qty.Prompt = "Quantity "
	qty.CharLimit = 16
	qty.SetValue("1")

	if p := m.snap.EditedLine; p != nil && m.editor != nil {
		if l, ok := m.editor.LineFormValues(*p); ok {
			product.SetValue(l.ProductName)
			qty.SetValue(formatQty(l.QtyDone))
		}
	}

	m.fields = []textinput.Model{product, qty}
	m.fieldFocus = 0
	if m.editingExisting() {
		m.fieldFocus = 1
	}
	m.fields[m.fieldFocus].Focus()
}

func (m AppModel) editingExisting() bool {
	return m.snap.EditedLine != nil && m.snap.EditedLine.CurrentID != 0
}

func (m AppModel) updateProductForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.fields) == 0 {
		m.openProductForm()
	}
	switch {
	case key.Matches(msg, m.keys.form.Next):
		if m.editingExisting() {
			return m, nil
		}
		m.fields[m.fieldFocus].Blur()
		m.fieldFocus = (m.fieldFocus + 1) % len(m.fields)
		return m, m.fields[m.fieldFocus].Focus()
	case key.Matches(msg, m.keys.form.Save):
		return m.saveProductForm()
	case key.Matches(msg, m.keys.form.Delete):
		if !m.editingExisting() || m.editor == nil {
			return m, nil
		}
		id := m.snap.EditedLine.CurrentID
		return m, m.run("delete_line", func(ctx context.Context) error { return m.editor.DeleteLine(ctx, id) })
	case key.Matches(msg, m.keys.form.Discard):
		return m, m.run("discard", m.sess.DiscardFormView)
	}
	var cmd tea.Cmd
	m.fields[m.fieldFocus], cmd = m.fields[m.fieldFocus].Update(msg)
	return m, cmd
}

func (m AppModel) saveProductForm() (tea.Model, tea.Cmd) {
	params := m.snap.EditedLine
	if params == nil {
		return m, m.run("discard", m.sess.DiscardFormView)
	}
	qty, err := strconv.ParseFloat(strings.TrimSpace(m.fields[1].Value()), 64)
	if err != nil {
		return m.notify(session.NoticeDanger, "The quantity must be a number.")
	}
	form := barcode.LineForm{Product: strings.TrimSpace(m.fields[0].Value()), Quantity: qty}
	if m.editingExisting() {
		form.Product = ""
	}

	p := *params
	editor := m.editor
	return m, m.run("save_line", func(ctx context.Context) error {
		id := p.CurrentID
		if editor != nil {
			var err error
			if id, err = editor.SaveLineForm(ctx, p, form); err != nil {
				return err
			}
		}
		return m.sess.SaveFormView(ctx, session.FormRecord{ResModel: p.ResModel, ResID: id})
	})
}

func (m AppModel) updateInfoForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.form.Save):
		subject := m.snap.Subject
		return m, m.run("save_information", func(ctx context.Context) error {
			return m.sess.SaveFormView(ctx, session.FormRecord{ResModel: subject.ResModel, ResID: subject.ResID})
		})
	case key.Matches(msg, m.keys.form.Discard):
		return m, m.run("discard", m.sess.DiscardFormView)
	}
	return m, nil
}

func (m AppModel) updatePackageDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.menu.Back) {
		return m, m.run("back", func(ctx context.Context) error { return m.sess.BackToLines(ctx, 0) })
	}
	return m, nil
}

// View renders the program
func (m AppModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var content, helpText string
	switch m.snap.View {
	case session.ViewActionsMenu:
		content = m.renderMenu()
		helpText = m.help.View(m.keys.menu)
	case session.ViewProductDetail:
		content = m.renderProductForm()
		helpText = m.help.View(m.keys.form)
	case session.ViewInfoForm:
		content = m.renderInfoForm()
		helpText = m.help.View(m.keys.form)
	case session.ViewPackageDetail:
		content = m.renderPackageDetail()
		helpText = m.help.View(m.keys.menu)
	default:
		content = m.renderLineScreen()
		helpText = m.help.View(m.keys.list)
		if m.searching || m.typing {
			helpText = m.help.View(m.keys.input)
		}
	}
	if m.confirm != nil {
		helpText = m.help.View(m.keys.confirm)
	}

	screen := RenderApplicationContainer(m.renderHeader(), content, helpText, m.width, m.height)
	if m.confirm != nil {
		return RenderModal(m.renderConfirm(), m.width, m.height)
	}
	return screen
}

func (m AppModel) renderHeader() string {
	header := BuildHeaderContent(m.snap.Subject.String())
	if m.busy > 0 || m.snap.SearchPending {
		header += "  " + m.spinner.View()
	}
	if m.flash {
		header = lipgloss.NewStyle().Reverse(true).Render(header)
	}
	return header
}

func (m AppModel) renderNotices() string {
	rows := make([]string, 0, maxNotices)
	for _, n := range m.notices {
		style, marker := NoticeStyle(n.level.String())
		rows = append(rows, style.Render(marker+" "+n.message))
	}
	for len(rows) < maxNotices {
		rows = append(rows, "")
	}
	return strings.Join(rows, "\n")
}

func (m AppModel) renderLineScreen() string {
	var b strings.Builder
	b.WriteString(m.counter.Render())
	if m.snap.HighlightValidateButton {
		b.WriteString("  " + ValidateButtonStyle.Render("v VALIDATE"))
	}
	b.WriteString("\n")

	switch {
	case m.searching:
		b.WriteString(m.search.View())
	case m.typing:
		b.WriteString(m.manual.View())
	case m.snap.Filter.Active:
		b.WriteString(SubtitleStyle.Render(fmt.Sprintf("Filter: %q (esc to clear)", m.snap.Filter.Term)))
	case m.snap.DisplayNote:
		b.WriteString(NoteStyle.Render("This transfer has a note, press i to read it."))
	}
	b.WriteString("\n")
	b.WriteString(m.renderNotices())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	return b.String()
}

func (m AppModel) renderMenu() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Actions") + "\n\n")
	for i, item := range m.menuItems() {
		if i == m.menuCursor {
			b.WriteString(SelectedMenuItemStyle.Render("▸ "+item.label) + "\n")
		} else {
			b.WriteString(MenuItemStyle.Render("  "+item.label) + "\n")
		}
	}
	b.WriteString("\n" + m.renderNotices())
	return b.String()
}

func (m AppModel) renderProductForm() string {
	title := "Add product"
	if m.editingExisting() {
		title = "Edit line"
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render(title) + "\n\n")
	for i, f := range m.fields {
		if i == 0 && m.editingExisting() {
			b.WriteString(FormKeyStyle.Render("Product  ") + f.Value() + "\n")
			continue
		}
		style := BlurredInputStyle
		if i == m.fieldFocus {
			style = FocusedInputStyle
		}
		b.WriteString(style.Render(f.View()) + "\n")
	}
	b.WriteString("\n" + m.renderNotices())
	return FormStyle.Render(b.String())
}

func (m AppModel) renderInfoForm() string {
	rows := [][2]string{
		{"Record", m.snap.Subject.String()},
		{"Lines", strconv.Itoa(m.snap.Counters.Total)},
	}
	if lt, ok := m.sess.Model().(session.LocationTracker); ok {
		rows = append(rows,
			[2]string{"Source", orNone(lt.SourceLocation())},
			[2]string{"Destination", orNone(lt.DestinationLocation())},
		)
	}
	if m.snap.DisplayNote {
		rows = append(rows, [2]string{"Note", "yes"})
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Information") + "\n\n")
	for _, r := range rows {
		b.WriteString(FormKeyStyle.Render(fmt.Sprintf("%-12s", r[0])) + r[1] + "\n")
	}
	b.WriteString("\n" + m.renderNotices())
	return FormStyle.Render(b.String())
}

func (m AppModel) renderPackageDetail() string {
	var b strings.Builder
	for _, p := range m.snap.PackageLines {
		if p.ID != m.snap.InspectedPackageID {
			continue
		}
		b.WriteString(PackageHeaderStyle.Render(p.Name) + "  " + SubtitleStyle.Render(p.Location) + "\n\n")
		for _, l := range p.Lines {
			b.WriteString(renderLine(l, m.viewport.Width, "", false)[0] + "\n")
		}
		return b.String()
	}
	return SubtitleStyle.Render("This package has no line.")
}

func (m AppModel) renderConfirm() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.confirm.title) + "\n\n")
	if m.confirm.help != "" {
		b.WriteString(m.confirm.help + "\n\n")
	}
	b.WriteString(SubtitleStyle.Render("y confirm · n cancel"))
	return DialogStyle.Width(SafeModalWidth(60, m.width)).Render(b.String())
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
