package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
)

// DefaultSearchLimit caps the product ids a search may return.
const DefaultSearchLimit = 200

// Options configure a Controller.
type Options struct {
	// Factories build the model for the subject's record type.
	Factories ModelFactories
	// Transport reaches the backend. Start, Refresh and Cancel need it.
	Transport Transport
	// Searcher resolves product search terms. Search needs it.
	Searcher ProductSearcher
	// SearchLimit caps search results; 0 means DefaultSearchLimit.
	SearchLimit int
	// Layout is filled by the renderer; nil creates a private registry.
	Layout *LayoutRegistry
	// ScrollThreshold is the anti-jitter threshold in layout units.
	ScrollThreshold float64
	// ResetFilterOnRefresh clears the product search when a refresh cycle
	// completes. By default the filter survives refreshes.
	ResetFilterOnRefresh bool
}

type viewState struct {
	view             View
	filter           Filter
	counters         Counters
	editedLine       *LineParams
	inspectedPackage int64
	displayNote      bool
	playSound        bool
	searchPending    bool
}

// Controller drives one barcode session. Create it with New, load it with
// Start and release it with Close.
type Controller struct {
	subject Subject
	opts    Options
	model   Model
	bus     *Bus
	host    Host
	scroll  *ScrollSynchronizer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsubs []func()

	mu        sync.Mutex
	state     viewState
	closed    bool
	seq       uint64
	last      Snapshot
	searchSeq uint64
	// navEpoch changes on every operator-initiated navigation. A refresh
	// only returns to the line list when the epoch it started with is
	// still current.
	navEpoch uint64
	subs     map[int]func(Snapshot)
	nextSub  int
}

// New creates the controller and its model for subject. It fails with
// ErrUnsupportedSubject when no factory handles the subject's record type.
func New(subject Subject, host Host, opts Options) (*Controller, error) {
	if host == nil {
		return nil, errors.New("session: nil host")
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.Layout == nil {
		opts.Layout = NewLayoutRegistry()
	}

	bus := NewBus()
	model, err := opts.Factories.NewModel(subject, bus, opts.Transport)
	if err != nil {
		return nil, err
	}

	finder, _ := model.(LocationFinder)
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		subject: subject,
		opts:    opts,
		model:   model,
		bus:     bus,
		host:    host,
		scroll:  NewScrollSynchronizer(opts.Layout, finder, opts.ScrollThreshold),
		ctx:     ctx,
		cancel:  cancel,
		state:   viewState{view: ViewLineList, playSound: true},
		subs:    make(map[int]func(Snapshot)),
	}

	c.unsubs = []func(){
		bus.Subscribe(EventFlash, func(Event) { c.host.Flash() }),
		bus.Subscribe(EventPlaySound, c.onPlaySound),
		bus.Subscribe(EventUpdate, func(Event) { c.publish() }),
		bus.Subscribe(EventRefresh, c.onRefresh),
		bus.Subscribe(EventProcessAction, c.onProcessAction),
		bus.Subscribe(EventHistoryBack, func(Event) { c.host.HistoryBack() }),
	}
	return c, nil
}

// Subject returns the record the session works on.
func (c *Controller) Subject() Subject {
	return c.subject
}

// Model returns the session's model.
func (c *Controller) Model() Model {
	return c.model
}

// Bus returns the session's event bus.
func (c *Controller) Bus() *Bus {
	return c.bus
}

// Scroll returns the scroll synchronizer the renderer calls after each frame.
func (c *Controller) Scroll() *ScrollSynchronizer {
	return c.scroll
}

// Start loads the session data from the backend and publishes the first
// snapshot.
func (c *Controller) Start(ctx context.Context) error {
	if c.opts.Transport == nil {
		return ErrNoTransport
	}
	params := map[string]any{"model": c.subject.ResModel, "res_id": false}
	if c.subject.ResID != 0 {
		params["res_id"] = c.subject.ResID
	}

	var payload Payload
	if err := c.opts.Transport.Call(ctx, RouteBarcodeData, params, &payload); err != nil {
		return fmt.Errorf("load %s: %w", c.subject, err)
	}
	return c.Load(payload)
}

// Load hands an already fetched payload to the model and publishes the
// first snapshot.
func (c *Controller) Load(payload Payload) error {
	if c.isClosed() {
		return ErrClosed
	}
	payload.ActionID = c.subject.ActionID
	if err := c.model.SetData(payload); err != nil {
		return fmt.Errorf("load %s: %w", c.subject, err)
	}

	c.mu.Lock()
	c.state.playSound = payload.Config.SoundEnabled()
	c.state.displayNote = c.model.HasNote()
	c.mu.Unlock()

	logging.Info("Session started",
		zap.String("subject", c.subject.String()),
		zap.Bool("play_sound", payload.Config.SoundEnabled()),
	)
	c.publish()
	return nil
}

// Subscribe registers fn to receive every new snapshot. Snapshots may be
// delivered from several goroutines; keep the one with the highest Seq.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Snapshot returns the most recently published snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Close stops background work, detaches from the bus and waits for
// in-flight refreshes to finish. It is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.bus.Close()
	c.wg.Wait()

	c.mu.Lock()
	c.seq++
	c.last.Seq = c.seq
	c.last.Closed = true
	final := c.last
	subs := c.subscribersLocked()
	c.subs = make(map[int]func(Snapshot))
	c.mu.Unlock()

	for _, fn := range subs {
		fn(final)
	}
	logging.Debug("Session closed", zap.String("subject", c.subject.String()))
	return nil
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) currentView() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.view
}

func (c *Controller) subscribersLocked() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

// publish derives a new snapshot from the current model data and state and
// hands it to subscribers. Counters are recomputed from current data every
// time, so an older computation can never overwrite a newer one.
func (c *Controller) publish() Snapshot {
	c.mu.Lock()
	if c.closed {
		snap := c.last
		c.mu.Unlock()
		return snap
	}
	snap := c.snapshotLocked()
	c.last = snap
	subs := c.subscribersLocked()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return snap
}

func (c *Controller) snapshotLocked() Snapshot {
	var all []GroupedLine
	counters, err := ComputeCounters(func() []GroupedLine {
		all = c.model.GroupedLines()
		return all
	}, c.state.filter, c.state.counters)

	var visible []GroupedLine
	if err != nil {
		logging.Warn("Keeping previous line counters",
			zap.String("subject", c.subject.String()),
			zap.Error(err),
		)
		visible = c.last.Lines
	} else {
		visible = ApplyFilter(all, c.state.filter)
	}
	c.state.counters = counters

	canProcess := c.model.CanBeProcessed()
	c.seq++
	snap := Snapshot{
		Seq:                     c.seq,
		Subject:                 c.subject,
		View:                    c.state.view,
		Filter:                  c.state.filter,
		Counters:                counters,
		Lines:                   visible,
		PackageLines:            c.model.PackageLines(),
		EditedLine:              c.state.editedLine,
		InspectedPackageID:      c.state.inspectedPackage,
		CanBeProcessed:          canProcess,
		HighlightValidateButton: c.model.HighlightValidateButton(),
		DisplayActionButtons:    c.state.view == ViewLineList && canProcess,
		DisplayNote:             c.state.displayNote,
		PlaySound:               c.state.playSound,
		SearchPending:           c.state.searchPending,
	}
	if lt, ok := c.model.(LocationTracker); ok {
		snap.IsTransfer = lt.SourceLocation() != "" && lt.DestinationLocation() != ""
	}
	return snap
}

// goAsync runs fn on a tracked goroutine bound to the session lifetime.
func (c *Controller) goAsync(fn func(ctx context.Context)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

func (c *Controller) onPlaySound(ev Event) {
	c.mu.Lock()
	enabled := c.state.playSound
	c.mu.Unlock()
	if !enabled {
		return
	}
	name := ev.Sound
	if name == "" {
		name = SoundNotify
	}
	c.host.PlaySound(name)
}

func (c *Controller) onRefresh(ev Event) {
	params := RefreshParams{}
	if ev.Refresh != nil {
		params = *ev.Refresh
	}
	c.goAsync(func(ctx context.Context) {
		if err := c.Refresh(ctx, params); err != nil && !errors.Is(err, ErrClosed) {
			c.host.Notify(NoticeDanger, MsgRefreshFailed)
		}
	})
}

func (c *Controller) onProcessAction(ev Event) {
	action := ev.Action
	c.goAsync(func(ctx context.Context) {
		result, err := c.host.RunAction(ctx, action)
		if err != nil {
			logging.Error("Backend action failed",
				zap.String("subject", c.subject.String()),
				zap.String("action", action.Name()),
				zap.Error(err),
			)
			if msg := UserMessage(err); msg != "" {
				c.host.Notify(NoticeDanger, msg)
			}
			return
		}
		params := RefreshParams{}
		if result.Refresh != nil {
			params = *result.Refresh
		}
		if err := c.Refresh(ctx, params); err != nil && !errors.Is(err, ErrClosed) {
			c.host.Notify(NoticeDanger, MsgRefreshFailed)
		}
	})
}
