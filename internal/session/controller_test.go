package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h, err := newHarness(opts)
	require.NoError(t, err)
	require.NoError(t, h.ctrl.Start(context.Background()))
	t.Cleanup(func() { _ = h.ctrl.Close() })
	return h
}

func searcherReturning(ids []ProductID, err error) ProductSearcher {
	return ProductSearcherFunc(func(context.Context, string, int) ([]ProductID, error) {
		return ids, err
	})
}

func TestNewUnsupportedSubject(t *testing.T) {
	_, err := New(Subject{ResModel: "res.partner", ResID: 3}, &fakeHost{}, Options{})

	assert.ErrorIs(t, err, ErrUnsupportedSubject)
}

func TestStartPublishesFirstSnapshot(t *testing.T) {
	h := startedHarness(t, Options{})

	snap := h.ctrl.Snapshot()
	assert.Equal(t, ViewLineList, snap.View)
	assert.True(t, snap.PlaySound)
	assert.False(t, snap.HasFilter())
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, 1, h.transport.callCount(RouteBarcodeData))
}

func TestStartHonoursPlaySoundConfig(t *testing.T) {
	h, err := newHarness(Options{})
	require.NoError(t, err)
	defer h.ctrl.Close()
	h.transport.handle(RouteBarcodeData, func(any) (any, error) {
		return map[string]any{"data": map[string]any{}, "config": map[string]any{"play_sound": false}}, nil
	})

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.ctrl.Bus().Publish(Event{Kind: EventPlaySound, Sound: SoundError})

	assert.False(t, h.ctrl.Snapshot().PlaySound)
	assert.Empty(t, h.host.sounds)
}

func TestStartWithoutTransport(t *testing.T) {
	h, err := newHarness(Options{})
	require.NoError(t, err)
	defer h.ctrl.Close()
	h.ctrl.opts.Transport = nil

	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrNoTransport)
}

func TestHandleScanEmptyWarns(t *testing.T) {
	h := startedHarness(t, Options{})

	for _, code := range []string{"", "   ", "\t\n"} {
		h.ctrl.HandleScan(context.Background(), code)
	}

	assert.Equal(t, 3, h.host.noticeCount())
	assert.Equal(t, notice{NoticeWarning, MsgScanAgain}, h.host.lastNotice())
	assert.Empty(t, h.model.processed)
}

func TestHandleScanRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"user message", NewUserError("You are expected to scan a lot"), "You are expected to scan a lot"},
		{"plain failure", errors.New("lookup"), "No picking or location or product corresponding to barcode 4006"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startedHarness(t, Options{})
			h.model.processErr = tt.err

			h.ctrl.HandleScan(context.Background(), "4006")

			assert.Equal(t, notice{NoticeDanger, tt.want}, h.host.lastNotice())
			assert.Empty(t, h.host.vibrations)
		})
	}
}

func TestHandleScanVibratesOnSuccess(t *testing.T) {
	h := startedHarness(t, Options{})

	h.ctrl.HandleScan(context.Background(), "4006")

	assert.Equal(t, []time.Duration{HapticPulse}, h.host.vibrations)
	assert.Equal(t, 0, h.host.noticeCount())
	assert.Len(t, h.ctrl.Snapshot().Lines, 1)
}

func TestHandleManualScanCleansInput(t *testing.T) {
	h := startedHarness(t, Options{})

	h.ctrl.HandleManualScan(context.Background(), "  abc ")

	assert.Equal(t, []string{"ABC"}, h.model.processed)
}

func TestConcurrentScansBothApply(t *testing.T) {
	h := startedHarness(t, Options{})
	gate := make(chan struct{})
	h.model.processGate["A"] = gate

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ctrl.HandleScan(context.Background(), "A")
	}()
	h.ctrl.HandleScan(context.Background(), "B")
	close(gate)
	wg.Wait()

	assert.Equal(t, []string{"B", "A"}, h.model.processed)
	assert.Equal(t, 2, h.ctrl.Snapshot().Counters.Total)
}

func TestSearchNoResultsMatchesNothing(t *testing.T) {
	h := startedHarness(t, Options{Searcher: searcherReturning(nil, nil)})
	h.model.setLines(Leaf(leaf(1, 1)))

	require.NoError(t, h.ctrl.Search(context.Background(), "zzz"))

	snap := h.ctrl.Snapshot()
	assert.True(t, snap.HasFilter())
	assert.Empty(t, snap.Lines)
	assert.Equal(t, Counters{Total: 1, Filtered: 0}, snap.Counters)
	assert.Equal(t, notice{NoticeWarning, MsgNoMatchingProducts}, h.host.lastNotice())
}

func TestSearchFiltersLines(t *testing.T) {
	h := startedHarness(t, Options{Searcher: searcherReturning([]ProductID{2}, nil)})
	h.model.setLines(sampleLines()...)

	require.NoError(t, h.ctrl.Search(context.Background(), "bolt"))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, Counters{Total: 3, Filtered: 1}, snap.Counters)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, []Line{leaf(2, 2)}, snap.Lines[0].Sublines)
	assert.False(t, snap.SearchPending)

	require.NoError(t, h.ctrl.Search(context.Background(), "  "))
	assert.False(t, h.ctrl.Snapshot().HasFilter())
}

func TestSearchErrorKeepsFilter(t *testing.T) {
	h := startedHarness(t, Options{Searcher: searcherReturning([]ProductID{2}, nil)})
	h.model.setLines(sampleLines()...)
	require.NoError(t, h.ctrl.Search(context.Background(), "bolt"))

	h.ctrl.opts.Searcher = searcherReturning(nil, errors.New("timeout"))
	err := h.ctrl.Search(context.Background(), "nut")

	require.Error(t, err)
	snap := h.ctrl.Snapshot()
	assert.Equal(t, "bolt", snap.Filter.Term)
	assert.Equal(t, 1, snap.Counters.Filtered)
	assert.Equal(t, notice{NoticeDanger, MsgSearchFailed}, h.host.lastNotice())
}

func TestSearchOutdatedResultDropped(t *testing.T) {
	slow := make(chan struct{})
	searcher := ProductSearcherFunc(func(_ context.Context, term string, _ int) ([]ProductID, error) {
		if term == "old" {
			<-slow
			return []ProductID{1}, nil
		}
		return []ProductID{3}, nil
	})
	h := startedHarness(t, Options{Searcher: searcher})
	h.model.setLines(sampleLines()...)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Search(context.Background(), "old") }()
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().SearchPending }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Search(context.Background(), "new"))
	close(slow)
	require.NoError(t, <-done)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, "new", snap.Filter.Term)
	assert.Equal(t, []ProductID{3}, snap.Filter.ProductIDs)
}

func TestSearchWithoutSearcher(t *testing.T) {
	h := startedHarness(t, Options{})

	assert.Error(t, h.ctrl.Search(context.Background(), "x"))
}

func TestTransitionsFromLineList(t *testing.T) {
	ctx := context.Background()
	h := startedHarness(t, Options{})

	require.NoError(t, h.ctrl.OpenActions(ctx))
	assert.Equal(t, ViewActionsMenu, h.ctrl.Snapshot().View)
	assert.False(t, h.ctrl.Snapshot().DisplayActionButtons)

	err := h.ctrl.OpenPackage(ctx, 5)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, h.ctrl.BackToLines(ctx, 0))
	require.NoError(t, h.ctrl.OpenPackage(ctx, 5))
	assert.Equal(t, int64(5), h.ctrl.Snapshot().InspectedPackageID)

	require.NoError(t, h.ctrl.BackToLines(ctx, 9))
	snap := h.ctrl.Snapshot()
	assert.Equal(t, ViewLineList, snap.View)
	assert.Zero(t, snap.InspectedPackageID)
	assert.Equal(t, []int64{0, 9}, h.model.displayed)
}

func TestOpenInformationSavesFirst(t *testing.T) {
	h := startedHarness(t, Options{})

	require.NoError(t, h.ctrl.OpenInformation(context.Background()))

	assert.Equal(t, 1, h.model.saves)
	assert.Equal(t, ViewInfoForm, h.ctrl.Snapshot().View)
}

func TestSaveFailureKeepsView(t *testing.T) {
	h := startedHarness(t, Options{})
	h.model.saveErr = NewUserError("Missing lot")

	err := h.ctrl.OpenProductPage(context.Background(), nil)

	require.Error(t, err)
	assert.Equal(t, ViewLineList, h.ctrl.Snapshot().View)
	assert.Nil(t, h.ctrl.Snapshot().EditedLine)
}

func TestOpenProductPageNewLine(t *testing.T) {
	h := startedHarness(t, Options{})

	require.NoError(t, h.ctrl.OpenProductPage(context.Background(), nil))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, ViewProductDetail, snap.View)
	require.NotNil(t, snap.EditedLine)
	assert.Equal(t, LineParams{
		ResModel: "stock.move.line",
		ViewID:   42,
		Context:  map[string]any{"default_picking_id": 1},
	}, *snap.EditedLine)
}

func TestOpenProductPageResolvesVirtualID(t *testing.T) {
	h := startedHarness(t, Options{})
	h.model.pageLines = []Line{{ID: 77, VirtualID: "v-1"}}

	require.NoError(t, h.ctrl.OpenProductPage(context.Background(), &Line{VirtualID: "v-1"}))

	require.NotNil(t, h.ctrl.Snapshot().EditedLine)
	assert.Equal(t, int64(77), h.ctrl.Snapshot().EditedLine.CurrentID)
}

func TestExit(t *testing.T) {
	ctx := context.Background()
	h := startedHarness(t, Options{})
	require.NoError(t, h.ctrl.OpenActions(ctx))

	require.NoError(t, h.ctrl.Exit(ctx))
	assert.Equal(t, ViewLineList, h.ctrl.Snapshot().View)
	assert.Zero(t, h.host.backs)

	require.NoError(t, h.ctrl.Exit(ctx))
	assert.Equal(t, 1, h.model.quits)
	assert.Equal(t, 1, h.host.backs)
}

func TestExitBeforeQuitFailure(t *testing.T) {
	h := startedHarness(t, Options{})
	h.model.quitErr = errors.New("unsaved")

	assert.Error(t, h.ctrl.Exit(context.Background()))
	assert.Zero(t, h.host.backs)
}

func TestRefreshReturnsToLines(t *testing.T) {
	ctx := context.Background()
	h := startedHarness(t, Options{})
	require.NoError(t, h.ctrl.OpenProductPage(ctx, nil))

	require.NoError(t, h.ctrl.Refresh(ctx, RefreshParams{LineID: 12}))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, ViewLineList, snap.View)
	assert.Nil(t, snap.EditedLine)
	assert.Equal(t, []int64{12}, h.model.displayed)
	assert.Len(t, h.model.refreshed, 1)
}

func TestRefreshAfterNavigationKeepsView(t *testing.T) {
	ctx := context.Background()
	h := startedHarness(t, Options{})

	gate := make(chan struct{})
	entered := make(chan struct{})
	h.transport.handle(RouteBarcodeData, func(any) (any, error) {
		close(entered)
		<-gate
		return map[string]any{"data": map[string]any{"records": map[string]any{}}}, nil
	})

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Refresh(ctx, RefreshParams{}) }()
	<-entered
	require.NoError(t, h.ctrl.OpenActions(ctx))
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, ViewActionsMenu, h.ctrl.Snapshot().View)
	assert.Len(t, h.model.refreshed, 1)
	assert.Empty(t, h.model.displayed)
}

func TestRefreshNavigationWhileShowingLinesKeepsView(t *testing.T) {
	ctx := context.Background()
	h := startedHarness(t, Options{})

	gate := make(chan struct{})
	entered := make(chan struct{})
	h.model.mu.Lock()
	h.model.displayGate, h.model.displaying = gate, entered
	h.model.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Refresh(ctx, RefreshParams{LineID: 7}) }()
	<-entered
	require.NoError(t, h.ctrl.OpenActions(ctx))
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, ViewActionsMenu, h.ctrl.Snapshot().View)
	assert.Len(t, h.model.refreshed, 1)
}

func TestRefreshKeepsFilterByDefault(t *testing.T) {
	ctx := context.Background()
	h := startedHarness(t, Options{Searcher: searcherReturning([]ProductID{2}, nil)})
	h.model.setLines(sampleLines()...)
	require.NoError(t, h.ctrl.Search(ctx, "bolt"))

	require.NoError(t, h.ctrl.Refresh(ctx, RefreshParams{}))

	assert.Equal(t, "bolt", h.ctrl.Snapshot().Filter.Term)
}

func TestRefreshResetsFilterWhenConfigured(t *testing.T) {
	ctx := context.Background()
	h := startedHarness(t, Options{
		Searcher:             searcherReturning([]ProductID{2}, nil),
		ResetFilterOnRefresh: true,
	})
	h.model.setLines(sampleLines()...)
	require.NoError(t, h.ctrl.Search(ctx, "bolt"))

	require.NoError(t, h.ctrl.Refresh(ctx, RefreshParams{}))

	snap := h.ctrl.Snapshot()
	assert.False(t, snap.HasFilter())
	assert.Equal(t, Counters{Total: 3, Filtered: 3}, snap.Counters)
}

func TestSaveFormViewParams(t *testing.T) {
	tests := []struct {
		name       string
		record     FormRecord
		wantRecord int64
		wantLine   int64
	}{
		{"line form", FormRecord{ResModel: "stock.move.line", ResID: 31}, 0, 31},
		{"subject form", FormRecord{ResModel: "stock.picking", ResID: 1}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startedHarness(t, Options{})
			var gotParams map[string]any
			h.transport.handle(RouteBarcodeData, func(p any) (any, error) {
				gotParams = p.(map[string]any)
				return map[string]any{"data": map[string]any{}}, nil
			})

			require.NoError(t, h.ctrl.SaveFormView(context.Background(), tt.record))

			assert.Equal(t, tt.wantRecord, gotParams["res_id"])
			assert.Equal(t, []int64{tt.wantLine}, h.model.displayed)
		})
	}
}

func TestSaveFormViewUsesEditedLine(t *testing.T) {
	ctx := context.Background()
	h := startedHarness(t, Options{})
	require.NoError(t, h.ctrl.OpenProductPage(ctx, &Line{ID: 55}))

	require.NoError(t, h.ctrl.SaveFormView(ctx, FormRecord{ResModel: "stock.move.line"}))

	assert.Equal(t, []int64{55}, h.model.displayed)
}

func TestBusEventsReachHost(t *testing.T) {
	h := startedHarness(t, Options{})
	bus := h.ctrl.Bus()

	bus.Publish(Event{Kind: EventFlash})
	bus.Publish(Event{Kind: EventPlaySound})
	bus.Publish(Event{Kind: EventPlaySound, Sound: SoundError})
	bus.Publish(Event{Kind: EventHistoryBack})

	assert.Equal(t, 1, h.host.flashes)
	assert.Equal(t, []string{SoundNotify, SoundError}, h.host.sounds)
	assert.Equal(t, 1, h.host.backs)
}

func TestBusRefreshEventRunsRefresh(t *testing.T) {
	h := startedHarness(t, Options{})

	h.ctrl.Bus().Publish(Event{Kind: EventRefresh, Refresh: &RefreshParams{LineID: 4}})

	assert.Eventually(t, func() bool {
		h.model.mu.Lock()
		defer h.model.mu.Unlock()
		return len(h.model.displayed) == 1 && h.model.displayed[0] == 4
	}, time.Second, 5*time.Millisecond)
}

func TestBusProcessActionThenRefresh(t *testing.T) {
	h := startedHarness(t, Options{})
	h.host.actionResFn = func(Action) (ActionResult, error) {
		return ActionResult{Refresh: &RefreshParams{LineID: 8}}, nil
	}

	h.ctrl.Bus().Publish(Event{Kind: EventProcessAction, Action: Action{"name": "Backorder"}})

	assert.Eventually(t, func() bool {
		h.model.mu.Lock()
		defer h.model.mu.Unlock()
		return len(h.model.displayed) == 1 && h.model.displayed[0] == 8
	}, time.Second, 5*time.Millisecond)
}

func TestBusProcessActionFailureNotifies(t *testing.T) {
	h := startedHarness(t, Options{})
	h.host.actionResFn = func(Action) (ActionResult, error) {
		return ActionResult{}, NewUserError("Nothing to backorder")
	}

	h.ctrl.Bus().Publish(Event{Kind: EventProcessAction, Action: Action{"name": "Backorder"}})

	assert.Eventually(t, func() bool {
		return h.host.lastNotice() == notice{NoticeDanger, "Nothing to backorder"}
	}, time.Second, 5*time.Millisecond)
}

func TestCancel(t *testing.T) {
	h := startedHarness(t, Options{})
	route := "/web/dataset/call_kw/stock.picking/action_cancel_from_barcode"
	h.transport.handle(route, func(any) (any, error) {
		return map[string]any{"name": "Cancel transfer"}, nil
	})
	h.host.actionResFn = func(a Action) (ActionResult, error) {
		return ActionResult{Cancelled: true}, nil
	}

	require.NoError(t, h.ctrl.Cancel(context.Background()))

	assert.Equal(t, 1, h.model.saves)
	require.Len(t, h.host.actions, 1)
	assert.Equal(t, "Cancel transfer", h.host.actions[0].Name())
	assert.Equal(t, notice{NoticeInfo, MsgCancelled}, h.host.lastNotice())
	assert.Equal(t, 1, h.host.backs)
}

func TestCancelDeclined(t *testing.T) {
	h := startedHarness(t, Options{})
	h.transport.handle("/web/dataset/call_kw/stock.picking/action_cancel_from_barcode", func(any) (any, error) {
		return map[string]any{}, nil
	})

	require.NoError(t, h.ctrl.Cancel(context.Background()))

	assert.Zero(t, h.host.backs)
	assert.Zero(t, h.host.noticeCount())
}

func TestPutInPackUnsupported(t *testing.T) {
	h := startedHarness(t, Options{})

	assert.ErrorIs(t, h.ctrl.PutInPack(context.Background()), ErrUnsupported)
}

type returningModel struct {
	*fakeModel
	returns int
}

func (m *returningModel) ReturnProducts(ctx context.Context) error {
	m.returns++
	return nil
}

func TestReturnProducts(t *testing.T) {
	h := startedHarness(t, Options{})
	assert.ErrorIs(t, h.ctrl.ReturnProducts(context.Background()), ErrUnsupported)

	var rm *returningModel
	factories := ModelFactories{
		"stock.picking": func(s Subject, bus *Bus, tr Transport) (Model, error) {
			rm = &returningModel{fakeModel: newFakeModel(bus)}
			return rm, nil
		},
	}
	ctrl, err := New(pickingSubject(), &fakeHost{}, Options{Factories: factories, Transport: h.transport})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	require.NoError(t, ctrl.ReturnProducts(context.Background()))
	assert.Equal(t, 1, rm.returns)
}

func TestCountersKeptWhenLinesFail(t *testing.T) {
	h := startedHarness(t, Options{})
	h.model.setLines(sampleLines()...)
	h.ctrl.Bus().Publish(Event{Kind: EventUpdate})
	before := h.ctrl.Snapshot()

	h.model.panicOnLines = true
	h.ctrl.Bus().Publish(Event{Kind: EventUpdate})

	after := h.ctrl.Snapshot()
	assert.Greater(t, after.Seq, before.Seq)
	assert.Equal(t, before.Counters, after.Counters)
	assert.Equal(t, before.Lines, after.Lines)
}

func TestSubscribeSeesIncreasingSeq(t *testing.T) {
	h := startedHarness(t, Options{})
	var mu sync.Mutex
	var seqs []uint64
	unsub := h.ctrl.Subscribe(func(s Snapshot) {
		mu.Lock()
		seqs = append(seqs, s.Seq)
		mu.Unlock()
	})

	h.ctrl.HandleScan(context.Background(), "1")
	h.ctrl.HandleScan(context.Background(), "2")
	unsub()
	h.ctrl.HandleScan(context.Background(), "3")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seqs, 2)
	assert.Less(t, seqs[0], seqs[1])
}

func TestClose(t *testing.T) {
	h, err := newHarness(Options{})
	require.NoError(t, err)
	require.NoError(t, h.ctrl.Start(context.Background()))

	var last Snapshot
	h.ctrl.Subscribe(func(s Snapshot) { last = s })

	require.NoError(t, h.ctrl.Close())
	require.NoError(t, h.ctrl.Close())

	assert.True(t, last.Closed)
	assert.ErrorIs(t, h.ctrl.OpenActions(context.Background()), ErrClosed)
	assert.ErrorIs(t, h.ctrl.Refresh(context.Background(), RefreshParams{}), ErrClosed)

	h.ctrl.HandleScan(context.Background(), "x")
	assert.Empty(t, h.model.processed)
}
