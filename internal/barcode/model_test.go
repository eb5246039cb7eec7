package barcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhma/stockbarcode/internal/session"
)

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(params map[string]any) (any, error)
	params   map[string][]map[string]any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: map[string]func(map[string]any) (any, error){},
		params:   map[string][]map[string]any{},
	}
}

func (f *fakeTransport) handle(route string, fn func(map[string]any) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[route] = fn
}

func (f *fakeTransport) Call(ctx context.Context, route string, params any, out any) error {
	// Round-trip params through JSON so tests see what the backend would.
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}

	f.mu.Lock()
	f.params[route] = append(f.params[route], decoded)
	fn := f.handlers[route]
	f.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("no handler for %s", route)
	}
	res, err := fn(decoded)
	if err != nil {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeTransport) calls(route string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[route]
}

func pickingRecords() map[string]any {
	return map[string]any{
		ModelPicking: []any{map[string]any{
			"id": 1, "name": "WH/IN/00001", "state": "assigned", "note": "Fragile",
			"location_id": []any{8, "WH/Stock"}, "location_dest_id": []any{9, "WH/Output"},
		}},
		ModelProduct: []any{
			map[string]any{"id": 10, "display_name": "Bolt M6", "barcode": "1111", "tracking": "none", "uom_id": []any{1, "Units"}},
			map[string]any{"id": 11, "display_name": "Nut M6", "barcode": "2222", "tracking": "lot"},
		},
		ModelLocation: []any{
			map[string]any{"id": 8, "display_name": "WH/Stock", "barcode": "LOC-STOCK"},
			map[string]any{"id": 12, "display_name": "WH/Stock/Shelf 1", "barcode": "LOC-S1"},
			map[string]any{"id": 9, "display_name": "WH/Output", "barcode": "LOC-OUT"},
		},
		ModelLot:     []any{map[string]any{"id": 30, "name": "LOT-A", "product_id": 11}},
		ModelPackage: []any{map[string]any{"id": 40, "name": "PACK-1", "location_id": 9}},
		ModelMoveLine: []any{
			map[string]any{"id": 100, "picking_id": 1, "move_id": 500, "product_id": []any{10, "Bolt M6"}, "quantity": 2, "qty_done": 0, "location_id": 8, "location_dest_id": 9},
			map[string]any{"id": 101, "picking_id": 1, "move_id": 500, "product_id": 10, "quantity": 3, "qty_done": 0, "location_id": 12, "location_dest_id": 9},
			map[string]any{"id": 102, "picking_id": 1, "move_id": 501, "product_id": map[string]any{"id": 11}, "quantity": 1, "qty_done": 0, "location_id": 8, "location_dest_id": 9},
			map[string]any{"id": 900, "picking_id": 2, "move_id": 900, "product_id": 10, "quantity": 1, "location_id": 8},
		},
	}
}

type fixture struct {
	model     session.Model
	picking   *Picking
	bus       *session.Bus
	transport *fakeTransport
	events    []session.Event
}

func newPickingFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{bus: session.NewBus(), transport: newFakeTransport()}
	for _, kind := range []session.EventKind{session.EventUpdate, session.EventPlaySound, session.EventHistoryBack, session.EventProcessAction, session.EventRefresh} {
		f.bus.Subscribe(kind, func(ev session.Event) { f.events = append(f.events, ev) })
	}

	m, err := Factories().NewModel(session.Subject{ResModel: ModelPicking, ResID: 1}, f.bus, f.transport)
	require.NoError(t, err)
	f.model = m
	f.picking = m.(*Picking)

	data, err := json.Marshal(map[string]any{"records": pickingRecords(), "line_view_id": 77})
	require.NoError(t, err)
	require.NoError(t, m.SetData(session.Payload{Data: data}))

	var n int
	f.picking.newID = func() string {
		n++
		return fmt.Sprintf("virtual-%d", n)
	}
	return f
}

func (f *fixture) kinds() []session.EventKind {
	out := make([]session.EventKind, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Kind)
	}
	return out
}

func lineByID(lines []session.Line, id int64) session.Line {
	for _, l := range lines {
		if l.ID == id {
			return l
		}
	}
	return session.Line{}
}

func TestFactoriesRequireTransport(t *testing.T) {
	_, err := NewPicking(session.Subject{ResModel: ModelPicking, ResID: 1}, session.NewBus(), nil)
	assert.ErrorIs(t, err, session.ErrNoTransport)
}

func TestSetDataMissingPicking(t *testing.T) {
	m, err := NewPicking(session.Subject{ResModel: ModelPicking, ResID: 5}, session.NewBus(), newFakeTransport())
	require.NoError(t, err)

	data, _ := json.Marshal(map[string]any{"records": pickingRecords()})
	assert.Error(t, m.SetData(session.Payload{Data: data}))
}

func TestPickingLoad(t *testing.T) {
	f := newPickingFixture(t)

	lines := f.model.PageLines()
	require.Len(t, lines, 3, "lines of other transfers are ignored")
	assert.Equal(t, "Bolt M6", lines[0].ProductName)
	assert.Equal(t, "Units", lines[0].UoM)
	assert.Equal(t, "WH/Stock/Shelf 1", lines[1].Location)
	assert.True(t, f.model.HasNote())
	assert.True(t, f.model.CanBeProcessed())
	assert.False(t, f.model.HighlightValidateButton())
	assert.Equal(t, int64(77), f.model.LineFormViewID())
	assert.Equal(t, "WH/Stock", f.picking.SourceLocation())
	assert.Equal(t, "WH/Output", f.picking.DestinationLocation())
}

func TestPickingGroupsLinesOfOneMove(t *testing.T) {
	f := newPickingFixture(t)

	grouped := f.model.GroupedLines()

	require.Len(t, grouped, 2)
	assert.True(t, grouped[0].Group)
	assert.Equal(t, "move-500", grouped[0].VirtualID)
	assert.Equal(t, 5.0, grouped[0].Quantity)
	assert.Len(t, grouped[0].Sublines, 2)
	assert.False(t, grouped[1].Group)
	assert.Equal(t, int64(102), grouped[1].ID)
}

func TestScanProductIncrementsLineAtLocation(t *testing.T) {
	f := newPickingFixture(t)
	ctx := context.Background()

	require.NoError(t, f.model.ProcessBarcode(ctx, "LOC-S1"))
	require.NoError(t, f.model.ProcessBarcode(ctx, "1111"))

	lines := f.model.PageLines()
	assert.Equal(t, 1.0, lineByID(lines, 101).QtyDone)
	assert.True(t, lineByID(lines, 101).Highlighted)
	assert.Zero(t, lineByID(lines, 100).QtyDone)
	assert.Equal(t, []session.EventKind{session.EventUpdate, session.EventUpdate}, f.kinds())

	found, ok := f.picking.FindLineForCurrentLocation()
	require.True(t, ok)
	assert.Equal(t, int64(101), found.ID)
}

func TestScanProductFillsLinesInOrder(t *testing.T) {
	f := newPickingFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.model.ProcessBarcode(ctx, "1111"))
	}

	lines := f.model.PageLines()
	assert.Equal(t, 2.0, lineByID(lines, 100).QtyDone)
	assert.Equal(t, 1.0, lineByID(lines, 101).QtyDone)
}

func TestScanLotSetsLot(t *testing.T) {
	f := newPickingFixture(t)

	require.NoError(t, f.model.ProcessBarcode(context.Background(), "LOT-A"))

	line := lineByID(f.model.PageLines(), 102)
	assert.Equal(t, "LOT-A", line.Lot)
	assert.Equal(t, 1.0, line.QtyDone)
	assert.False(t, f.model.HighlightValidateButton())
}

func TestScanUnknownFetchesFromBackend(t *testing.T) {
	f := newPickingFixture(t)
	f.transport.handle(RouteSpecificBarcode, func(p map[string]any) (any, error) {
		return map[string]any{
			ModelProduct: []any{map[string]any{"id": 12, "display_name": "Washer", "barcode": "3333"}},
		}, nil
	})

	require.NoError(t, f.model.ProcessBarcode(context.Background(), "3333"))

	lines := f.model.PageLines()
	require.Len(t, lines, 4)
	created := lines[3]
	assert.Zero(t, created.ID)
	assert.Equal(t, "virtual-1", created.VirtualID)
	assert.Equal(t, "Washer", created.ProductName)
	assert.Equal(t, 1.0, created.QtyDone)
	assert.Equal(t, "WH/Stock", created.Location)
	assert.Equal(t, "3333", f.transport.calls(RouteSpecificBarcode)[0]["barcode"])
}

func TestScanUnknownEverywhere(t *testing.T) {
	f := newPickingFixture(t)
	f.transport.handle(RouteSpecificBarcode, func(map[string]any) (any, error) {
		return map[string]any{}, nil
	})

	err := f.model.ProcessBarcode(context.Background(), "9999")

	assert.ErrorIs(t, err, ErrUnknownBarcode)
	assert.Equal(t, "", session.UserMessage(err))
	require.Len(t, f.events, 1)
	assert.Equal(t, session.SoundError, f.events[0].Sound)
}

func TestScanPackageNeedsProcessedLine(t *testing.T) {
	f := newPickingFixture(t)
	ctx := context.Background()

	err := f.model.ProcessBarcode(ctx, "PACK-1")
	assert.Contains(t, session.UserMessage(err), "Scan a product before")

	require.NoError(t, f.model.ProcessBarcode(ctx, "1111"))
	require.NoError(t, f.model.ProcessBarcode(ctx, "PACK-1"))

	packages := f.model.PackageLines()
	require.Len(t, packages, 1)
	assert.Equal(t, "PACK-1", packages[0].Name)
	assert.Equal(t, "WH/Output", packages[0].Location)
}

func TestScanDoneTransferRejected(t *testing.T) {
	f := newPickingFixture(t)
	f.picking.cache.picking.State = "done"

	err := f.model.ProcessBarcode(context.Background(), "1111")

	assert.Contains(t, session.UserMessage(err), "done")
	assert.False(t, f.model.CanBeProcessed())
}

func TestMainMenuCommand(t *testing.T) {
	f := newPickingFixture(t)

	require.NoError(t, f.model.ProcessBarcode(context.Background(), CommandMainMenu))

	assert.Equal(t, []session.EventKind{session.EventHistoryBack}, f.kinds())
}

func TestSaveSendsDirtyLines(t *testing.T) {
	f := newPickingFixture(t)
	ctx := context.Background()
	f.transport.handle(RouteSpecificBarcode, func(map[string]any) (any, error) {
		return map[string]any{ModelProduct: []any{map[string]any{"id": 12, "display_name": "Washer", "barcode": "3333"}}}, nil
	})
	f.transport.handle(RouteSaveBarcodeData, func(p map[string]any) (any, error) {
		return map[string]any{ModelMoveLine: []any{
			map[string]any{"id": 100, "picking_id": 1, "move_id": 500, "product_id": 10, "quantity": 2, "qty_done": 1, "location_id": 8},
			map[string]any{"id": 150, "dummy_id": "virtual-1", "picking_id": 1, "product_id": 12, "qty_done": 1, "location_id": 8},
		}}, nil
	})

	require.NoError(t, f.model.ProcessBarcode(ctx, "1111"))
	require.NoError(t, f.model.ProcessBarcode(ctx, "3333"))
	require.NoError(t, f.model.Save(ctx))

	calls := f.transport.calls(RouteSaveBarcodeData)
	require.Len(t, calls, 1)
	assert.Equal(t, "move_line_ids", calls[0]["write_field"])
	commands := calls[0]["write_vals"].([]any)
	require.Len(t, commands, 2)
	assert.Equal(t, []any{1.0, 100.0}, commands[0].([]any)[:2])
	assert.Equal(t, []any{0.0, 0.0}, commands[1].([]any)[:2])
	assert.Equal(t, "virtual-1", commands[1].([]any)[2].(map[string]any)["dummy_id"])

	lines := f.model.PageLines()
	require.Len(t, lines, 4)
	assert.Equal(t, int64(150), lines[3].ID)
	assert.Equal(t, "virtual-1", lines[3].VirtualID, "virtual id survives persistence")

	require.NoError(t, f.model.Save(ctx))
	assert.Len(t, f.transport.calls(RouteSaveBarcodeData), 1, "nothing left to save")
}

func TestSaveFailureKeepsChanges(t *testing.T) {
	f := newPickingFixture(t)
	ctx := context.Background()
	f.transport.handle(RouteSaveBarcodeData, func(map[string]any) (any, error) {
		return nil, errors.New("backend down")
	})

	require.NoError(t, f.model.ProcessBarcode(ctx, "1111"))
	require.Error(t, f.model.Save(ctx))
	require.Error(t, f.model.BeforeQuit(ctx))

	assert.Len(t, f.transport.calls(RouteSaveBarcodeData), 2)
}

func TestScanDuringSaveIsKept(t *testing.T) {
	f := newPickingFixture(t)
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	var saves int
	f.transport.handle(RouteSaveBarcodeData, func(p map[string]any) (any, error) {
		saves++
		if saves == 1 {
			close(started)
			<-release
		}
		vals := p["write_vals"].([]any)[0].([]any)[2].(map[string]any)
		return map[string]any{ModelMoveLine: []any{
			map[string]any{"id": 100, "picking_id": 1, "move_id": 500, "product_id": 10, "quantity": 2, "qty_done": vals["qty_done"], "location_id": 8},
		}}, nil
	})

	require.NoError(t, f.model.ProcessBarcode(ctx, "1111"))
	saved := make(chan error, 1)
	go func() { saved <- f.model.Save(ctx) }()
	<-started
	require.NoError(t, f.model.ProcessBarcode(ctx, "1111"))
	assert.Equal(t, 2.0, lineByID(f.model.PageLines(), 100).QtyDone)
	close(release)
	require.NoError(t, <-saved)

	assert.Equal(t, 2.0, lineByID(f.model.PageLines(), 100).QtyDone, "echo of the first save must not undo the second scan")

	require.NoError(t, f.model.Save(ctx))
	calls := f.transport.calls(RouteSaveBarcodeData)
	require.Len(t, calls, 2)
	vals := calls[1]["write_vals"].([]any)[0].([]any)[2].(map[string]any)
	assert.Equal(t, 2.0, vals["qty_done"])
	assert.Equal(t, 2.0, lineByID(f.model.PageLines(), 100).QtyDone)
}

func TestRefreshCacheKeepsUnsavedQuantities(t *testing.T) {
	f := newPickingFixture(t)
	require.NoError(t, f.model.ProcessBarcode(context.Background(), "1111"))

	records := session.Records{
		ModelMoveLine: json.RawMessage(`[{"id": 100, "picking_id": 1, "product_id": 10, "quantity": 2, "qty_done": 0, "location_id": 8},
			{"id": 101, "picking_id": 1, "product_id": 10, "quantity": 3, "qty_done": 3, "location_id": 12}]`),
	}
	require.NoError(t, f.model.RefreshCache(context.Background(), records))

	lines := f.model.PageLines()
	assert.Equal(t, 1.0, lineByID(lines, 100).QtyDone, "unsaved scan survives")
	assert.Equal(t, 3.0, lineByID(lines, 101).QtyDone, "clean line takes the backend value")
}

func TestRefreshCacheDropsDeletedLines(t *testing.T) {
	f := newPickingFixture(t)

	records := session.Records{
		ModelMoveLine: json.RawMessage(`[{"id": 100, "picking_id": 1, "product_id": 10, "quantity": 2, "qty_done": 2, "location_id": 8}]`),
	}
	require.NoError(t, f.model.RefreshCache(context.Background(), records))

	lines := f.model.PageLines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2.0, lines[0].QtyDone)
	assert.True(t, f.model.HighlightValidateButton())
}

func TestRefreshCacheKeepsUnsavedLines(t *testing.T) {
	f := newPickingFixture(t)
	require.NoError(t, f.model.ProcessBarcode(context.Background(), "LOT-A"))

	records := session.Records{ModelMoveLine: json.RawMessage(`[]`)}
	require.NoError(t, f.model.RefreshCache(context.Background(), records))

	lines := f.model.PageLines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(102), lines[0].ID)
}

func TestDisplayBarcodeLinesHighlights(t *testing.T) {
	f := newPickingFixture(t)

	require.NoError(t, f.model.DisplayBarcodeLines(context.Background(), 102))

	assert.True(t, lineByID(f.model.PageLines(), 102).Highlighted)
}

func TestActionRefresh(t *testing.T) {
	f := newPickingFixture(t)

	req := f.model.ActionRefresh(1)

	assert.Equal(t, RouteBarcodeData, req.Route)
	assert.Equal(t, ModelPicking, req.Params["model"])
	assert.Equal(t, int64(1), req.Params["res_id"])
}

func TestEditedLineParams(t *testing.T) {
	f := newPickingFixture(t)

	params := f.model.EditedLineParams(session.Line{ID: 101})

	assert.Equal(t, int64(101), params.CurrentID)
	assert.Equal(t, ModelMoveLine, params.ResModel)
	assert.Equal(t, int64(77), params.ViewID)
	assert.Equal(t, int64(1), params.Context["default_picking_id"])
}

func TestValidateWithAction(t *testing.T) {
	f := newPickingFixture(t)
	f.transport.handle(routeCallKW+ModelPicking+"/button_validate", func(map[string]any) (any, error) {
		return map[string]any{"type": "ir.actions.act_window", "name": "Create Backorder?"}, nil
	})

	require.NoError(t, f.model.Validate(context.Background()))

	require.Len(t, f.events, 1)
	assert.Equal(t, session.EventProcessAction, f.events[0].Kind)
	assert.Equal(t, "Create Backorder?", f.events[0].Action.Name())
}

func TestValidateCommandLeaves(t *testing.T) {
	f := newPickingFixture(t)
	f.transport.handle(routeCallKW+ModelPicking+"/button_validate", func(map[string]any) (any, error) {
		return true, nil
	})

	require.NoError(t, f.model.ProcessBarcode(context.Background(), CommandValidate))

	assert.Equal(t, []session.EventKind{session.EventPlaySound, session.EventHistoryBack}, f.kinds())
}

func TestPutInPackRefreshes(t *testing.T) {
	f := newPickingFixture(t)
	f.transport.handle(routeCallKW+ModelPicking+"/action_put_in_pack", func(map[string]any) (any, error) {
		return false, nil
	})

	require.NoError(t, f.picking.PutInPack(context.Background()))

	assert.Equal(t, []session.EventKind{session.EventRefresh}, f.kinds())
}

func TestReturnProductsProcessesAction(t *testing.T) {
	f := newPickingFixture(t)
	f.transport.handle(RouteSaveBarcodeData, func(map[string]any) (any, error) {
		return map[string]any{}, nil
	})
	f.transport.handle(routeCallKW+ModelPicking+"/action_return_from_barcode", func(map[string]any) (any, error) {
		return map[string]any{"type": ActionWindow, "name": "Reverse Transfer", "res_model": "stock.return.picking"}, nil
	})
	ctx := context.Background()
	require.NoError(t, f.model.ProcessBarcode(ctx, "1111"))
	f.events = nil

	require.NoError(t, f.picking.ReturnProducts(ctx))

	assert.Len(t, f.transport.calls(RouteSaveBarcodeData), 1, "pending scans are saved first")
	require.Equal(t, []session.EventKind{session.EventProcessAction}, f.kinds())
	assert.Equal(t, "Reverse Transfer", f.events[0].Action.Name())
}

func TestReturnProductsNothingToReturn(t *testing.T) {
	f := newPickingFixture(t)
	f.transport.handle(routeCallKW+ModelPicking+"/action_return_from_barcode", func(map[string]any) (any, error) {
		return false, nil
	})

	err := f.picking.ReturnProducts(context.Background())

	assert.Equal(t, "There is nothing to return.", session.UserMessage(err))
	assert.Empty(t, f.events)
}

func TestCancelNotification(t *testing.T) {
	f := newPickingFixture(t)

	level, msg := f.picking.CancelNotification()

	assert.Equal(t, session.NoticeSuccess, level)
	assert.Equal(t, "WH/IN/00001 has been cancelled.", msg)
}

func TestInventoryNeedsLocation(t *testing.T) {
	bus := session.NewBus()
	m, err := NewInventory(session.Subject{ResModel: ModelQuant}, bus, newFakeTransport())
	require.NoError(t, err)
	_, isPacker := m.(session.Packer)
	assert.False(t, isPacker)

	data, _ := json.Marshal(map[string]any{"records": map[string]any{
		ModelProduct:  []any{map[string]any{"id": 10, "display_name": "Bolt M6", "barcode": "1111"}},
		ModelLocation: []any{map[string]any{"id": 8, "display_name": "WH/Stock", "barcode": "LOC-STOCK"}},
		ModelPackage:  []any{map[string]any{"id": 40, "name": "PACK-1", "location_id": 8}},
		ModelQuant: []any{
			map[string]any{"id": 1, "product_id": 10, "quantity": 5, "location_id": 8},
			map[string]any{"id": 2, "product_id": 10, "quantity": 4, "location_id": 8, "package_id": 40},
		},
	}})
	require.NoError(t, m.SetData(session.Payload{Data: data}))
	ctx := context.Background()

	err = m.ProcessBarcode(ctx, "1111")
	assert.Contains(t, session.UserMessage(err), "Scan a location")

	require.NoError(t, m.ProcessBarcode(ctx, "LOC-STOCK"))
	require.NoError(t, m.ProcessBarcode(ctx, "1111"))
	require.NoError(t, m.ProcessBarcode(ctx, "PACK-1"))

	lines := m.PageLines()
	assert.Equal(t, 1.0, lineByID(lines, 1).QtyDone)
	assert.Equal(t, 4.0, lineByID(lines, 2).QtyDone)
	assert.True(t, m.HighlightValidateButton())
	assert.Equal(t, true, m.NewLineContext()["inventory_mode"])
}

type fakeReader struct {
	model  string
	domain []any
	limit  int
	err    error
}

func (r *fakeReader) SearchRead(ctx context.Context, model string, domain []any, fields []string, limit int, out any) error {
	r.model, r.domain, r.limit = model, domain, limit
	if r.err != nil {
		return r.err
	}
	return json.Unmarshal([]byte(`[{"id": 10}, {"id": 11}]`), out)
}

func TestProductSearcher(t *testing.T) {
	reader := &fakeReader{}
	s := NewProductSearcher(reader)

	ids, err := s.SearchProducts(context.Background(), "m6", 200)

	require.NoError(t, err)
	assert.Equal(t, []session.ProductID{10, 11}, ids)
	assert.Equal(t, ModelProduct, reader.model)
	assert.Equal(t, []any{[]any{"display_name", "ilike", "m6"}}, reader.domain)
	assert.Equal(t, 200, reader.limit)

	reader.err = errors.New("down")
	_, err = s.SearchProducts(context.Background(), "m6", 200)
	assert.Error(t, err)
}
