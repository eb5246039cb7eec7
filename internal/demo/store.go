package demo

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Backend model names served by the demo.
const (
	modelPicking  = "stock.picking"
	modelMoveLine = "stock.move.line"
	modelQuant    = "stock.quant"
	modelProduct  = "product.product"
	modelLocation = "stock.location"
	modelLot      = "stock.lot"
	modelPackage  = "stock.quant.package"

	modelCancelWizard    = "stock_barcode.cancel.operation"
	modelBackorderWizard = "stock.backorder.confirmation"
	modelReturnWizard    = "stock.return.picking"

	actionWindow = "ir.actions.act_window"
)

// Store is the demo warehouse state. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	f      *Fixture
	nextID int64
}

// NewStore serves f. The fixture is owned by the store afterwards.
func NewStore(f *Fixture) *Store {
	s := &Store{f: f}
	highest := int64(0)
	bump := func(id int64) {
		if id > highest {
			highest = id
		}
	}
	for _, p := range f.Packages {
		bump(p.ID)
	}
	for _, p := range f.Pickings {
		bump(p.ID)
		for _, l := range p.Lines {
			bump(l.ID)
		}
	}
	for _, q := range f.Quants {
		bump(q.ID)
	}
	s.nextID = highest + 1
	return s
}

func (s *Store) newID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// BarcodeData returns the initial payload of a session on model/resID.
func (s *Store) BarcodeData(model string, resID int64) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.recordsFor(model, resID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"data": map[string]any{
			"records":      records,
			"line_view_id": s.f.LineViewID,
		},
		"groups": map[string]bool{
			"group_stock_multi_locations": true,
			"group_production_lot":        true,
			"group_tracking_lot":          true,
		},
		"config": map[string]any{"play_sound": true},
	}, nil
}

// SpecificBarcode looks a code up among products, locations, lots and
// packages.
func (s *Store) SpecificBarcode(code string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]any{}
	for _, p := range s.f.Products {
		if p.Barcode == code {
			out[modelProduct] = []any{s.productJSON(p)}
		}
	}
	for _, l := range s.f.Locations {
		if l.Barcode == code {
			out[modelLocation] = []any{s.locationJSON(l)}
		}
	}
	for _, l := range s.f.Lots {
		if l.Name == code {
			out[modelLot] = []any{s.lotJSON(l)}
			if p := s.product(l.Product); p != nil {
				out[modelProduct] = []any{s.productJSON(*p)}
			}
		}
	}
	for _, p := range s.f.Packages {
		if p.Name == code {
			out[modelPackage] = []any{s.packageJSON(p)}
		}
	}
	return out
}

// Save applies line commands ([0, 0, vals] creates, [1, id, vals] updates)
// and returns the subject's records.
func (s *Store) Save(model string, resID int64, commands []any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, raw := range commands {
		cmd, ok := raw.([]any)
		if !ok || len(cmd) != 3 {
			return nil, userError("Malformed write command %v.", raw)
		}
		vals, _ := cmd[2].(map[string]any)
		op, id := toID(cmd[0]), toID(cmd[1])

		var err error
		switch {
		case model == modelPicking && op == 0:
			_, err = s.createMoveLine(resID, vals)
		case model == modelPicking && op == 1:
			err = s.writeMoveLine(id, vals)
		case model == modelQuant && op == 0:
			_, err = s.createQuant(vals)
		case model == modelQuant && op == 1:
			err = s.writeQuant(id, vals)
		default:
			err = userError("Unsupported write command %d on %s.", op, model)
		}
		if err != nil {
			return nil, err
		}
	}
	return s.recordsFor(model, resID)
}

func (s *Store) recordsFor(model string, resID int64) (map[string]any, error) {
	switch model {
	case modelPicking:
		p := s.picking(resID)
		if p == nil {
			return nil, missingError(model, resID)
		}
		lines := make([]any, 0, len(p.Lines))
		for _, l := range p.Lines {
			lines = append(lines, s.moveLineJSON(p, l))
		}
		records := s.referenceRecords()
		records[modelPicking] = []any{s.pickingJSON(*p)}
		records[modelMoveLine] = lines
		return records, nil
	case modelQuant:
		quants := make([]any, 0, len(s.f.Quants))
		for _, q := range s.f.Quants {
			quants = append(quants, s.quantJSON(q))
		}
		records := s.referenceRecords()
		records[modelQuant] = quants
		return records, nil
	default:
		return nil, userError("The barcode application does not handle %s.", model)
	}
}

func (s *Store) referenceRecords() map[string]any {
	products := make([]any, 0, len(s.f.Products))
	for _, p := range s.f.Products {
		products = append(products, s.productJSON(p))
	}
	locations := make([]any, 0, len(s.f.Locations))
	for _, l := range s.f.Locations {
		locations = append(locations, s.locationJSON(l))
	}
	lots := make([]any, 0, len(s.f.Lots))
	for _, l := range s.f.Lots {
		lots = append(lots, s.lotJSON(l))
	}
	packages := make([]any, 0, len(s.f.Packages))
	for _, p := range s.f.Packages {
		packages = append(packages, s.packageJSON(p))
	}
	return map[string]any{
		modelProduct:  products,
		modelLocation: locations,
		modelLot:      lots,
		modelPackage:  packages,
	}
}

// SearchProducts ranks products by name: substring matches first, then
// names holding a word within a few typos of term.
func (s *Store) SearchProducts(term string, limit int) []Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}
	tolerance := len([]rune(term)) / 4

	type hit struct {
		p     Product
		score int
	}
	var hits []hit
	for _, p := range s.f.Products {
		name := strings.ToLower(p.Name)
		if strings.Contains(name, term) {
			hits = append(hits, hit{p, 0})
			continue
		}
		best := -1
		for _, word := range strings.FieldsFunc(name, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			d := levenshtein.ComputeDistance(term, word)
			if best < 0 || d < best {
				best = d
			}
		}
		if best >= 0 && best <= tolerance {
			hits = append(hits, hit{p, best})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return hits[i].p.Name < hits[j].p.Name
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Product, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.p)
	}
	return out
}

// ValidatePicking marks a fully processed transfer done. A partly processed
// one gets the backorder dialog instead.
func (s *Store) ValidatePicking(id int64) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.openPicking(id)
	if err != nil {
		return nil, err
	}
	done, complete := false, true
	for _, l := range p.Lines {
		if l.QtyDone > 0 {
			done = true
		}
		if l.QtyDone < l.Quantity {
			complete = false
		}
	}
	if !done {
		return nil, userError("You cannot validate a transfer if no quantities are reserved nor done.")
	}
	if !complete {
		return map[string]any{
			"type":      actionWindow,
			"name":      "Create Backorder?",
			"res_model": modelBackorderWizard,
			"target":    "new",
			"help":      fmt.Sprintf("%s is not fully processed. The remaining quantities go to a backorder.", p.Name),
			"context":   map[string]any{"default_pick_ids": []int64{p.ID}},
		}, nil
	}
	p.State = "done"
	return true, nil
}

// PutInPack moves the processed lines without a result package into a new
// package.
func (s *Store) PutInPack(id int64) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.openPicking(id)
	if err != nil {
		return nil, err
	}
	var eligible []int
	for i, l := range p.Lines {
		if l.QtyDone > 0 && l.ResultPackage == 0 {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return nil, userError("There is nothing eligible to put in a pack.")
	}
	pkg := Package{ID: s.newID(), Location: p.LocationDest}
	pkg.Name = fmt.Sprintf("PACK%07d", pkg.ID)
	s.f.Packages = append(s.f.Packages, pkg)
	for _, i := range eligible {
		p.Lines[i].ResultPackage = pkg.ID
	}
	return true, nil
}

// CancelAction returns the dialog confirming a transfer cancellation.
func (s *Store) CancelAction(id int64) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.openPicking(id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":      actionWindow,
		"name":      "Cancel this operation?",
		"res_model": modelCancelWizard,
		"target":    "new",
		"help":      fmt.Sprintf("%s will be cancelled. This cannot be undone.", p.Name),
		"context":   map[string]any{"default_picking_id": p.ID},
	}, nil
}

// ReturnAction returns the dialog confirming a return of a done transfer.
func (s *Store) ReturnAction(id int64) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.picking(id)
	if p == nil {
		return nil, missingError(modelPicking, id)
	}
	if p.State != "done" {
		return nil, userError("You can only return a transfer that is done.")
	}
	return map[string]any{
		"type":      actionWindow,
		"name":      "Reverse Transfer",
		"res_model": modelReturnWizard,
		"target":    "new",
		"help":      fmt.Sprintf("A return of %s will be created with the quantities done.", p.Name),
		"context":   map[string]any{"default_picking_id": p.ID},
	}, nil
}

// ApplyCounts sets the stock of the given quants to their counted quantity.
func (s *Store) ApplyCounts(ids []int64) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		return nil, userError("There is no inventory count to apply.")
	}
	for _, id := range ids {
		q := s.quant(id)
		if q == nil {
			return nil, missingError(modelQuant, id)
		}
		q.Quantity, q.Counted = q.Counted, 0
	}
	return true, nil
}

// RunAction executes a dialog action the operator confirmed.
func (s *Store) RunAction(action map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resModel, _ := action["res_model"].(string)
	ctx, _ := action["context"].(map[string]any)
	switch resModel {
	case modelCancelWizard:
		p, err := s.openPicking(toID(ctx["default_picking_id"]))
		if err != nil {
			return nil, err
		}
		p.State = "cancel"
		return map[string]any{"cancelled": true}, nil
	case modelBackorderWizard:
		ids := toIDs(ctx["default_pick_ids"])
		if len(ids) == 0 {
			return nil, userError("No transfer to validate.")
		}
		p, err := s.openPicking(ids[0])
		if err != nil {
			return nil, err
		}
		s.createBackorder(p)
		p.State = "done"
		return map[string]any{
			"cancelled": false,
			"refresh":   map[string]any{"record_id": p.ID, "line_id": 0},
		}, nil
	case modelReturnWizard:
		p := s.picking(toID(ctx["default_picking_id"]))
		if p == nil {
			return nil, missingError(modelPicking, toID(ctx["default_picking_id"]))
		}
		if !s.createReturn(p) {
			return nil, userError("%s has nothing to return.", p.Name)
		}
		return map[string]any{"cancelled": false}, nil
	default:
		return nil, userError("The demo backend cannot run %q.", action["name"])
	}
}

// createReturn adds a transfer sending the done quantities of p back to
// where they came from. It reports false when nothing was done.
func (s *Store) createReturn(p *Picking) bool {
	ret := Picking{
		ID:           s.newID(),
		Name:         p.Name + "-RET",
		State:        "assigned",
		Location:     p.LocationDest,
		LocationDest: p.Location,
	}
	for _, l := range p.Lines {
		if l.QtyDone <= 0 {
			continue
		}
		l.ID, l.Quantity, l.QtyDone, l.ResultPackage = s.newID(), l.QtyDone, 0, 0
		l.Location, l.LocationDest = l.LocationDest, l.Location
		ret.Lines = append(ret.Lines, l)
	}
	if len(ret.Lines) == 0 {
		return false
	}
	s.f.Pickings = append(s.f.Pickings, ret)
	return true
}

// createBackorder moves what is left to process into a new transfer.
func (s *Store) createBackorder(p *Picking) {
	bo := Picking{
		ID:           s.newID(),
		Name:         p.Name + "-BO",
		State:        "assigned",
		Location:     p.Location,
		LocationDest: p.LocationDest,
	}
	for i, l := range p.Lines {
		if rest := l.Quantity - l.QtyDone; rest > 0 {
			l.ID, l.Quantity, l.QtyDone, l.ResultPackage = s.newID(), rest, 0, 0
			bo.Lines = append(bo.Lines, l)
			p.Lines[i].Quantity = p.Lines[i].QtyDone
		}
	}
	if len(bo.Lines) > 0 {
		s.f.Pickings = append(s.f.Pickings, bo)
	}
}

// Line model methods used by the product form.

// WriteLine updates one line of model.
func (s *Store) WriteLine(model string, id int64, vals map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model == modelQuant {
		return s.writeQuant(id, vals)
	}
	return s.writeMoveLine(id, vals)
}

// CreateLine creates a line of model and returns its id.
func (s *Store) CreateLine(model string, vals map[string]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model == modelQuant {
		return s.createQuant(vals)
	}
	return s.createMoveLine(toID(vals["picking_id"]), vals)
}

// UnlinkLines deletes lines of model.
func (s *Store) UnlinkLines(model string, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	removed := 0
	if model == modelQuant {
		kept := s.f.Quants[:0]
		for _, q := range s.f.Quants {
			if drop[q.ID] {
				removed++
				continue
			}
			kept = append(kept, q)
		}
		s.f.Quants = kept
	} else {
		for i := range s.f.Pickings {
			p := &s.f.Pickings[i]
			kept := p.Lines[:0]
			for _, l := range p.Lines {
				if drop[l.ID] {
					removed++
					continue
				}
				kept = append(kept, l)
			}
			p.Lines = kept
		}
	}
	if removed == 0 {
		return missingError(model, ids[0])
	}
	return nil
}

func (s *Store) createMoveLine(pickingID int64, vals map[string]any) (int64, error) {
	p, err := s.openPicking(pickingID)
	if err != nil {
		return 0, err
	}
	l := MoveLine{
		ID:           s.newID(),
		Location:     p.Location,
		LocationDest: p.LocationDest,
	}
	applyMoveLineVals(&l, vals)
	if s.product(l.Product) == nil {
		return 0, userError("A line needs a product.")
	}
	p.Lines = append(p.Lines, l)
	return l.ID, nil
}

func (s *Store) writeMoveLine(id int64, vals map[string]any) error {
	for i := range s.f.Pickings {
		p := &s.f.Pickings[i]
		for j := range p.Lines {
			if p.Lines[j].ID != id {
				continue
			}
			if p.State == "done" || p.State == "cancel" {
				return userError("%s is %s and cannot be changed.", p.Name, p.State)
			}
			applyMoveLineVals(&p.Lines[j], vals)
			return nil
		}
	}
	return missingError(modelMoveLine, id)
}

func applyMoveLineVals(l *MoveLine, vals map[string]any) {
	for k, v := range vals {
		switch k {
		case "product_id":
			l.Product = toID(v)
		case "qty_done":
			l.QtyDone = toFloat(v)
		case "location_id":
			if id := toID(v); id != 0 {
				l.Location = id
			}
		case "location_dest_id":
			if id := toID(v); id != 0 {
				l.LocationDest = id
			}
		case "lot_id":
			l.Lot = toID(v)
		case "result_package_id":
			l.ResultPackage = toID(v)
		case "dummy_id":
			l.DummyID, _ = v.(string)
		}
	}
}

func (s *Store) createQuant(vals map[string]any) (int64, error) {
	q := Quant{ID: s.newID()}
	applyQuantVals(&q, vals)
	if s.product(q.Product) == nil {
		return 0, userError("A count needs a product.")
	}
	if q.Location == 0 && len(s.f.Locations) > 0 {
		q.Location = s.f.Locations[0].ID
	}
	s.f.Quants = append(s.f.Quants, q)
	return q.ID, nil
}

func (s *Store) writeQuant(id int64, vals map[string]any) error {
	q := s.quant(id)
	if q == nil {
		return missingError(modelQuant, id)
	}
	applyQuantVals(q, vals)
	return nil
}

func applyQuantVals(q *Quant, vals map[string]any) {
	for k, v := range vals {
		switch k {
		case "product_id":
			q.Product = toID(v)
		case "inventory_quantity":
			q.Counted = toFloat(v)
		case "location_id":
			if id := toID(v); id != 0 {
				q.Location = id
			}
		case "lot_id":
			q.Lot = toID(v)
		case "package_id":
			q.Package = toID(v)
		case "dummy_id":
			q.DummyID, _ = v.(string)
		}
	}
}

func (s *Store) openPicking(id int64) (*Picking, error) {
	p := s.picking(id)
	if p == nil {
		return nil, missingError(modelPicking, id)
	}
	if p.State == "done" || p.State == "cancel" {
		return nil, userError("%s is %s and cannot be changed.", p.Name, p.State)
	}
	return p, nil
}

func (s *Store) picking(id int64) *Picking {
	for i := range s.f.Pickings {
		if s.f.Pickings[i].ID == id {
			return &s.f.Pickings[i]
		}
	}
	return nil
}

func (s *Store) quant(id int64) *Quant {
	for i := range s.f.Quants {
		if s.f.Quants[i].ID == id {
			return &s.f.Quants[i]
		}
	}
	return nil
}

func (s *Store) product(id int64) *Product {
	for i := range s.f.Products {
		if s.f.Products[i].ID == id {
			return &s.f.Products[i]
		}
	}
	return nil
}

func (s *Store) locationName(id int64) string {
	for _, l := range s.f.Locations {
		if l.ID == id {
			return l.Name
		}
	}
	return ""
}

// toID reads an id from a decoded JSON value. false and null are no id.
func toID(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case []any:
		if len(n) > 0 {
			return toID(n[0])
		}
	}
	return 0
}

func toIDs(v any) []int64 {
	switch list := v.(type) {
	case []int64:
		return list
	case []any:
		out := make([]int64, 0, len(list))
		for _, item := range list {
			if id := toID(item); id != 0 {
				out = append(out, id)
			}
		}
		return out
	}
	return nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
