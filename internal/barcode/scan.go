package barcode

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/session"
)

func newVirtualID() string {
	return uuid.NewString()
}

type matchKind int

const (
	matchNone matchKind = iota
	matchProduct
	matchLocation
	matchLot
	matchPackage
)

type match struct {
	kind matchKind
	id   int64
}

// resolve looks code up in the cache. Callers hold mu.
func (m *RemoteModel) resolve(code string) match {
	c := m.cache
	if id, ok := c.productByBarcode[code]; ok {
		return match{matchProduct, id}
	}
	if id, ok := c.locationByBarcode[code]; ok {
		return match{matchLocation, id}
	}
	if id, ok := c.packageByName[code]; ok {
		return match{matchPackage, id}
	}
	if id, ok := c.lotByName[code]; ok {
		return match{matchLot, id}
	}
	return match{}
}

// ProcessBarcode applies a scanned code to the cached lines. Codes the cache
// does not know are looked up on the backend once.
func (m *RemoteModel) ProcessBarcode(ctx context.Context, code string) error {
	switch code {
	case CommandMainMenu:
		m.publish(session.Event{Kind: session.EventHistoryBack})
		return nil
	case CommandValidate:
		return m.Validate(ctx)
	}

	m.mu.Lock()
	found := m.resolve(code)
	m.mu.Unlock()

	if found.kind == matchNone {
		if err := m.fetch(ctx, code); err != nil {
			m.publish(session.Event{Kind: session.EventPlaySound, Sound: session.SoundError})
			return err
		}
		m.mu.Lock()
		found = m.resolve(code)
		m.mu.Unlock()
	}
	if found.kind == matchNone {
		m.publish(session.Event{Kind: session.EventPlaySound, Sound: session.SoundError})
		return fmt.Errorf("%w: %s", ErrUnknownBarcode, code)
	}

	m.mu.Lock()
	err := m.apply(found)
	m.mu.Unlock()

	if err != nil {
		m.publish(session.Event{Kind: session.EventPlaySound, Sound: session.SoundError})
		return err
	}
	m.publish(session.Event{Kind: session.EventUpdate})
	return nil
}

// fetch asks the backend for the records behind code and merges them.
func (m *RemoteModel) fetch(ctx context.Context, code string) error {
	var records session.Records
	params := map[string]any{"barcode": code, "model_name": m.kind.subjectModel}
	if err := m.transport.Call(ctx, RouteSpecificBarcode, params, &records); err != nil {
		return fmt.Errorf("look up barcode %s: %w", code, err)
	}
	logging.Debug("Fetched barcode records",
		zap.String("subject", m.subject.String()),
		zap.String("barcode", code),
		zap.Int("models", len(records)),
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.merge(records, false, m.isDirty)
}

// apply mutates the cache for a resolved code. Callers hold mu.
func (m *RemoteModel) apply(found match) error {
	if p := m.cache.picking; p != nil && (p.State == "done" || p.State == "cancel") {
		return session.NewUserError("This transfer is %s and cannot be changed.", p.State)
	}
	switch found.kind {
	case matchLocation:
		return m.applyLocation(found.id)
	case matchProduct:
		return m.applyProduct(found.id, 0)
	case matchLot:
		lot := m.cache.lots[found.id]
		if lot.Product.ID == 0 {
			return session.NewUserError("Lot %s has no product.", lot.Name)
		}
		return m.applyProduct(lot.Product.ID, lot.ID)
	case matchPackage:
		return m.applyPackage(found.id)
	}
	return nil
}

func (m *RemoteModel) applyLocation(id int64) error {
	// A location scanned after processing a line is that line's destination.
	if m.kind.lineModel == ModelMoveLine {
		if e := m.cache.highlightedLine(); e != nil && e.rec.QtyDone > 0 && m.location != 0 && id != m.location {
			e.rec.LocationDest = Ref{ID: id, Name: m.cache.locationName(Ref{ID: id})}
			m.markDirty(e)
			return nil
		}
	}
	m.location = id
	m.cache.highlight(nil)
	return nil
}

func (m *RemoteModel) applyProduct(productID, lotID int64) error {
	product, known := m.cache.products[productID]
	if known && product.Tracking == TrackingSerial && lotID != 0 {
		for _, e := range m.cache.lines {
			if e.rec.Lot.ID == lotID && m.done(e) > 0 {
				return session.NewUserError("The serial number %s is already used.", m.cache.lotName(Ref{ID: lotID}))
			}
		}
	}
	if m.kind.lineModel == ModelQuant && m.location == 0 {
		return session.NewUserError("Scan a location before counting products.")
	}

	e := m.bestLine(productID, lotID)
	if e == nil {
		e = m.newLine(productID, lotID)
	}
	if lotID != 0 && e.rec.Lot.ID == 0 {
		e.rec.Lot = Ref{ID: lotID}
	}
	m.addDone(e, 1)
	m.cache.highlight(e)
	m.markDirty(e)
	return nil
}

// bestLine picks the line a product scan should increment: the highlighted
// line if it fits, else the first unfinished line at the current location,
// else the first unfinished line anywhere.
func (m *RemoteModel) bestLine(productID, lotID int64) *entry {
	fits := func(e *entry) bool {
		if e.rec.Product.ID != productID {
			return false
		}
		if lotID != 0 && e.rec.Lot.ID != 0 && e.rec.Lot.ID != lotID {
			return false
		}
		if m.kind.lineModel == ModelQuant && e.rec.Location.ID != m.location {
			return false
		}
		return true
	}
	open := func(e *entry) bool {
		return m.kind.lineModel == ModelQuant || e.rec.Quantity == 0 || e.rec.QtyDone < e.rec.Quantity
	}

	if e := m.cache.highlightedLine(); e != nil && fits(e) && open(e) {
		return e
	}
	var anywhere *entry
	for _, e := range m.cache.lines {
		if !fits(e) || !open(e) {
			continue
		}
		if m.location == 0 || e.rec.Location.ID == m.location {
			return e
		}
		if anywhere == nil {
			anywhere = e
		}
	}
	return anywhere
}

func (m *RemoteModel) newLine(productID, lotID int64) *entry {
	rec := lineRecord{
		Product: Ref{ID: productID, Name: m.cache.productName(Ref{ID: productID})},
		Lot:     Ref{ID: lotID},
	}
	rec.Location = Ref{ID: m.location}
	if p := m.cache.picking; p != nil {
		rec.Picking = Ref{ID: p.ID}
		rec.LocationDest = p.LocationDest
		if rec.Location.ID == 0 {
			rec.Location = p.Location
		}
	}
	if product, ok := m.cache.products[productID]; ok {
		rec.UoM = product.UoM
	}
	e := &entry{rec: rec, virtualID: m.newID()}
	m.cache.lines = append(m.cache.lines, e)
	return e
}

func (m *RemoteModel) applyPackage(id int64) error {
	pkg := m.cache.packages[id]
	if m.kind.lineModel == ModelQuant {
		// Scanning a package counts its whole content.
		n := 0
		for _, e := range m.cache.lines {
			if e.rec.Package.ID == id {
				e.rec.Counted = e.rec.Quantity
				m.markDirty(e)
				n++
			}
		}
		if n == 0 {
			return session.NewUserError("Package %s is empty.", pkg.Name)
		}
		m.location = pkg.Location.ID
		return nil
	}

	e := m.cache.highlightedLine()
	if e == nil || e.rec.QtyDone == 0 {
		return session.NewUserError("Scan a product before the destination package %s.", pkg.Name)
	}
	e.rec.ResultPackage = Ref{ID: id, Name: pkg.Name}
	m.markDirty(e)
	return nil
}

func (m *RemoteModel) done(e *entry) float64 {
	if m.kind.lineModel == ModelQuant {
		return e.rec.Counted
	}
	return e.rec.QtyDone
}

func (m *RemoteModel) addDone(e *entry, qty float64) {
	if m.kind.lineModel == ModelQuant {
		e.rec.Counted += qty
		return
	}
	e.rec.QtyDone += qty
}
