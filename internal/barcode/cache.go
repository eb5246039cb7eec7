package barcode

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mhma/stockbarcode/internal/session"
)

// entry is one cached line. Lines created by a scan carry a virtual id until
// the backend returns them with the same dummy_id.
type entry struct {
	rec         lineRecord
	virtualID   string
	highlighted bool
}

func (e *entry) key() string {
	if e.virtualID != "" {
		return e.virtualID
	}
	return strconv.FormatInt(e.rec.ID, 10)
}

// cache holds the backend records of one session. It is not safe for
// concurrent use; RemoteModel guards it.
type cache struct {
	lineModel string
	subjectID int64

	picking   *pickingRecord
	products  map[int64]productRecord
	locations map[int64]locationRecord
	lots      map[int64]lotRecord
	packages  map[int64]packageRecord

	productByBarcode  map[string]int64
	locationByBarcode map[string]int64
	lotByName         map[string]int64
	packageByName     map[string]int64

	lines []*entry
}

func newCache(lineModel string, subjectID int64) *cache {
	return &cache{
		lineModel:         lineModel,
		subjectID:         subjectID,
		products:          make(map[int64]productRecord),
		locations:         make(map[int64]locationRecord),
		lots:              make(map[int64]lotRecord),
		packages:          make(map[int64]packageRecord),
		productByBarcode:  make(map[string]int64),
		locationByBarcode: make(map[string]int64),
		lotByName:         make(map[string]int64),
		packageByName:     make(map[string]int64),
	}
}

func decodeList[T any](records map[string]json.RawMessage, model string) ([]T, bool, error) {
	raw, ok := records[model]
	if !ok {
		return nil, false, nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, true, fmt.Errorf("decode %s records: %w", model, err)
	}
	return list, true, nil
}

// merge upserts records by id. Lines for which local reports true hold
// unsaved changes: they only adopt the id the backend assigned and are never
// pruned. When prune is set and the response carries the line model, other
// persisted lines missing from it are dropped.
func (c *cache) merge(records map[string]json.RawMessage, prune bool, local func(*entry) bool) error {
	products, _, err := decodeList[productRecord](records, ModelProduct)
	if err != nil {
		return err
	}
	for _, p := range products {
		c.products[p.ID] = p
		if p.Barcode != "" {
			c.productByBarcode[p.Barcode] = p.ID
		}
	}

	locations, _, err := decodeList[locationRecord](records, ModelLocation)
	if err != nil {
		return err
	}
	for _, l := range locations {
		c.locations[l.ID] = l
		if l.Barcode != "" {
			c.locationByBarcode[l.Barcode] = l.ID
		}
	}

	lots, _, err := decodeList[lotRecord](records, ModelLot)
	if err != nil {
		return err
	}
	for _, l := range lots {
		c.lots[l.ID] = l
		c.lotByName[l.Name] = l.ID
	}

	packages, _, err := decodeList[packageRecord](records, ModelPackage)
	if err != nil {
		return err
	}
	for _, p := range packages {
		c.packages[p.ID] = p
		c.packageByName[p.Name] = p.ID
	}

	pickings, _, err := decodeList[pickingRecord](records, ModelPicking)
	if err != nil {
		return err
	}
	for i := range pickings {
		if pickings[i].ID == c.subjectID {
			c.picking = &pickings[i]
		}
	}

	lines, present, err := decodeList[lineRecord](records, c.lineModel)
	if err != nil {
		return err
	}
	if present {
		c.mergeLines(lines, prune, local)
	}
	return nil
}

func (c *cache) mergeLines(lines []lineRecord, prune bool, local func(*entry) bool) {
	isLocal := func(e *entry) bool { return local != nil && local(e) }
	seen := make(map[int64]bool, len(lines))
	for _, rec := range lines {
		if c.lineModel == ModelMoveLine && c.subjectID != 0 && rec.Picking.ID != 0 && rec.Picking.ID != c.subjectID {
			continue
		}
		seen[rec.ID] = true
		e := c.lineByID(rec.ID)
		if e == nil && rec.DummyID != "" {
			e = c.lineByVirtualID(rec.DummyID)
		}
		switch {
		case e == nil:
			c.lines = append(c.lines, &entry{rec: rec, virtualID: rec.DummyID})
		case isLocal(e):
			e.rec.ID = rec.ID
		default:
			e.rec = rec
		}
	}

	if !prune {
		return
	}
	kept := c.lines[:0]
	for _, e := range c.lines {
		if e.rec.ID == 0 || seen[e.rec.ID] || isLocal(e) {
			kept = append(kept, e)
		}
	}
	c.lines = kept
}

func (c *cache) lineByID(id int64) *entry {
	if id == 0 {
		return nil
	}
	for _, e := range c.lines {
		if e.rec.ID == id {
			return e
		}
	}
	return nil
}

func (c *cache) lineByVirtualID(vid string) *entry {
	if vid == "" {
		return nil
	}
	for _, e := range c.lines {
		if e.virtualID == vid {
			return e
		}
	}
	return nil
}

func (c *cache) lineByKey(key string) *entry {
	for _, e := range c.lines {
		if e.key() == key {
			return e
		}
	}
	return nil
}

func (c *cache) highlight(e *entry) {
	for _, l := range c.lines {
		l.highlighted = l == e
	}
}

func (c *cache) highlightedLine() *entry {
	for _, e := range c.lines {
		if e.highlighted {
			return e
		}
	}
	return nil
}

func (c *cache) locationName(ref Ref) string {
	if l, ok := c.locations[ref.ID]; ok {
		return l.DisplayName
	}
	return ref.Name
}

func (c *cache) productName(ref Ref) string {
	if p, ok := c.products[ref.ID]; ok {
		return p.DisplayName
	}
	return ref.Name
}

func (c *cache) lotName(ref Ref) string {
	if l, ok := c.lots[ref.ID]; ok {
		return l.Name
	}
	return ref.Name
}

func (c *cache) packageName(ref Ref) string {
	if p, ok := c.packages[ref.ID]; ok {
		return p.Name
	}
	return ref.Name
}

// toLine converts an entry for display. For quants the counted quantity is
// reported as done.
func (c *cache) toLine(e *entry) session.Line {
	rec := e.rec
	done := rec.QtyDone
	if c.lineModel == ModelQuant {
		done = rec.Counted
	}
	pkg := rec.ResultPackage
	if pkg.ID == 0 {
		pkg = rec.Package
	}
	uom := c.uomName(rec)
	return session.Line{
		ID:           rec.ID,
		VirtualID:    e.virtualID,
		Product:      session.ProductID(rec.Product.ID),
		ProductName:  c.productName(rec.Product),
		Barcode:      c.products[rec.Product.ID].Barcode,
		Quantity:     rec.Quantity,
		QtyDone:      done,
		UoM:          uom,
		Location:     c.locationName(rec.Location),
		LocationDest: c.locationName(rec.LocationDest),
		Lot:          c.lotName(rec.Lot),
		PackageID:    pkg.ID,
		PackageName:  c.packageName(pkg),
		Highlighted:  e.highlighted,
	}
}

func (c *cache) uomName(rec lineRecord) string {
	if rec.UoM.Name != "" {
		return rec.UoM.Name
	}
	return c.products[rec.Product.ID].UoM.Name
}
