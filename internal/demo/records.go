package demo

// Records go out in the shapes the real backend uses: references as
// [id, name] pairs, bare ids or objects depending on the field.

func ref(id int64, name string) any {
	if id == 0 {
		return false
	}
	return []any{id, name}
}

const uomUnits = 1

func (s *Store) productJSON(p Product) map[string]any {
	uom := p.UoM
	if uom == "" {
		uom = "Units"
	}
	tracking := p.Tracking
	if tracking == "" {
		tracking = "none"
	}
	return map[string]any{
		"id":           p.ID,
		"display_name": p.Name,
		"barcode":      p.Barcode,
		"tracking":     tracking,
		"uom_id":       ref(uomUnits, uom),
	}
}

func (s *Store) locationJSON(l Location) map[string]any {
	return map[string]any{
		"id":           l.ID,
		"display_name": l.Name,
		"barcode":      l.Barcode,
	}
}

func (s *Store) lotJSON(l Lot) map[string]any {
	return map[string]any{
		"id":         l.ID,
		"name":       l.Name,
		"product_id": s.productRef(l.Product),
	}
}

func (s *Store) packageJSON(p Package) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"location_id": ref(p.Location, s.locationName(p.Location)),
	}
}

func (s *Store) pickingJSON(p Picking) map[string]any {
	return map[string]any{
		"id":               p.ID,
		"name":             p.Name,
		"state":            p.State,
		"note":             p.Note,
		"location_id":      ref(p.Location, s.locationName(p.Location)),
		"location_dest_id": ref(p.LocationDest, s.locationName(p.LocationDest)),
	}
}

func (s *Store) moveLineJSON(p *Picking, l MoveLine) map[string]any {
	rec := map[string]any{
		"id":                l.ID,
		"picking_id":        p.ID,
		"move_id":           idOrFalse(l.Move),
		"product_id":        s.productRef(l.Product),
		"product_uom_id":    ref(uomUnits, s.uomName(l.Product)),
		"quantity":          l.Quantity,
		"qty_done":          l.QtyDone,
		"location_id":       ref(l.Location, s.locationName(l.Location)),
		"location_dest_id":  ref(l.LocationDest, s.locationName(l.LocationDest)),
		"lot_id":            s.lotObject(l.Lot),
		"package_id":        s.packageRef(l.Package),
		"result_package_id": s.packageRef(l.ResultPackage),
	}
	if l.DummyID != "" {
		rec["dummy_id"] = l.DummyID
	}
	return rec
}

func (s *Store) quantJSON(q Quant) map[string]any {
	rec := map[string]any{
		"id":                 q.ID,
		"product_id":         s.productRef(q.Product),
		"product_uom_id":     ref(uomUnits, s.uomName(q.Product)),
		"quantity":           q.Quantity,
		"inventory_quantity": q.Counted,
		"location_id":        ref(q.Location, s.locationName(q.Location)),
		"lot_id":             s.lotObject(q.Lot),
		"package_id":         s.packageRef(q.Package),
	}
	if q.DummyID != "" {
		rec["dummy_id"] = q.DummyID
	}
	return rec
}

func (s *Store) productRef(id int64) any {
	if p := s.product(id); p != nil {
		return ref(p.ID, p.Name)
	}
	return idOrFalse(id)
}

func (s *Store) uomName(productID int64) string {
	if p := s.product(productID); p != nil && p.UoM != "" {
		return p.UoM
	}
	return "Units"
}

// lotObject writes lots as {id, display_name} objects.
func (s *Store) lotObject(id int64) any {
	for _, l := range s.f.Lots {
		if l.ID == id {
			return map[string]any{"id": l.ID, "display_name": l.Name}
		}
	}
	return false
}

func (s *Store) packageRef(id int64) any {
	for _, p := range s.f.Packages {
		if p.ID == id {
			return ref(p.ID, p.Name)
		}
	}
	return idOrFalse(id)
}

func idOrFalse(id int64) any {
	if id == 0 {
		return false
	}
	return id
}
