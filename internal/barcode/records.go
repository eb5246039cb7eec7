package barcode

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ref is a many2one reference as the backend sends it. It decodes from a
// bare id, an [id, label] pair, an {id, display_name} object, or false/null
// for no reference.
type Ref struct {
	ID   int64
	Name string
}

// UnmarshalJSON accepts every shape the backend uses for references.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = Ref{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte("false")) {
		return nil
	}

	switch data[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("reference pair: %w", err)
		}
		if len(pair) == 0 {
			return nil
		}
		if err := json.Unmarshal(pair[0], &r.ID); err != nil {
			return fmt.Errorf("reference id: %w", err)
		}
		if len(pair) > 1 {
			_ = json.Unmarshal(pair[1], &r.Name)
		}
		return nil
	case '{':
		var obj struct {
			ID          int64  `json:"id"`
			DisplayName string `json:"display_name"`
			Name        string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("reference object: %w", err)
		}
		r.ID = obj.ID
		r.Name = obj.DisplayName
		if r.Name == "" {
			r.Name = obj.Name
		}
		return nil
	default:
		if err := json.Unmarshal(data, &r.ID); err != nil {
			return fmt.Errorf("reference id: %w", err)
		}
		return nil
	}
}

// MarshalJSON writes the id, or false when the reference is empty.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.ID == 0 {
		return []byte("false"), nil
	}
	return json.Marshal(r.ID)
}

// Backend model names.
const (
	ModelPicking  = "stock.picking"
	ModelMoveLine = "stock.move.line"
	ModelQuant    = "stock.quant"
	ModelProduct  = "product.product"
	ModelLocation = "stock.location"
	ModelLot      = "stock.lot"
	ModelPackage  = "stock.quant.package"
)

// Product tracking modes.
const (
	TrackingNone   = "none"
	TrackingLot    = "lot"
	TrackingSerial = "serial"
)

type productRecord struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Barcode     string `json:"barcode"`
	Tracking    string `json:"tracking"`
	UoM         Ref    `json:"uom_id"`
}

type locationRecord struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Barcode     string `json:"barcode"`
}

type lotRecord struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Product Ref    `json:"product_id"`
}

type packageRecord struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location Ref    `json:"location_id"`
}

type pickingRecord struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	State        string `json:"state"`
	Note         string `json:"note"`
	Location     Ref    `json:"location_id"`
	LocationDest Ref    `json:"location_dest_id"`
}

// lineRecord covers both move lines and quants. For move lines Quantity is
// the reserved demand and QtyDone the processed amount; for quants Quantity
// is the stock on hand and Counted the inventory quantity.
type lineRecord struct {
	ID            int64   `json:"id"`
	DummyID       string  `json:"dummy_id,omitempty"`
	Picking       Ref     `json:"picking_id"`
	Move          Ref     `json:"move_id"`
	Product       Ref     `json:"product_id"`
	UoM           Ref     `json:"product_uom_id"`
	Quantity      float64 `json:"quantity"`
	QtyDone       float64 `json:"qty_done"`
	Counted       float64 `json:"inventory_quantity"`
	Location      Ref     `json:"location_id"`
	LocationDest  Ref     `json:"location_dest_id"`
	Lot           Ref     `json:"lot_id"`
	Package       Ref     `json:"package_id"`
	ResultPackage Ref     `json:"result_package_id"`
}

// payloadData is the "data" member of the initial load.
type payloadData struct {
	Records    map[string]json.RawMessage `json:"records"`
	LineViewID int64                      `json:"line_view_id"`
}
