package demo

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultFixture []byte

// Fixture is the warehouse the demo backend serves. Records reference each
// other by id.
type Fixture struct {
	LineViewID int64      `yaml:"line_view_id"`
	Products   []Product  `yaml:"products" validate:"dive"`
	Locations  []Location `yaml:"locations" validate:"dive"`
	Lots       []Lot      `yaml:"lots" validate:"dive"`
	Packages   []Package  `yaml:"packages" validate:"dive"`
	Pickings   []Picking  `yaml:"pickings" validate:"dive"`
	Quants     []Quant    `yaml:"quants" validate:"dive"`
}

type Product struct {
	ID       int64  `yaml:"id" validate:"gt=0"`
	Name     string `yaml:"name" validate:"required"`
	Barcode  string `yaml:"barcode"`
	Tracking string `yaml:"tracking" validate:"omitempty,oneof=none lot serial"`
	UoM      string `yaml:"uom"`
}

type Location struct {
	ID      int64  `yaml:"id" validate:"gt=0"`
	Name    string `yaml:"name" validate:"required"`
	Barcode string `yaml:"barcode"`
}

type Lot struct {
	ID      int64  `yaml:"id" validate:"gt=0"`
	Name    string `yaml:"name" validate:"required"`
	Product int64  `yaml:"product" validate:"gt=0"`
}

type Package struct {
	ID       int64  `yaml:"id" validate:"gt=0"`
	Name     string `yaml:"name" validate:"required"`
	Location int64  `yaml:"location"`
}

type Picking struct {
	ID           int64      `yaml:"id" validate:"gt=0"`
	Name         string     `yaml:"name" validate:"required"`
	State        string     `yaml:"state" validate:"omitempty,oneof=draft assigned done cancel"`
	Note         string     `yaml:"note"`
	Location     int64      `yaml:"location" validate:"gt=0"`
	LocationDest int64      `yaml:"location_dest" validate:"gt=0"`
	Lines        []MoveLine `yaml:"lines" validate:"dive"`
}

type MoveLine struct {
	ID            int64   `yaml:"id" validate:"gt=0"`
	Move          int64   `yaml:"move"`
	Product       int64   `yaml:"product" validate:"gt=0"`
	Quantity      float64 `yaml:"quantity" validate:"gte=0"`
	QtyDone       float64 `yaml:"qty_done" validate:"gte=0"`
	Location      int64   `yaml:"location"`
	LocationDest  int64   `yaml:"location_dest"`
	Lot           int64   `yaml:"lot"`
	Package       int64   `yaml:"package"`
	ResultPackage int64   `yaml:"result_package"`
	DummyID       string  `yaml:"-"`
}

type Quant struct {
	ID       int64   `yaml:"id" validate:"gt=0"`
	Product  int64   `yaml:"product" validate:"gt=0"`
	Location int64   `yaml:"location" validate:"gt=0"`
	Quantity float64 `yaml:"quantity"`
	Counted  float64 `yaml:"inventory_quantity" validate:"gte=0"`
	Lot      int64   `yaml:"lot"`
	Package  int64   `yaml:"package"`
	DummyID  string  `yaml:"-"`
}

// ParseFixture decodes and checks a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	if err := f.checkReferences(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	for i := range f.Pickings {
		if f.Pickings[i].State == "" {
			f.Pickings[i].State = "assigned"
		}
	}
	return &f, nil
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// DefaultFixture returns the built-in warehouse.
func DefaultFixture() *Fixture {
	f, err := ParseFixture(defaultFixture)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Fixture) checkReferences() error {
	products := make(map[int64]bool, len(f.Products))
	for _, p := range f.Products {
		if products[p.ID] {
			return fmt.Errorf("duplicate product %d", p.ID)
		}
		products[p.ID] = true
	}
	locations := make(map[int64]bool, len(f.Locations))
	for _, l := range f.Locations {
		locations[l.ID] = true
	}

	ref := func(kind string, id int64, known map[int64]bool) error {
		if id != 0 && !known[id] {
			return fmt.Errorf("unknown %s %d", kind, id)
		}
		return nil
	}
	for _, l := range f.Lots {
		if err := ref("product", l.Product, products); err != nil {
			return fmt.Errorf("lot %s: %w", l.Name, err)
		}
	}
	for _, p := range f.Pickings {
		if err := ref("location", p.Location, locations); err != nil {
			return fmt.Errorf("picking %s: %w", p.Name, err)
		}
		if err := ref("location", p.LocationDest, locations); err != nil {
			return fmt.Errorf("picking %s: %w", p.Name, err)
		}
		for _, l := range p.Lines {
			if err := ref("product", l.Product, products); err != nil {
				return fmt.Errorf("picking %s line %d: %w", p.Name, l.ID, err)
			}
		}
	}
	for _, q := range f.Quants {
		if err := ref("product", q.Product, products); err != nil {
			return fmt.Errorf("quant %d: %w", q.ID, err)
		}
		if err := ref("location", q.Location, locations); err != nil {
			return fmt.Errorf("quant %d: %w", q.ID, err)
		}
	}
	return nil
}
