package session

import (
	"encoding/json"
	"strconv"
)

// ProductID identifies a product record. Zero means the line has no product
// and it never matches a search.
type ProductID int64

// Line is one inventory movement as held by the domain model.
type Line struct {
	// ID is the persisted record id, 0 until the backend has created the line.
	ID int64
	// VirtualID is the client-side id assigned before persistence. Models
	// may assign one to every line so a line can be found again after a
	// round-trip.
	VirtualID string

	Product     ProductID
	ProductName string
	Barcode     string

	Quantity float64 // expected
	QtyDone  float64
	UoM      string

	Location     string
	LocationDest string
	Lot          string
	PackageID    int64
	PackageName  string

	// Highlighted marks the line the next scan applies to.
	Highlighted bool
}

// Key returns the identifier used to find the rendered line again.
func (l Line) Key() string {
	if l.VirtualID != "" {
		return l.VirtualID
	}
	return strconv.FormatInt(l.ID, 10)
}

// Done reports whether the line has reached its expected quantity.
func (l Line) Done() bool {
	return l.Quantity > 0 && l.QtyDone >= l.Quantity
}

// GroupedLine is either a single line or a group of lines sharing a key
// (the same product across several lots, for instance). For groups the
// embedded Line is the group header.
type GroupedLine struct {
	Line
	Group    bool
	Sublines []Line
}

// Leaf wraps a single line.
func Leaf(l Line) GroupedLine {
	return GroupedLine{Line: l}
}

// NewGroup wraps lines under a header.
func NewGroup(header Line, lines []Line) GroupedLine {
	return GroupedLine{Line: header, Group: true, Sublines: lines}
}

// PackageLine is a package (result package or source package) touched by the
// session. Package lines are never filtered by product search.
type PackageLine struct {
	ID       int64
	Name     string
	Location string
	Lines    []Line
}

// View is the screen the session is showing.
type View int

const (
	ViewLineList View = iota
	ViewActionsMenu
	ViewProductDetail
	ViewInfoForm
	ViewPackageDetail
)

func (v View) String() string {
	switch v {
	case ViewLineList:
		return "lineList"
	case ViewActionsMenu:
		return "actionsMenu"
	case ViewProductDetail:
		return "productDetail"
	case ViewInfoForm:
		return "infoForm"
	case ViewPackageDetail:
		return "packageDetail"
	default:
		return "View(" + strconv.Itoa(int(v)) + ")"
	}
}

// ScrollBehavior controls how the list viewport moves to the highlighted line.
type ScrollBehavior int

const (
	ScrollImmediate ScrollBehavior = iota
	ScrollSmooth
)

func (b ScrollBehavior) String() string {
	if b == ScrollSmooth {
		return "smooth"
	}
	return "immediate"
}

// Subject identifies the record a session works on.
type Subject struct {
	ResModel string // "stock.picking" or "stock.quant"
	ResID    int64  // 0 for an inventory count over all quants
	ActionID int64
}

func (s Subject) String() string {
	return s.ResModel + "," + strconv.FormatInt(s.ResID, 10)
}

// LineParams describes the line being edited on the product screen.
type LineParams struct {
	CurrentID int64
	ResModel  string
	ViewID    int64
	Context   map[string]any
}

// Payload is the initial session data returned by the backend.
type Payload struct {
	Data     json.RawMessage `json:"data"`
	Groups   map[string]bool `json:"groups"`
	Config   PayloadConfig   `json:"config"`
	ActionID int64           `json:"-"`
}

// PayloadConfig carries per-session settings from the backend.
type PayloadConfig struct {
	PlaySound *bool `json:"play_sound,omitempty"`
}

// SoundEnabled returns the play_sound flag, which defaults to true.
func (c PayloadConfig) SoundEnabled() bool {
	return c.PlaySound == nil || *c.PlaySound
}

// Records are raw backend records keyed by model name. The model owns their
// decoding and merge.
type Records map[string]json.RawMessage

// RefreshRequest is the network request that re-reads the session state.
type RefreshRequest struct {
	Route  string
	Params map[string]any
}

// RefreshResult is the response to a RefreshRequest.
type RefreshResult struct {
	Data struct {
		Records Records `json:"records"`
	} `json:"data"`
}

// RefreshParams parameterise a refresh cycle.
type RefreshParams struct {
	RecordID int64 // just-saved subject record, 0 for none
	LineID   int64 // line to highlight on return, 0 for none
}

// FormRecord identifies the record a form view just saved.
type FormRecord struct {
	ResModel string
	ResID    int64
}

// Action is a backend action descriptor the host knows how to run.
type Action map[string]any

// Name returns the action's display name, if any.
func (a Action) Name() string {
	if n, ok := a["name"].(string); ok {
		return n
	}
	return ""
}

// ActionResult is what the host reports when an action closes.
type ActionResult struct {
	Cancelled bool
	Refresh   *RefreshParams
}
