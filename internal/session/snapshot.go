package session

// Snapshot is an immutable view of the session at one point in time.
// Slices must not be modified by subscribers.
type Snapshot struct {
	Seq     uint64
	Subject Subject

	View     View
	Filter   Filter
	Counters Counters

	// Lines are the grouped lines visible under Filter.
	Lines        []GroupedLine
	PackageLines []PackageLine

	EditedLine         *LineParams
	InspectedPackageID int64

	CanBeProcessed          bool
	HighlightValidateButton bool
	DisplayActionButtons    bool
	DisplayNote             bool
	IsTransfer              bool
	PlaySound               bool

	SearchPending bool
	Closed        bool
}

// HasFilter reports whether a product search is narrowing the list.
func (s Snapshot) HasFilter() bool {
	return s.Filter.Active
}

// FindLine returns the visible line with key, looking into groups.
func (s Snapshot) FindLine(key string) (Line, bool) {
	for _, gl := range s.Lines {
		if gl.Key() == key {
			return gl.Line, true
		}
		for _, sub := range gl.Sublines {
			if sub.Key() == key {
				return sub, true
			}
		}
	}
	return Line{}, false
}
