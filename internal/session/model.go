package session

import (
	"context"
	"fmt"
)

// Model owns the authoritative lines of one session and all barcode
// business rules. Implementations must be safe for concurrent use and must
// not hold their own locks while publishing on the bus.
type Model interface {
	SetData(payload Payload) error

	GroupedLines() []GroupedLine
	PackageLines() []PackageLine
	PageLines() []Line

	CanBeProcessed() bool
	HighlightValidateButton() bool
	HasNote() bool
	LineModel() string
	LineFormViewID() int64

	// ProcessBarcode applies a scanned code. A rejection should carry an
	// operator message (see UserError).
	ProcessBarcode(ctx context.Context, barcode string) error
	// CleanBarcode normalises manually typed input before it is processed.
	CleanBarcode(barcode string) string

	Save(ctx context.Context) error
	Validate(ctx context.Context) error
	BeforeQuit(ctx context.Context) error

	ActionRefresh(recordID int64) RefreshRequest
	RefreshCache(ctx context.Context, records Records) error

	// DisplayBarcodeLines prepares the model for the line list, highlighting
	// lineID when it is not zero.
	DisplayBarcodeLines(ctx context.Context, lineID int64) error

	EditedLineParams(line Line) LineParams
	NewLineContext() map[string]any
}

// LocationFinder is implemented by models that can point at the line for the
// operator's current location when nothing is highlighted.
type LocationFinder interface {
	FindLineForCurrentLocation() (Line, bool)
}

// Packer is implemented by models that support putting lines in a package.
type Packer interface {
	PutInPack(ctx context.Context) error
}

// Returner is implemented by models whose subject can be sent back through a
// return.
type Returner interface {
	ReturnProducts(ctx context.Context) error
}

// CancelNotifier is implemented by models with their own cancellation notice.
type CancelNotifier interface {
	CancelNotification() (level NoticeLevel, message string)
}

// LocationTracker is implemented by models that follow the scanned source
// and destination locations.
type LocationTracker interface {
	SourceLocation() string
	DestinationLocation() string
}

// ModelFactory builds a model for one subject.
type ModelFactory func(subject Subject, bus *Bus, transport Transport) (Model, error)

// ModelFactories selects the model by record type.
type ModelFactories map[string]ModelFactory

// NewModel builds the model for subject, or fails with ErrUnsupportedSubject.
func (f ModelFactories) NewModel(subject Subject, bus *Bus, transport Transport) (Model, error) {
	factory, ok := f[subject.ResModel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSubject, subject.ResModel)
	}
	return factory(subject, bus, transport)
}
