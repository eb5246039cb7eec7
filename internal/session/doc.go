// Package session implements the controller of an interactive barcode-scanning
// session over a stock picking or an inventory (quant) count.
//
// A Controller sits between three parties: the domain model that owns the
// authoritative move lines (see Model), the host that presents things to the
// operator (see Host), and the render layer that draws snapshots. It keeps
// three concerns consistent:
//   - which screen is active (the View state machine)
//   - which lines are visible because of a product search (the Filter)
//   - whether the cached lines are current after a server round-trip (Refresh)
//
// # Data Flow
//
//	scanner -> HandleScan -> Model.ProcessBarcode -> Bus "update" -> Snapshot -> render -> Scroll
//	search  -> Search -> ProductSearcher -> Filter -> Snapshot -> render
//
// A product search never touches the model; it only changes the filter that
// ApplyFilter uses to derive the visible lines.
//
// # Filter Semantics
//
// A Filter is three-valued and the cases must not be merged:
//   - inactive (NoFilter): every line is visible
//   - active with no product ids (MatchNothing): nothing is visible
//   - active with ids (MatchProducts): only lines whose product is in the set
//
// # Snapshots
//
// Every state change produces an immutable Snapshot with a strictly increasing
// Seq. Subscribers may receive snapshots from several goroutines and must keep
// the one with the highest Seq.
//
// # Concurrency
//
// Controller methods are safe for concurrent use. Blocking calls into the model,
// the transport and the host happen without holding the controller lock, so two
// scans may be in flight at once; the model serialises its own cache mutations.
// Results that would move the operator to a screen they already left (a slow
// refresh, an outdated search) are dropped.
package session
