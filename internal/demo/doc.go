// Package demo is a stand-in stock backend for trying the scanner without a
// real ERP. It serves the barcode routes over JSON-RPC from a YAML
// warehouse fixture held in memory.
//
// The fixture embedded in the package describes one delivery, one receipt
// and a handful of quants. Pass a file to LoadFixture to serve another
// warehouse. Changes live until the process exits.
//
// Validation, put in pack, cancellation and the backorder dialog behave
// like the real backend closely enough to exercise every session screen.
package demo
