// Package barcode implements the session models backed by the stock
// backend: transfers (stock.picking) and inventory counts (stock.quant).
//
// A model loads the session records once, resolves scanned codes against
// its cached products, locations, lots and packages, and asks the backend
// only for codes it does not know. Scans mutate the cache; Save pushes the
// modified lines back in one call. Lines created by a scan get a uuid
// virtual id until the backend returns them.
//
//	ctrl, err := session.New(subject, host, session.Options{
//	    Factories: barcode.Factories(),
//	    Transport: client,
//	    Searcher:  barcode.NewProductSearcher(client),
//	})
package barcode
