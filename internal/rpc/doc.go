// Package rpc is the JSON-RPC client for the stock backend.
//
// Every request is a POST of {"jsonrpc":"2.0","method":"call","params":...}
// to a route; the backend answers with either "result" or "error". A Client
// implements the transport the session controller needs (Call) and adds the
// generic model calls (CallKW, SearchRead).
//
// # Resilience
//
// Reads (initial data load, search_read, barcode lookups) are retried with
// exponential backoff when the failure is retryable. Writes are sent once.
// All calls go through a circuit breaker that opens after repeated transport
// failures; a backend rejection (for example a UserError raised by business
// logic) does not count as a failure.
//
// # Errors
//
// All failures are *Error values with an ErrorType. Backend rejections keep
// the structured "data" block so callers can show data.message to the operator:
//
//	if err := client.Call(ctx, route, params, &out); err != nil {
//	    fmt.Println(rpc.GetShortErrorMessage(err))
//	}
package rpc
