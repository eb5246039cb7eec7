// Package bridge relays barcodes from handheld scanners to scanning
// sessions over websockets.
//
// Scanners connect to /ws/scanner and send scan messages; every session on
// /ws/session (or only the one named in the scan) receives the barcode, and
// the scanner gets an ack carrying the number of sessions reached. Sessions
// send vibrate messages, which are forwarded to the scanner that produced
// the latest scan.
//
// # Wire format
//
//	{"type":"scan","barcode":"0601647855605","session":"dock-3"}
//	{"type":"ack","id":"...","delivered":1}
//	{"type":"vibrate","ms":100}
//
// The bridge also serves Prometheus metrics on /metrics and a JSON health
// check on /healthz, and can advertise itself over mDNS.
package bridge
