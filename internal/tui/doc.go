// Package tui drives a barcode session from a terminal.
//
// The program is a Bubble Tea model around a session controller. The
// controller publishes snapshots; the newest one is handed to the program
// through a one-slot mailbox, so a slow render never queues stale states.
//
// # Scanning
//
// USB and Bluetooth scanners act as keyboards. Characters typed faster than
// the wedge timeout and closed by Enter are a scan. A single character left
// alone is a command key, so the operator can still use the keyboard. Scans
// from a scanner bridge arrive over a websocket and take the same path.
//
// # Screens
//
//   - Line list: counters, search, notices and the scrollable lines
//   - Actions menu: validate, put in pack, cancel, add product
//   - Product form: quantity and product of the edited line
//   - Information form: the record being processed
//   - Package detail: lines of one package
//
// After each render the line rects are written to the session's layout
// registry and its scroll decision is applied to the viewport, immediately
// or with a short animation.
//
// # Dialogs
//
// Backend actions that open a window, such as the cancellation wizard, are
// confirmed in a modal before they run.
package tui
