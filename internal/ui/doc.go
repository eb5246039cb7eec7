// Package ui provides styled one-shot terminal output for the stockbarcode
// CLI.
//
// The interactive session lives in internal/tui. Headless commands (scan,
// search, discover, config) print through a Printer instead: a header box
// naming the command and its parameters, the command's output, and a
// success, warning or failure result box.
//
// Example:
//
//	p := ui.NewPrinter(cmd.OutOrStdout())
//	p.PrintHeader("Headless Scan", "stockbarcode scan", map[string]string{
//	    "Subject": "stock.picking,7",
//	})
//	p.PrintTable([]string{"PRODUCT", "DONE"}, rows)
//	p.PrintSuccess("Scan accepted", map[string]string{"Barcode": code})
//
// # Logging Integration
//
// zap logging stays silent unless STOCKBARCODE_LOG_LEVEL is set, so the
// curated output is displayed cleanly.
package ui
