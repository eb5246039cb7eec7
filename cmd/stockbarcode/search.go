package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mhma/stockbarcode/internal/barcode"
	"github.com/mhma/stockbarcode/internal/ui"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum number of products")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search products by name",
	Long: `Search the backend's products the way the session search does and print
the matches with their barcodes.`,
	Example: `  stockbarcode search desk
  stockbarcode search "cabinet with doors" --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(settings, false)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	client, err := connect(ctx, settings)
	if err != nil {
		return err
	}

	var products []struct {
		ID          int64  `json:"id"`
		DisplayName string `json:"display_name"`
		Barcode     string `json:"barcode"`
	}
	domain := []any{[]any{"display_name", "ilike", args[0]}}
	if err := client.SearchRead(ctx, barcode.ModelProduct, domain, []string{"id", "display_name", "barcode"}, searchLimit, &products); err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	p := ui.NewPrinter(os.Stdout)
	if len(products) == 0 {
		p.PrintNotice("warning", fmt.Sprintf("No product matches %q.", args[0]))
		return nil
	}
	rows := make([][]string, 0, len(products))
	for _, prod := range products {
		rows = append(rows, []string{fmt.Sprint(prod.ID), prod.DisplayName, prod.Barcode})
	}
	p.PrintTable([]string{"ID", "Product", "Barcode"}, rows)
	return nil
}
