package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mhma/stockbarcode/internal/barcode"
	"github.com/mhma/stockbarcode/internal/session"
	"github.com/mhma/stockbarcode/internal/ui"
)

var (
	scanValidate bool
	scanYes      bool
	scanWait     time.Duration
)

func init() {
	scanCmd.Flags().BoolVar(&scanValidate, "validate", false, "Validate the record after the scans")
	scanCmd.Flags().BoolVarP(&scanYes, "yes", "y", false, "Accept backend dialogs without asking")
	scanCmd.Flags().DurationVar(&scanWait, "wait", 30*time.Second, "How long to wait for the backend to settle after validating")

	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan <picking|inventory> [id] <barcode>...",
	Short: "Apply scans without the interactive screen",
	Long: `Open a record, apply each barcode in order, save and print the lines.

Barcodes are processed exactly as in an interactive session. With
--validate the record is validated afterwards; a backend dialog (a
backorder, say) asks for confirmation unless --yes is given.`,
	Example: `  # Two units of a product on transfer 12
  stockbarcode scan picking 12 601647855631 601647855631

  # Count at a shelf, then apply the count
  stockbarcode scan inventory WH-SHELF-1 601647855633 --validate --yes`,
	Args: cobra.MinimumNArgs(2),
	RunE: runScan,
}

// splitScanArgs separates the subject arguments from the barcodes.
func splitScanArgs(args []string) (session.Subject, []string, error) {
	n := 1
	if args[0] != "inventory" && args[0] != "quants" && args[0] != barcode.ModelQuant {
		n = 2
	}
	if len(args) <= n {
		return session.Subject{}, nil, fmt.Errorf("no barcode to scan")
	}
	subject, err := parseSubject(args[:n])
	if err != nil {
		return session.Subject{}, nil, err
	}
	return subject, args[n:], nil
}

func runScan(cmd *cobra.Command, args []string) error {
	subject, codes, err := splitScanArgs(args)
	if err != nil {
		return err
	}
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

	printer := ui.NewPrinter(os.Stdout)
	host := newConsoleHost(printer, client, os.Stdin, os.Stdout, scanYes)
	if settings.PlaySound {
		host.bell = os.Stderr
	}
	ctrl, err := session.New(subject, host, sessionOptions(settings, client))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", subject, err)
	}
	defer ctrl.Close()

	snaps := make(chan session.Snapshot, 1)
	unsubscribe := ctrl.Subscribe(func(s session.Snapshot) {
		select {
		case <-snaps:
		default:
		}
		snaps <- s
	})
	defer unsubscribe()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	printer.PrintHeader("Scanning", "stockbarcode scan", map[string]string{
		"Record":   subject.String(),
		"Barcodes": fmt.Sprint(len(codes)),
	})
	for _, code := range codes {
		ctrl.HandleManualScan(ctx, code)
	}

	if !scanValidate {
		if err := ctrl.Exit(ctx); err != nil {
			return err
		}
		printLines(printer, ctrl.Snapshot())
		return nil
	}

	printLines(printer, ctrl.Snapshot())
	if err := ctrl.Validate(ctx); err != nil {
		if msg := session.UserMessage(err); msg != "" {
			return errors.New(msg)
		}
		return err
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, scanWait)
	defer cancelWait()
	select {
	case <-host.left:
		printer.PrintSuccess("Validated", map[string]string{"Record": subject.String()})
	case <-host.settled:
		// The dialog ran; the session refreshes before it is closed.
		select {
		case s := <-snaps:
			printLines(printer, s)
		case <-time.After(2 * time.Second):
		}
	case <-waitCtx.Done():
		return fmt.Errorf("backend did not answer within %s", scanWait)
	}
	return nil
}

func printLines(p *ui.Printer, snap session.Snapshot) {
	rows := make([][]string, 0, len(snap.Lines))
	add := func(l session.Line, indent string) {
		rows = append(rows, []string{
			indent + l.ProductName,
			l.Location,
			l.Lot,
			fmt.Sprintf("%s / %s %s", formatQty(l.QtyDone), formatQty(l.Quantity), l.UoM),
		})
	}
	for _, gl := range snap.Lines {
		add(gl.Line, "")
		for _, sub := range gl.Sublines {
			add(sub, "  ")
		}
	}
	p.Newline()
	p.PrintTable([]string{"Product", "Location", "Lot", "Done"}, rows)
	p.Println(fmt.Sprintf("%d line(s)", snap.Counters.Total))
}

func formatQty(q float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", q), "0"), ".")
}

// consoleHost runs a session on plain stdout. Dialog actions are confirmed
// on stdin.
type consoleHost struct {
	printer   *ui.Printer
	transport session.Transport
	in        io.Reader
	out       io.Writer
	assumeYes bool
	bell      io.Writer

	mu      sync.Mutex
	left    chan struct{}
	leftOne sync.Once
	settled chan struct{}
}

func newConsoleHost(p *ui.Printer, t session.Transport, in io.Reader, out io.Writer, assumeYes bool) *consoleHost {
	return &consoleHost{
		printer:   p,
		transport: t,
		in:        in,
		out:       out,
		assumeYes: assumeYes,
		left:      make(chan struct{}),
		settled:   make(chan struct{}, 1),
	}
}

func (h *consoleHost) Notify(level session.NoticeLevel, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.printer.PrintNotice(level.String(), message)
}

func (h *consoleHost) PlaySound(name string) {
	if h.bell != nil {
		_, _ = io.WriteString(h.bell, "\a")
	}
}

func (h *consoleHost) Flash() {}

func (h *consoleHost) HistoryBack() {
	h.leftOne.Do(func() { close(h.left) })
}

func (h *consoleHost) RunAction(ctx context.Context, action session.Action) (session.ActionResult, error) {
	defer func() {
		select {
		case h.settled <- struct{}{}:
		default:
		}
	}()
	if barcode.NeedsConfirmation(action) && !h.assumeYes {
		title, help := barcode.ActionPrompt(action)
		var warnings []string
		if help != "" {
			warnings = append(warnings, help)
		}
		h.mu.Lock()
		ok := ui.Confirm(h.in, h.out, title, warnings, "yes")
		h.mu.Unlock()
		if !ok {
			return session.ActionResult{}, nil
		}
	}
	return barcode.RunAction(ctx, h.transport, action)
}
