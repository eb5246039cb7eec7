package session

import (
	"context"
	"strings"

	"github.com/mhma/stockbarcode/internal/logging"
)

// HandleScan forwards a scanned code to the model. Failures never escape:
// an empty scan becomes a warning notice and a rejected code a danger notice.
// Two scans may be in flight at once; the model orders their effects.
func (c *Controller) HandleScan(ctx context.Context, barcode string) {
	subject := c.subject.String()
	if c.isClosed() {
		logging.LogScan(subject, barcode, "ignored_closed", ErrClosed)
		return
	}
	// Whitespace-only input counts as empty; keyboard-wedge scanners emit
	// stray line breaks on a misread.
	if strings.TrimSpace(barcode) == "" {
		logging.LogScan(subject, barcode, "empty", nil)
		c.host.Notify(NoticeWarning, MsgScanAgain)
		return
	}

	if err := c.model.ProcessBarcode(ctx, barcode); err != nil {
		logging.LogScan(subject, barcode, "rejected", err)
		c.host.Notify(NoticeDanger, ScanFailureMessage(err, barcode))
		return
	}

	logging.LogScan(subject, barcode, "accepted", nil)
	if v, ok := c.host.(Vibrator); ok {
		v.Vibrate(HapticPulse)
	}
}

// HandleManualScan normalises typed input with the model's cleaner and then
// takes the same path as a hardware scan.
func (c *Controller) HandleManualScan(ctx context.Context, input string) {
	c.HandleScan(ctx, c.model.CleanBarcode(input))
}
