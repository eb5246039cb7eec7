package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/bridge"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/session"
)

// Lines are laid out in terminal rows, so a small offset is already visible.
const scrollThreshold = 2

// RunConfig holds what the program needs besides the session options.
type RunConfig struct {
	// Bridge, when set, delivers scans from networked scanners and carries
	// haptic feedback back to them.
	Bridge *bridge.SessionClient
	// Bell receives the terminal bell. Nil keeps the session silent.
	Bell io.Writer
	// AltScreen runs the program on the alternate screen buffer.
	AltScreen bool
}

// Run opens a session on subject and drives it from the terminal until the
// operator leaves or ctx is cancelled.
func Run(ctx context.Context, subject session.Subject, opts session.Options, cfg RunConfig) error {
	var (
		vibrator Vibrator
		scans    <-chan string
	)
	if cfg.Bridge != nil {
		vibrator = cfg.Bridge
		scans = barcodes(cfg.Bridge.Scans())
	}

	if opts.ScrollThreshold <= 0 {
		opts.ScrollThreshold = scrollThreshold
	}
	host := NewHost(opts.Transport, cfg.Bell, vibrator)
	ctrl, err := session.New(subject, host, opts)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", subject, err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logging.Debug("Session close failed", zap.Error(err))
		}
	}()

	progOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if cfg.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	p := tea.NewProgram(NewAppModel(ctx, ctrl, scans), progOpts...)
	host.Attach(p.Send)
	defer host.Attach(nil)

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("session error: %w", err)
	}
	return nil
}

// barcodes strips bridge scans down to their barcode.
func barcodes(in <-chan bridge.Scan) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for s := range in {
			logging.Debug("Scan from bridge", zap.String("id", s.ID), zap.String("scanner", s.Scanner))
			out <- s.Barcode
		}
	}()
	return out
}
