package barcode

import (
	"context"
	"fmt"

	"github.com/mhma/stockbarcode/internal/session"
)

// RouteRunAction executes a backend action on behalf of the operator.
const RouteRunAction = "/stock_barcode/run_action"

// Action types the backend returns.
const (
	ActionWindow      = "ir.actions.act_window"
	ActionWindowClose = "ir.actions.act_window_close"
	ActionClient      = "ir.actions.client"
)

type runActionResult struct {
	Cancelled bool `json:"cancelled"`
	Refresh   *struct {
		RecordID int64 `json:"record_id"`
		LineID   int64 `json:"line_id"`
	} `json:"refresh"`
}

// NeedsConfirmation reports whether action opens a dialog the operator has
// to accept before it runs.
func NeedsConfirmation(action session.Action) bool {
	t, _ := action["type"].(string)
	return t == ActionWindow
}

// ActionPrompt returns the title and explanation to show before running a
// dialog action.
func ActionPrompt(action session.Action) (title, help string) {
	title = action.Name()
	if title == "" {
		title = "Confirm"
	}
	help, _ = action["help"].(string)
	return title, help
}

// RunAction runs action on the backend and reports how it closed. A nil
// or window-close action closes immediately without a backend call.
func RunAction(ctx context.Context, t session.Transport, action session.Action) (session.ActionResult, error) {
	if t == nil {
		return session.ActionResult{}, session.ErrNoTransport
	}
	if len(action) == 0 {
		return session.ActionResult{}, nil
	}
	if typ, _ := action["type"].(string); typ == ActionWindowClose {
		return session.ActionResult{}, nil
	}

	var res runActionResult
	if err := t.Call(ctx, RouteRunAction, map[string]any{"action": map[string]any(action)}, &res); err != nil {
		return session.ActionResult{}, fmt.Errorf("run action %q: %w", action.Name(), err)
	}
	out := session.ActionResult{Cancelled: res.Cancelled}
	if res.Refresh != nil {
		out.Refresh = &session.RefreshParams{RecordID: res.Refresh.RecordID, LineID: res.Refresh.LineID}
	}
	return out, nil
}
