package session

import (
	"context"
	"time"
)

// NoticeLevel is the severity of an operator notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeDanger
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeWarning:
		return "warning"
	case NoticeDanger:
		return "danger"
	default:
		return "info"
	}
}

// HapticPulse is the vibration length after an accepted scan.
const HapticPulse = 100 * time.Millisecond

// Host is everything the controller needs from the surrounding application.
type Host interface {
	// Notify shows a transient notice.
	Notify(level NoticeLevel, message string)
	// PlaySound plays a named sound.
	PlaySound(name string)
	// Flash gives brief visual feedback.
	Flash()
	// HistoryBack leaves the session.
	HistoryBack()
	// RunAction runs a backend action and reports how it closed.
	RunAction(ctx context.Context, action Action) (ActionResult, error)
}

// Vibrator is implemented by hosts with haptic feedback.
type Vibrator interface {
	Vibrate(d time.Duration)
}

// Transport performs backend calls.
type Transport interface {
	Call(ctx context.Context, route string, params any, out any) error
}

// ProductSearcher finds product ids whose display name matches term.
type ProductSearcher interface {
	SearchProducts(ctx context.Context, term string, limit int) ([]ProductID, error)
}

// ProductSearcherFunc adapts a function to ProductSearcher.
type ProductSearcherFunc func(ctx context.Context, term string, limit int) ([]ProductID, error)

func (f ProductSearcherFunc) SearchProducts(ctx context.Context, term string, limit int) ([]ProductID, error) {
	return f(ctx, term, limit)
}

// Route of the initial data load.
const RouteBarcodeData = "/stock_barcode/get_barcode_data"

// callKW invokes a model method on the backend through the generic route.
func callKW(ctx context.Context, t Transport, model, method string, args []any, out any) error {
	params := map[string]any{
		"model":  model,
		"method": method,
		"args":   args,
		"kwargs": map[string]any{},
	}
	return t.Call(ctx, "/web/dataset/call_kw/"+model+"/"+method, params, out)
}
