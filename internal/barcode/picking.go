package barcode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mhma/stockbarcode/internal/session"
)

// Picking is the model of a transfer. Besides the common scan rules it can
// put lines in a package and tracks source and destination locations.
type Picking struct {
	*RemoteModel
}

// NewPicking builds the model of a stock.picking subject.
func NewPicking(subject session.Subject, bus *session.Bus, transport session.Transport) (session.Model, error) {
	m, err := newRemoteModel(pickingKind, subject, bus, transport)
	if err != nil {
		return nil, err
	}
	return &Picking{RemoteModel: m}, nil
}

// PutInPack saves and puts the processed lines in a new package.
func (p *Picking) PutInPack(ctx context.Context) error {
	if err := p.Save(ctx); err != nil {
		return err
	}
	var result json.RawMessage
	if err := p.callKW(ctx, "action_put_in_pack", []any{[]int64{p.subject.ResID}}, &result); err != nil {
		return fmt.Errorf("put in pack %s: %w", p.subject, err)
	}
	if action, ok := decodeAction(result); ok {
		p.publish(session.Event{Kind: session.EventProcessAction, Action: action})
		return nil
	}
	p.publish(session.Event{Kind: session.EventRefresh, Refresh: &session.RefreshParams{}})
	return nil
}

// ReturnProducts saves and asks the backend for the return dialog of the
// transfer, which the host runs through a process-action event.
func (p *Picking) ReturnProducts(ctx context.Context) error {
	if err := p.Save(ctx); err != nil {
		return err
	}
	var result json.RawMessage
	if err := p.callKW(ctx, "action_return_from_barcode", []any{[]int64{p.subject.ResID}}, &result); err != nil {
		return fmt.Errorf("return products of %s: %w", p.subject, err)
	}
	action, ok := decodeAction(result)
	if !ok {
		return session.NewUserError("There is nothing to return.")
	}
	p.publish(session.Event{Kind: session.EventProcessAction, Action: action})
	return nil
}

// CancelNotification is shown after the transfer was cancelled.
func (p *Picking) CancelNotification() (session.NoticeLevel, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := "The transfer"
	if p.cache.picking != nil && p.cache.picking.Name != "" {
		name = p.cache.picking.Name
	}
	return session.NoticeSuccess, name + " has been cancelled."
}

// SourceLocation returns the scanned or default source location.
func (p *Picking) SourceLocation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.locationName(Ref{ID: p.location})
}

// DestinationLocation returns the transfer's destination.
func (p *Picking) DestinationLocation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache.picking == nil {
		return ""
	}
	return p.cache.locationName(p.cache.picking.LocationDest)
}

// Inventory is the model of an inventory count over quants.
type Inventory struct {
	*RemoteModel
}

// NewInventory builds the model of a stock.quant subject.
func NewInventory(subject session.Subject, bus *session.Bus, transport session.Transport) (session.Model, error) {
	m, err := newRemoteModel(quantKind, subject, bus, transport)
	if err != nil {
		return nil, err
	}
	return &Inventory{RemoteModel: m}, nil
}

// Factories returns the model factories for every supported subject.
func Factories() session.ModelFactories {
	return session.ModelFactories{
		ModelPicking: NewPicking,
		ModelQuant:   NewInventory,
	}
}
