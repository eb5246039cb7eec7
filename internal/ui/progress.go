package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// CounterBar renders session counters as a progress bar: lines done out of
// lines expected, with the filtered count when a search is active.
type CounterBar struct {
	Done     int
	Total    int
	Filtered int
	Active   bool // a search filter is applied
	Width    int
	bar      progress.Model
}

// NewCounterBar creates a bar sized for width.
func NewCounterBar(width int) *CounterBar {
	c := &CounterBar{}
	c.SetWidth(width)
	return c
}

// SetWidth sets the terminal width for responsive rendering
func (c *CounterBar) SetWidth(width int) *CounterBar {
	c.Width = width
	barWidth := width - 30 // Leave room for percentage and counts
	if barWidth < 10 {
		barWidth = 10
	}
	if barWidth > 50 {
		barWidth = 50
	}
	c.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	return c
}

// Set updates the counts.
func (c *CounterBar) Set(done, total, filtered int, active bool) *CounterBar {
	c.Done, c.Total, c.Filtered, c.Active = done, total, filtered, active
	return c
}

// Percent is the done fraction, 0 when there is nothing to do.
func (c *CounterBar) Percent() float64 {
	if c.Total <= 0 {
		return 0
	}
	p := float64(c.Done) / float64(c.Total)
	if p > 1 {
		p = 1
	}
	return p
}

// Label is the textual form of the counters, e.g. "3/8" or "2/8 shown".
func (c *CounterBar) Label() string {
	if c.Active {
		return fmt.Sprintf("%d/%d shown", c.Filtered, c.Total)
	}
	return fmt.Sprintf("%d/%d", c.Done, c.Total)
}

// Render returns the styled bar with percentage and counts
func (c *CounterBar) Render() string {
	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %3.0f%%  %s", c.bar.ViewAs(c.Percent()), c.Percent()*100, c.Label()))
}

// String implements fmt.Stringer
func (c *CounterBar) String() string {
	return c.Render()
}
