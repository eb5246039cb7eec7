package session

import (
	"math"
	"sync"
)

// DefaultScrollThreshold is the smallest offset, in layout units, worth
// scrolling for.
const DefaultScrollThreshold = 5

// Rect is a vertical extent in content coordinates.
type Rect struct {
	Top    float64
	Height float64
}

// LayoutRegistry records where the renderer placed each line and the state
// of the list viewport. The renderer writes it after every frame; the
// scroll synchronizer reads it.
type LayoutRegistry struct {
	mu            sync.RWMutex
	lines         map[string]Rect
	viewport      float64 // visible height
	scrollTop     float64
	contentHeight float64
}

// NewLayoutRegistry creates an empty registry.
func NewLayoutRegistry() *LayoutRegistry {
	return &LayoutRegistry{lines: make(map[string]Rect)}
}

// Reset forgets all line positions.
func (r *LayoutRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = make(map[string]Rect)
}

// SetLine records the rendered extent of the line with key.
func (r *LayoutRegistry) SetLine(key string, rect Rect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[key] = rect
}

// Line returns the recorded extent of key.
func (r *LayoutRegistry) Line(key string) (Rect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rect, ok := r.lines[key]
	return rect, ok
}

// SetViewport records the visible height, current scroll offset and total
// content height of the list.
func (r *LayoutRegistry) SetViewport(height, scrollTop, contentHeight float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = height
	r.scrollTop = scrollTop
	r.contentHeight = contentHeight
}

// Viewport returns the values last given to SetViewport.
func (r *LayoutRegistry) Viewport() (height, scrollTop, contentHeight float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewport, r.scrollTop, r.contentHeight
}

func (r *LayoutRegistry) setScrollTop(top float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrollTop = top
}

// ScrollCommand tells the renderer where to move the list.
type ScrollCommand struct {
	Key      string
	Top      float64 // new scroll offset
	Delta    float64
	Behavior ScrollBehavior
}

// ScrollSynchronizer keeps the highlighted line centred in the viewport
// after each render.
type ScrollSynchronizer struct {
	registry  *LayoutRegistry
	finder    LocationFinder
	threshold float64

	mu       sync.Mutex
	behavior ScrollBehavior
}

// NewScrollSynchronizer creates a synchronizer reading registry. finder may
// be nil. A threshold <= 0 uses DefaultScrollThreshold.
func NewScrollSynchronizer(registry *LayoutRegistry, finder LocationFinder, threshold float64) *ScrollSynchronizer {
	if threshold <= 0 {
		threshold = DefaultScrollThreshold
	}
	return &ScrollSynchronizer{
		registry:  registry,
		finder:    finder,
		threshold: threshold,
		behavior:  ScrollImmediate,
	}
}

// Registry returns the layout registry the renderer should fill.
func (s *ScrollSynchronizer) Registry() *LayoutRegistry {
	return s.registry
}

// Behavior returns the behavior the next scroll will use.
func (s *ScrollSynchronizer) Behavior() ScrollBehavior {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.behavior
}

// AfterRender decides whether the list must scroll for snap. It returns
// false when nothing needs to move.
func (s *ScrollSynchronizer) AfterRender(snap Snapshot) (ScrollCommand, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.View != ViewLineList || !snap.CanBeProcessed {
		s.behavior = ScrollImmediate
		return ScrollCommand{}, false
	}

	key, ok := highlightedKey(snap.Lines)
	if !ok && s.finder != nil {
		if line, found := s.finder.FindLineForCurrentLocation(); found {
			key, ok = line.Key(), true
		}
	}
	if !ok {
		return ScrollCommand{}, false
	}

	rect, found := s.registry.Line(key)
	if !found {
		return ScrollCommand{}, false
	}

	vpHeight, scrollTop, contentHeight := s.registry.Viewport()
	delta := (rect.Top - scrollTop + rect.Height/2) - vpHeight/2
	if math.Abs(delta) < s.threshold {
		return ScrollCommand{}, false
	}

	top := scrollTop + delta
	maxTop := math.Max(0, contentHeight-vpHeight)
	top = math.Max(0, math.Min(top, maxTop))

	cmd := ScrollCommand{Key: key, Top: top, Delta: delta, Behavior: s.behavior}
	s.behavior = ScrollSmooth
	s.registry.setScrollTop(top)
	return cmd, true
}

// highlightedKey picks the scroll target: the group that contains a
// highlighted subline, otherwise the first highlighted top-level line.
func highlightedKey(lines []GroupedLine) (string, bool) {
	for _, gl := range lines {
		if !gl.Group {
			continue
		}
		for _, sub := range gl.Sublines {
			if sub.Highlighted {
				return gl.Key(), true
			}
		}
	}
	for _, gl := range lines {
		if gl.Highlighted {
			return gl.Key(), true
		}
	}
	return "", false
}
