package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mhma/stockbarcode/internal/session"
)

// lineLayout is one rendered line list: the text, where each line landed,
// and the selectable leaf lines in display order.
type lineLayout struct {
	content string
	rows    int
	rects   map[string]session.Rect
	order   []string
	lines   map[string]session.Line
	firstOf map[string]string // group key to its first line
}

const lineRows = 2 // product row and detail row

func renderLineList(snap session.Snapshot, width int, cursor string) lineLayout {
	out := lineLayout{
		rects:   make(map[string]session.Rect),
		lines:   make(map[string]session.Line),
		firstOf: make(map[string]string),
	}
	var rows []string
	add := func(s ...string) {
		rows = append(rows, s...)
	}

	if len(snap.Lines) == 0 {
		switch {
		case snap.Filter.MatchesNothing():
			add(SubtitleStyle.Render(fmt.Sprintf("  No product matches %q.", snap.Filter.Term)))
		case snap.Filter.Active:
			add(SubtitleStyle.Render(fmt.Sprintf("  No line for %q.", snap.Filter.Term)))
		default:
			add(SubtitleStyle.Render("  Scan a product or a location to start."))
		}
	}

	for _, gl := range snap.Lines {
		top := len(rows)
		if gl.Group {
			add(renderGroupHeader(gl, width))
			if len(gl.Sublines) > 0 {
				out.firstOf[gl.Key()] = gl.Sublines[0].Key()
			}
			for _, sub := range gl.Sublines {
				add(renderLine(sub, width, "  ", sub.Key() == cursor)...)
				out.order = append(out.order, sub.Key())
				out.lines[sub.Key()] = sub
			}
		} else {
			add(renderLine(gl.Line, width, "", gl.Key() == cursor)...)
			out.order = append(out.order, gl.Key())
			out.lines[gl.Key()] = gl.Line
		}
		out.rects[gl.Key()] = session.Rect{Top: float64(top), Height: float64(len(rows) - top)}
	}

	if len(snap.PackageLines) > 0 {
		add("", PackageHeaderStyle.Render("Packages"))
		for _, p := range snap.PackageLines {
			add(fmt.Sprintf("  %s  %s  %s", p.Name,
				SubtitleStyle.Render(p.Location),
				SubtitleStyle.Render(pluralize(len(p.Lines), "line"))))
		}
	}

	out.content = strings.Join(rows, "\n")
	out.rows = len(rows)
	return out
}

func renderGroupHeader(gl session.GroupedLine, width int) string {
	text := fmt.Sprintf("▾ %s  %s", gl.ProductName, quantity(gl.Line))
	style := GroupHeaderStyle
	if gl.Highlighted {
		style = style.Inherit(LineHighlightStyle)
	}
	return style.MaxWidth(width).Render(text)
}

func renderLine(l session.Line, width int, indent string, selected bool) []string {
	marker := "  "
	if selected {
		marker = "› "
	}

	style := LinePendingStyle
	switch {
	case l.Done():
		style = LineDoneStyle
	case l.QtyDone > 0:
		style = LinePartialStyle
	}
	if l.Highlighted {
		style = style.Inherit(LineHighlightStyle)
	}

	name := l.ProductName
	if name == "" {
		name = "(no product)"
	}
	qty := quantity(l)
	pad := width - lipgloss.Width(indent+marker+name) - lipgloss.Width(qty) - 2
	if pad < 1 {
		pad = 1
	}
	main := style.MaxWidth(width).Render(indent + marker + name + strings.Repeat(" ", pad) + qty)

	var detail []string
	if l.Location != "" {
		loc := l.Location
		if l.LocationDest != "" {
			loc += " → " + l.LocationDest
		}
		detail = append(detail, loc)
	}
	if l.Lot != "" {
		detail = append(detail, "lot "+l.Lot)
	}
	if l.PackageName != "" {
		detail = append(detail, "pkg "+l.PackageName)
	}
	return []string{main, LineDetailStyle.MaxWidth(width).Render(indent + strings.Join(detail, " · "))}
}

func quantity(l session.Line) string {
	s := formatQty(l.QtyDone) + " / " + formatQty(l.Quantity)
	if l.UoM != "" {
		s += " " + l.UoM
	}
	return s
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func pluralize(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}

// doneLeaves counts visible leaf lines that reached their quantity.
func doneLeaves(lines []session.GroupedLine) int {
	n := 0
	for _, gl := range lines {
		if !gl.Group {
			if gl.Done() {
				n++
			}
			continue
		}
		for _, sub := range gl.Sublines {
			if sub.Done() {
				n++
			}
		}
	}
	return n
}
