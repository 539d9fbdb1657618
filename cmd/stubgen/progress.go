package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// barProgress draws one progress bar per phase on a terminal line.
type barProgress struct {
	w     io.Writer
	bar   progress.Model
	label lipgloss.Style
	title string
	total int
	shown int // last rendered percentage, -1 before the first render
}

func newBarProgress(w io.Writer) *barProgress {
	return &barProgress{
		w:     w,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		label: lipgloss.NewStyle().Bold(true),
	}
}

func (p *barProgress) Start(title string, total int) {
	p.title, p.total, p.shown = title, total, -1
	p.render(0)
}

func (p *barProgress) Update(done int) { p.render(done) }

func (p *barProgress) Finish() {
	p.render(p.total)
	fmt.Fprintln(p.w)
}

// render redraws the bar when the whole-number percentage changed.
func (p *barProgress) render(done int) {
	pct := 1.0
	if p.total > 0 {
		pct = min(float64(done)/float64(p.total), 1)
	}
	if n := int(pct * 100); n != p.shown {
		p.shown = n
		fmt.Fprintf(p.w, "\r%s %s", p.label.Render(p.title), p.bar.ViewAs(pct))
	}
}
