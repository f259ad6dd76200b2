// Package cliui provides reusable terminal UI helpers (spinners, step indicators,
// markdown rendering, fact listings) for lokal CLI commands.
package cliui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/utils"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	HeaderStyle = lipgloss.NewStyle().Bold(true)
	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	NameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	categoryStyles = map[facts.Category]lipgloss.Style{
		facts.CategoryIdentity:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		facts.CategoryPreference:   lipgloss.NewStyle().Foreground(lipgloss.Color("213")),
		facts.CategoryRelationship: lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
		facts.CategoryOther:        DimStyle,
	}
)

// maxFactWidth bounds fact content in listings.
const maxFactWidth = 96

// spinnerFrames is the braille dot spinner.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	var mu sync.Mutex

	// Run spinner animation in background
	go func() {
		frame := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			mu.Lock()
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)
			mu.Unlock()

			select {
			case <-done:
				return
			case <-ticker.C:
				frame++
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)

	// Clear the spinner line and print final result
	mu.Lock()
	fmt.Fprintf(w, "\r  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
	mu.Unlock()

	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders markdown content for terminal display using glamour.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}

// Category renders a fact category in its color, padded to a fixed width.
func Category(c facts.Category) string {
	style, ok := categoryStyles[c]
	if !ok {
		style = DimStyle
	}
	return style.Render(fmt.Sprintf("%-12s", string(c)))
}

// WriteFacts prints one line per fact: short id, category and content.
func WriteFacts(w io.Writer, list []facts.Fact) {
	if len(list) == 0 {
		fmt.Fprintf(w, "  %s\n", DimStyle.Render("No facts stored."))
		return
	}

	for _, f := range list {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			DimStyle.Render(ShortID(f.ID)),
			Category(f.Category),
			utils.Truncate(f.Content, maxFactWidth),
		)
	}
}

// ShortID returns the trailing random part of a fact id, which is enough to
// tell facts apart on screen.
func ShortID(id string) string {
	if i := strings.LastIndex(id, "-"); i >= 0 && len(id)-i > 8 {
		return id[len(id)-8:]
	}
	return id
}
