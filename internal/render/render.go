// Package render draws a form view as terminal text.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sheetscrape/console/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	buttonStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	linkStyle    = lipgloss.NewStyle().Underline(true)
)

// Text renders the full form. spinner is the current animation frame drawn before each indicator.
func Text(v models.View, spinner string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Upload & Scrape"))
	b.WriteString("\n\n")

	file := v.FileName
	if file == "" {
		file = mutedStyle.Render("no file selected")
	}
	fmt.Fprintf(&b, "File:   %s\n", file)
	fmt.Fprintf(&b, "Accept: %s\n\n", strings.Join(v.Accept, ", "))

	button := "[ " + v.SubmitLabel + " ]"
	if v.InputDisabled {
		b.WriteString(mutedStyle.Render(button))
	} else {
		b.WriteString(buttonStyle.Render(button))
	}
	b.WriteString("\n")

	for _, ind := range v.Indicators {
		fmt.Fprintf(&b, "%s %s\n", spinner, ind.Text)
	}

	if v.Message != "" {
		b.WriteString("\n")
		b.WriteString(messageStyle(v.Phase).Render(v.Message))
		b.WriteString("\n")
	}

	if v.Download != nil {
		fmt.Fprintf(&b, "\n%s: %s\n", v.Download.Label, linkStyle.Render(v.Download.URL))
	}
	return b.String()
}

// Line renders a one-line summary of a view for non-interactive output.
func Line(v models.View) string {
	parts := []string{string(v.Phase)}
	for _, ind := range v.Indicators {
		parts = append(parts, ind.Text)
	}
	if v.Message != "" {
		parts = append(parts, v.Message)
	}
	if v.Download != nil {
		parts = append(parts, v.Download.Label+": "+v.Download.URL)
	}
	return strings.Join(parts, " | ")
}

func messageStyle(phase models.Phase) lipgloss.Style {
	switch phase {
	case models.PhaseError:
		return errorStyle
	case models.PhaseSuccess:
		return successStyle
	default:
		return lipgloss.NewStyle()
	}
}
