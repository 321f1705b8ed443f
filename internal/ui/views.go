package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func renderProgress(m Model) string {
	var b strings.Builder

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#A40000")).
		Render("audiocore")
	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Italic(true).
		Render(fmt.Sprintf("%s %s", m.OperationName, filepath.Base(m.InputPath)))

	b.WriteString(title + " " + subtitle)
	b.WriteString("\n\n")

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#A40000")).
		Padding(0, 1).
		Width(60)

	var content strings.Builder
	content.WriteString(renderBar(m.Progress, 40))
	content.WriteString("\n\n")
	content.WriteString(fmt.Sprintf("⏱  Elapsed: %s", elapsedString(m.StartTime)))

	b.WriteString(box.Render(content.String()))
	return b.String()
}

func renderBar(progress float64, width int) string {
	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	empty := width - filled
	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	return fmt.Sprintf("%s %d%%", bar, int(progress*100))
}

func renderCompletion(m Model) string {
	var b strings.Builder

	if m.Result.Err != nil {
		header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A40000")).Render("✗ Failed")
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(m.Result.Err.Error())
		b.WriteString("\n")
		return b.String()
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00AA00")).Render("✓ Done")
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s (%.1fs, %d kbps%s)\n",
		m.Result.OutputPath, float64(m.Result.DurationMs)/1000,
		m.Result.BitRateKbps, losslessSuffix(m.Result.Lossless)))
	return b.String()
}

func losslessSuffix(lossless bool) string {
	if lossless {
		return ", lossless copy"
	}
	return ""
}
