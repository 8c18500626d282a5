package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// stdout receives all user-facing output. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// Palette (ANSI 256).
var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")  // success, up-regulated
	colorRed    = lipgloss.Color("167") // errors, down-regulated
	colorYellow = lipgloss.Color("220")
	colorBlue   = lipgloss.Color("75")
	colorWhite  = lipgloss.Color("255")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

var (
	StyleTitle     = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)
	StyleLink      = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)
	StyleDim       = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue     = lipgloss.NewStyle().Foreground(colorWhite)
	StyleWarning   = lipgloss.NewStyle().Foreground(colorYellow)

	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)
	styleCommand     = lipgloss.NewStyle().Foreground(colorBlue)
	styleKey         = lipgloss.NewStyle().Foreground(colorGray).Width(12)
	styleHeader      = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	styleBorder      = lipgloss.NewStyle().Foreground(colorDim)
)

// mark is the icon that leads a status line.
type mark struct {
	icon  string
	style lipgloss.Style
}

var (
	markSuccess = mark{"✓", lipgloss.NewStyle().Foreground(colorGreen)}
	markError   = mark{"✗", lipgloss.NewStyle().Foreground(colorRed)}
	markWarning = mark{"!", lipgloss.NewStyle().Foreground(colorYellow)}
	markInfo    = mark{"›", lipgloss.NewStyle().Foreground(colorGray)}
)

func (m mark) line(msg string) {
	fmt.Fprintln(stdout, m.style.Render(m.icon)+" "+msg)
}

func printSuccess(format string, args ...any) { markSuccess.line(fmt.Sprintf(format, args...)) }
func printError(format string, args ...any)   { markError.line(fmt.Sprintf(format, args...)) }
func printInfo(format string, args ...any)    { markInfo.line(fmt.Sprintf(format, args...)) }

func printWarning(format string, args ...any) {
	markWarning.line(StyleWarning.Render(fmt.Sprintf(format, args...)))
}

// printDetail prints an indented, dimmed line under a status line.
func printDetail(format string, args ...any) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile lists one written artifact.
func printFile(name string) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render("→")+" "+StyleValue.Render(name))
}

func printKeyValue(key, value string) {
	fmt.Fprintln(stdout, styleKey.Render(key)+" "+StyleValue.Render(value))
}

// printStats summarizes a run on one line. Negative counts are omitted.
//
//	1200 features · 87 significant · 14 terms · clean
func printStats(features, significant, terms, warnings int) {
	sep := StyleDim.Render(" · ")
	parts := []string{StyleDim.Render(fmt.Sprintf("%d features", features))}
	for _, c := range []struct {
		n    int
		noun string
	}{{significant, "significant"}, {terms, "terms"}} {
		if c.n >= 0 {
			parts = append(parts, StyleDim.Render(fmt.Sprintf("%d %s", c.n, c.noun)))
		}
	}

	if warnings > 0 {
		parts = append(parts, StyleWarning.Render(fmt.Sprintf("%d %s", warnings, plural(warnings, "warning"))))
	} else {
		parts = append(parts, markSuccess.style.Render("clean"))
	}
	fmt.Fprintln(stdout, "  "+strings.Join(parts, sep))
}

// renderTable draws rows under headers with the first column highlighted.
func renderTable(headers []string, rows [][]string) string {
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return styleHeader.Padding(0, 1)
			case col == 0:
				return cell.Foreground(colorCyan)
			}
			return cell
		}).
		Render()
}

// printNextStep suggests a follow-up command.
func printNextStep(description, cmd string) {
	fmt.Fprintln(stdout, StyleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

func printNewline() { fmt.Fprintln(stdout) }

func plural(n int, word string) string {
	switch {
	case n == 1:
		return word
	case len(word) > 1 && word[len(word)-1] == 'y' && !strings.ContainsRune("aeiou", rune(word[len(word)-2])):
		return word[:len(word)-1] + "ies"
	}
	return word + "s"
}
