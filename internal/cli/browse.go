package cli

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/exprflow/pkg/results"
)

// browseCommand creates the browse command.
func (c *CLI) browseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse <results.tsv>",
		Short: "Page through a result table in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := pipelineOptions(cfg.Config, loggerFromContext(cmd.Context()))
			if err != nil {
				return err
			}
			t, err := results.ReadFile(args[0])
			if err != nil {
				return err
			}
			m := NewResultsModel(t, opts.Thresholds())
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	addFilterFlags(cmd)
	return cmd
}

// Table styles
var (
	upStyle   = lipgloss.NewStyle().Foreground(colorGreen)
	downStyle = lipgloss.NewStyle().Foreground(colorRed)
)

// sortKey is a column the browser can sort by.
type sortKey int

const (
	sortPAdj sortKey = iota
	sortLog2FC
	sortBaseMean
)

func (s sortKey) String() string {
	switch s {
	case sortLog2FC:
		return "|log2FC|"
	case sortBaseMean:
		return "baseMean"
	}
	return "padj"
}

// =============================================================================
// ResultsModel - Interactive result table
// =============================================================================

// ResultsModel is the bubbletea model for browsing a result table.
type ResultsModel struct {
	Table      results.Table
	Thresholds results.Thresholds

	// Rows are the visible rows after sorting and filtering.
	Rows []results.Row

	Cursor          int
	Offset          int
	Height          int
	Sort            sortKey
	SignificantOnly bool
}

// NewResultsModel creates a browser over t that highlights rows passing th.
func NewResultsModel(t results.Table, th results.Thresholds) ResultsModel {
	m := ResultsModel{Table: t, Thresholds: th, Height: 15}
	m.refresh()
	return m
}

func (m ResultsModel) Init() tea.Cmd {
	return nil
}

func (m ResultsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			m.move(-1)
		case "down", "j":
			m.move(1)
		case "pgup", "b":
			m.move(-m.Height)
		case "pgdown", " ":
			m.move(m.Height)
		case "home", "g":
			m.move(-len(m.Rows))
		case "end", "G":
			m.move(len(m.Rows))
		case "s":
			m.Sort = (m.Sort + 1) % 3
			m.refresh()
		case "f":
			m.SignificantOnly = !m.SignificantOnly
			m.refresh()
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
		m.move(0)
	}
	return m, nil
}

// move shifts the cursor by delta rows and keeps it inside the window.
func (m *ResultsModel) move(delta int) {
	m.Cursor = max(0, min(m.Cursor+delta, len(m.Rows)-1))
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.Height {
		m.Offset = m.Cursor - m.Height + 1
	}
}

// refresh rebuilds Rows from the table and resets the cursor.
func (m *ResultsModel) refresh() {
	rows := make([]results.Row, 0, len(m.Table.Rows))
	for _, r := range m.Table.Rows {
		if m.SignificantOnly && !m.Thresholds.Passes(r) {
			continue
		}
		rows = append(rows, r)
	}
	slices.SortStableFunc(rows, func(a, b results.Row) int {
		switch m.Sort {
		case sortLog2FC:
			return compareMissingLast(math.Abs(b.Log2FoldChange), math.Abs(a.Log2FoldChange))
		case sortBaseMean:
			return compareMissingLast(b.BaseMean, a.BaseMean)
		}
		return compareMissingLast(a.PAdj, b.PAdj)
	})
	m.Rows = rows
	m.Cursor, m.Offset = 0, 0
}

// compareMissingLast orders x before y and NA values after everything.
func compareMissingLast(x, y float64) int {
	switch xm, ym := results.Missing(x), results.Missing(y); {
	case xm && ym:
		return 0
	case xm:
		return 1
	case ym:
		return -1
	}
	return cmp.Compare(x, y)
}

func (m ResultsModel) View() string {
	var b strings.Builder

	title := "Results"
	if m.Table.Coefficient != "" {
		title += ": " + m.Table.Coefficient
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("↑/↓ navigate  s sort  f significant only  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Rows))
	rows := make([][]string, 0, end-m.Offset)
	for i := m.Offset; i < end; i++ {
		r := m.Rows[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{
			cursor,
			r.ID,
			dash(r.Symbol),
			formatFloat(r.BaseMean, 1),
			formatFloat(r.Log2FoldChange, 3),
			formatPValue(r.PValue),
			formatPValue(r.PAdj),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers("", "ID", "Symbol", "baseMean", "log2FC", "pvalue", "padj").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			idx := m.Offset + row
			if idx >= len(m.Rows) {
				return lipgloss.NewStyle()
			}
			r := m.Rows[idx]
			base := lipgloss.NewStyle()
			switch {
			case !m.Thresholds.Passes(r):
				base = base.Foreground(colorDim)
			case r.Log2FoldChange > 0:
				base = upStyle
			default:
				base = downStyle
			}
			if idx == m.Cursor {
				return base.Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	status := fmt.Sprintf("  [%d/%d] sorted by %s", min(m.Cursor+1, len(m.Rows)), len(m.Rows), m.Sort)
	if m.SignificantOnly {
		status += " · significant only"
	}
	b.WriteString(StyleDim.Render(status))

	return b.String()
}

func dash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
