package cmd

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/shaharia-lab/tradedev/internal/devproxy"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// renderRules draws the rule table in evaluation order.
func renderRules(rules []*devproxy.Rule) string {
	rows := make([][]string, 0, len(rules))
	for _, rule := range rules {
		info := rule.Info()
		rows = append(rows, []string{
			info.Prefix,
			info.Target,
			yesNo(info.ChangeOrigin),
			yesNo(info.Secure),
			headerNames(info.Headers),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("PREFIX", "UPSTREAM", "CHANGE ORIGIN", "VERIFY TLS", "HEADERS").
		Rows(rows...)
	return t.String()
}

func headerNames(h map[string]string) string {
	if len(h) == 0 {
		return "-"
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
