package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"trustbridge/pkg/types"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(highlight).
			Padding(0, 2).
			Bold(true)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)

	hintStyle = lipgloss.NewStyle().Foreground(subtle)
)

// quietSpinner is a spinner that does nothing in JSON mode
type quietSpinner struct {
	s *spinner.Spinner
}

func startSpinner(suffix string, enabled bool) *quietSpinner {
	if !enabled {
		return &quietSpinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Start()
	return &quietSpinner{s: s}
}

func (q *quietSpinner) update(suffix string) {
	if q.s != nil {
		q.s.Lock()
		q.s.Suffix = " " + suffix
		q.s.Unlock()
	}
}

func (q *quietSpinner) stop() {
	if q.s != nil {
		q.s.Stop()
	}
}

func banner(title string) {
	fmt.Println()
	fmt.Println(headerStyle.Render(title))
}

func step(n int, title string) {
	fmt.Println(stepStyle.Render(fmt.Sprintf("STEP %d: %s", n, strings.ToUpper(title))))
}

func section(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	color.Green("%s", center(title, width))
	fmt.Println(strings.Repeat("=", width))
}

func center(s string, width int) string {
	if pad := (width - len(s)) / 2; pad > 0 {
		return strings.Repeat(" ", pad) + s
	}
	return s
}

func coloredStatus(status types.TransferStatus) string {
	label := strings.ToUpper(string(status.Normalize()))
	switch {
	case status.IsSuccess():
		return color.GreenString(label)
	case status.IsFailure():
		return color.RedString(label)
	case label == "":
		return color.HiBlackString("UNKNOWN")
	default:
		return color.YellowString(label)
	}
}

func money(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + strings.ToUpper(currency)
}
