package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/bayslots/internal/constants"
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	OKStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	FailStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	WarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	CellStyle = lipgloss.NewStyle().
			PaddingRight(2)
)

// StatusStyle picks the style for a run status
func StatusStyle(status constants.RunStatus) lipgloss.Style {
	switch status {
	case constants.RunStatusOK:
		return OKStyle
	case constants.RunStatusPartial:
		return WarnStyle
	default:
		return FailStyle
	}
}
