package cli

import (
	"context"
	"fmt"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tomasbielik/precedent/internal/models"
)

var watchCmd = &cobra.Command{
	Use:   "watch <research-id>",
	Short: "Follow a research's progress live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchResearch(cmd.Context(), args[0])
	},
}

// Theme holds the color scheme for the live feed.
type Theme struct {
	Stage   lipgloss.Color
	Detail  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Stage:   lipgloss.Color("#5FAFD7"), // light blue
	Detail:  lipgloss.Color("#AFAFAF"), // gray
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) stageStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Stage)
}

func (t Theme) detailStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Detail)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// eventMsg carries one progress event from the watch stream.
type eventMsg models.Event

// watchDoneMsg signals the stream ended, possibly with an error.
type watchDoneMsg struct {
	err error
}

// maxFeedLines bounds how many recent events the feed shows.
const maxFeedLines = 12

// watchModel is the bubbletea model for the live feed.
type watchModel struct {
	researchID string
	events     chan tea.Msg
	spinner    spinner.Model
	theme      Theme
	lines      []string
	done       bool
	quitting   bool
	err        error
}

func newWatchModel(researchID string, events chan tea.Msg) watchModel {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	return watchModel{
		researchID: researchID,
		events:     events,
		spinner:    sp,
		theme:      defaultTheme,
	}
}

// waitForEvent blocks on the stream channel for the next message.
func (m watchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case eventMsg:
		m.lines = append(m.lines, m.renderEvent(models.Event(msg)))
		if len(m.lines) > maxFeedLines {
			m.lines = m.lines[len(m.lines)-maxFeedLines:]
		}
		return m, m.waitForEvent()

	case watchDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	var out string
	for _, line := range m.lines {
		out += line + "\n"
	}

	switch {
	case m.quitting:
		out += m.theme.hintStyle().Render(fmt.Sprintf(
			"\nResearch %s continues in background.\nUse 'precedent show %s' to read the result.",
			m.researchID, m.researchID)) + "\n"
	case m.done && m.err != nil:
		out += m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s", m.err)) + "\n"
	case m.done:
		out += m.theme.successStyle().Render("\n✓ Research finished") + "\n"
		out += m.theme.hintStyle().Render(fmt.Sprintf("Read it with: precedent show %s", m.researchID)) + "\n"
	default:
		out += fmt.Sprintf("\n%s working...  %s\n",
			m.spinner.View(),
			m.theme.hintStyle().Render("press q to detach"))
	}
	return out
}

func (m watchModel) renderEvent(ev models.Event) string {
	stage := m.theme.stageStyle().Render(fmt.Sprintf("%-19s", ev.Type))
	ts := m.theme.hintStyle().Render(ev.At.Format("15:04:05"))

	detail := ""
	if keyword, ok := ev.Data["search_keyword"]; ok {
		detail = m.theme.detailStyle().Render(fmt.Sprintf("%q", keyword))
	} else if file, ok := ev.Data["file_name"]; ok {
		detail = m.theme.detailStyle().Render(fmt.Sprintf("%v", file))
	} else if question, ok := ev.Data["question"]; ok {
		detail = m.theme.detailStyle().Render(fmt.Sprintf("%v", question))
	}

	return fmt.Sprintf("%s %s %s", ts, stage, detail)
}

// watchResearch runs the live feed UI over the research's event stream.
func watchResearch(ctx context.Context, researchID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := make(chan tea.Msg, 64)
	go func() {
		err := apiClient.Watch(ctx, researchID, func(ev models.Event) error {
			stream <- eventMsg(ev)
			return nil
		})
		stream <- watchDoneMsg{err: err}
	}()

	p := tea.NewProgram(newWatchModel(researchID, stream))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok && m.err != nil && !m.quitting {
		return m.err
	}
	return nil
}
