package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"book-reader/internal/models"
)

// Asker is the TUI-facing subset of the RAG pipeline.
type Asker interface {
	Ask(ctx context.Context, q models.Query) (*models.Answer, error)
}

type answerMsg struct {
	question string
	answer   *models.Answer
	err      error
}

// Model is the Bubble Tea model for the interactive ask loop.
type Model struct {
	ctx      context.Context
	asker    Asker
	topK     int
	input    textinput.Model
	viewport viewport.Model
	answer   *models.Answer
	question string
	summary  string
	status   string
	cursor   int // 0 is the answer, i > 0 is candidate i-1
	busy     bool
	ready    bool
}

// New creates a model asking with topK passages per question.
func New(ctx context.Context, asker Asker, topK int, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "? "
	ti.Placeholder = "Ask a question about your books and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		asker:    asker,
		topK:     topK,
		input:    ti,
		viewport: viewport.New(0, 0),
		summary:  summary,
		status:   "Ready. Up/Down browses candidates, Ctrl+C quits.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		ans, err := m.asker.Ask(m.ctx, models.Query{Question: question, TopK: m.topK})
		return answerMsg{question: question, answer: ans, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.render())
		return m, nil

	case answerMsg:
		m.busy = false
		m.question = msg.question
		m.cursor = 0
		if msg.err != nil {
			m.answer = nil
			m.status = statusFor(msg.err)
		} else {
			m.answer = msg.answer
			m.status = fmt.Sprintf("Answered %q", msg.question)
		}
		m.viewport.SetContent(m.render())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Searching..."
			m.input.SetValue("")
			return m, m.ask(q)
		case "down":
			if n := m.views(); n > 1 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if n := m.views(); n > 1 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Book Reader")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) views() int {
	if m.answer == nil {
		return 0
	}
	return 1 + len(m.answer.Candidates)
}

func (m Model) render() string {
	if m.answer == nil {
		return "No answer yet."
	}
	if m.cursor == 0 {
		return renderAnswer(m.answer)
	}
	c := m.answer.Candidates[m.cursor-1]
	title := fmt.Sprintf("Candidate %d/%d  %s #%d  distance=%.3f",
		m.cursor, len(m.answer.Candidates), c.Chunk.BookID, c.Chunk.Position, c.Distance)
	return title + "\n\n" + c.Chunk.Text
}

func renderAnswer(a *models.Answer) string {
	var b strings.Builder
	b.WriteString(answerStyle.Render(a.Text))
	fmt.Fprintf(&b, "\nConfidence: %.0f%%\n", a.Confidence*100)
	fmt.Fprintf(&b, "Source: %s, chunk %d (distance %.3f)\n\n",
		a.Citation.Chunk.BookID, a.Citation.Chunk.Position, a.Citation.Distance)
	b.WriteString(highlightSpan(a.Citation.Chunk.Text, a.Citation.Start, a.Citation.End))
	return b.String()
}

func highlightSpan(text string, start, end int) string {
	if start < 0 || end > len(text) || start >= end {
		return text
	}
	return text[:start] + highlightStyle.Render(text[start:end]) + text[end:]
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptyIndex):
		return "No books indexed yet. Add one with --add."
	case errors.Is(err, models.ErrNoAnswerFound):
		return "No answer found in the indexed books."
	}
	return "Error: " + err.Error()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
