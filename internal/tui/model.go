package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/domain"
	"docchat/internal/generation"
	"docchat/internal/service"
)

// Port is the TUI-facing subset of the document chat service.
type Port interface {
	LoadFile(ctx context.Context, path string) (*service.Session, error)
	Ask(ctx context.Context, question string) (*service.Answer, error)
	Current() *service.Session
	Cancel()
}

type loadedMsg struct {
	session *service.Session
	reused  bool
	err     error
}

type answerMsg struct {
	seq    int
	answer *service.Answer
	err    error
}

type fragmentMsg struct {
	seq  int
	text string
}

type streamDoneMsg struct {
	seq int
	err error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	service  Port
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	busy       bool
	status     string
	question   string
	answer     strings.Builder
	incomplete bool
	sources    []domain.Scored
	cursor     int
	stream     generation.Stream
	seq        int
	ready      bool
}

// New creates the chat screen. If a document is already loaded its
// overview is shown immediately.
func New(svc Port) *Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /open <path>"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m := &Model{service: svc, input: ti, viewport: viewport.New(0, 0), spinner: sp}
	if sess := svc.Current(); sess != nil {
		m.status = fmt.Sprintf("Document processed and embedded into %d chunks.", len(sess.Passages))
	} else {
		m.status = "Open a document with /open <path>."
	}
	return m
}

// Init starts the cursor blink and spinner.
func (m *Model) Init() tea.Cmd { return tea.Batch(textinput.Blink, m.spinner.Tick) }

// Update handles input, window and pipeline events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+overview, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		case msg.reused:
			m.status = fmt.Sprintf("%s is already loaded.", msg.session.Name)
		default:
			m.resetAnswer()
			m.status = fmt.Sprintf("Document processed and embedded into %d chunks.", len(msg.session.Passages))
		}
		m.refresh()
		return m, nil

	case answerMsg:
		if msg.seq != m.seq {
			if msg.answer != nil {
				msg.answer.Stream.Close()
			}
			return m, nil
		}
		if msg.err != nil {
			m.busy = false
			m.status = "Error: " + msg.err.Error()
			if errors.Is(msg.err, context.Canceled) {
				m.status = "Cancelled."
			}
			m.refresh()
			return m, nil
		}
		m.sources = msg.answer.Sources
		m.stream = msg.answer.Stream
		m.status = "Generating answer..."
		m.refresh()
		return m, nextFragment(m.seq, m.stream)

	case fragmentMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.answer.WriteString(msg.text)
		m.refresh()
		return m, nextFragment(m.seq, m.stream)

	case streamDoneMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.busy = false
		m.stream = nil
		switch {
		case msg.err == nil:
			m.status = fmt.Sprintf("Answered from %d passages.", len(m.sources))
		case errors.Is(msg.err, context.Canceled):
			m.incomplete = true
			m.status = "Cancelled."
		default:
			m.incomplete = true
			m.status = "Error: " + msg.err.Error()
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.service.Cancel()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.busy {
				m.service.Cancel()
			}
			return m, nil
		case tea.KeyEnter:
			return m, m.submit(strings.TrimSpace(m.input.Value()))
		case tea.KeyDown:
			if len(m.sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.sources)
				m.refresh()
				return m, nil
			}
		case tea.KeyUp:
			if len(m.sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.sources)) % len(m.sources)
				m.refresh()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	m.input.SetValue("")
	if line == "/quit" {
		m.service.Cancel()
		return tea.Quit
	}
	if path, ok := strings.CutPrefix(line, "/open "); ok {
		m.busy = true
		m.status = "Chunking and embedding document..."
		m.refresh()
		return tea.Batch(m.spinner.Tick, loadDocument(m.service, strings.TrimSpace(path)))
	}
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
	m.seq++
	m.resetAnswer()
	m.question = line
	m.busy = true
	m.status = "Retrieving relevant chunks..."
	m.refresh()
	return tea.Batch(m.spinner.Tick, ask(m.service, m.seq, line))
}

func (m *Model) resetAnswer() {
	m.question = ""
	m.answer.Reset()
	m.incomplete = false
	m.sources = nil
	m.cursor = 0
}

func loadDocument(svc Port, path string) tea.Cmd {
	return func() tea.Msg {
		prev := svc.Current()
		sess, err := svc.LoadFile(context.Background(), path)
		return loadedMsg{session: sess, reused: err == nil && sess == prev, err: err}
	}
}

func ask(svc Port, seq int, question string) tea.Cmd {
	return func() tea.Msg {
		ans, err := svc.Ask(context.Background(), question)
		return answerMsg{seq: seq, answer: ans, err: err}
	}
}

func nextFragment(seq int, s generation.Stream) tea.Cmd {
	return func() tea.Msg {
		frag, err := s.Next()
		if errors.Is(err, io.EOF) {
			return streamDoneMsg{seq: seq}
		}
		if err != nil {
			return streamDoneMsg{seq: seq, err: err}
		}
		return fragmentMsg{seq: seq, text: frag}
	}
}

// View renders the screen.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "docchat"
	overview := "No document loaded."
	if sess := m.service.Current(); sess != nil {
		title += " · " + sess.Name
		overview = sess.Summary
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).MaxHeight(1).Render(overview)
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	return header + "\n" + summary + "\n" + resultBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
}

func (m *Model) render() string {
	if m.question == "" {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(questionStyle.Render("Q: " + m.question))
	b.WriteString("\n\n")
	b.WriteString(m.answer.String())
	if m.incomplete {
		b.WriteString(incompleteStyle.Render(" [incomplete]"))
	}
	if len(m.sources) == 0 {
		return b.String()
	}
	b.WriteString("\n\nSources:\n")
	for i, src := range m.sources {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s#%d  passage %d  score=%.3f\n", marker, i+1, src.Passage.Index, src.Score)
	}
	b.WriteString("\n")
	b.WriteString(highlightBestSentence(m.sources[m.cursor].Passage.Text, m.question))
	return b.String()
}

var (
	resultBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	questionStyle   = lipgloss.NewStyle().Bold(true)
	incompleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unicodeWordRe   = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)
