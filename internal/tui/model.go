// Package tui is an interactive search browser over one collection.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hybridrag/internal/domain"
	"hybridrag/internal/embedding/lexical"
)

// Searcher is the TUI-facing subset of the retriever.
type Searcher interface {
	Search(ctx context.Context, name, query string, limit int) ([]domain.SearchResult, error)
	Descriptor(ctx context.Context, name string) (domain.SearchResult, error)
}

const searchTimeout = 30 * time.Second

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	searcher   Searcher
	collection string
	limit      int
	input      textinput.Model
	viewport   viewport.Model
	results    []domain.SearchResult
	descriptor string
	status     string
	cursor     int
	ready      bool
	lastQuery  string
}

type descriptorMsg struct {
	result domain.SearchResult
	err    error
}

type resultsMsg struct {
	query   string
	results []domain.SearchResult
	err     error
}

// New creates a new TUI model instance.
func New(searcher Searcher, collection string, limit int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		searcher:   searcher,
		collection: collection,
		limit:      limit,
		input:      ti,
		viewport:   vp,
		status:     "Type to search.",
	}
}

// Init starts the cursor blink and fetches the collection descriptor.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchDescriptor)
}

func (m Model) fetchDescriptor() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()
	res, err := m.searcher.Descriptor(ctx, m.collection)
	return descriptorMsg{result: res, err: err}
}

func (m Model) search(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		res, err := m.searcher.Search(ctx, m.collection, q, m.limit)
		return resultsMsg{query: q, results: res, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + descriptor
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case descriptorMsg:
		if msg.err != nil {
			m.descriptor = "(no descriptor: " + msg.err.Error() + ")"
		} else {
			m.descriptor = firstLine(msg.result.Document)
		}
		return m, nil
	case resultsMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.results), msg.query)
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m.status = "Searching..."
				return m, m.search(q)
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("hybridrag · " + m.collection)
	descriptor := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.descriptor)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + descriptor + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  id=%d  score=%.4f", m.cursor+1, len(m.results), r.ID, r.Score)
	meta := metaStyle.Render(metadataLine(r.Metadata))
	body := highlightBestSentence(r.Document, m.lastQuery)
	return title + "\n" + meta + "\n\n" + body
}

func metadataLine(md domain.Metadata) string {
	return fmt.Sprintf("page %d  at (%.0f, %.0f)  size %g  color %s", md.Page+1, md.X, md.Y, md.Size, md.Color)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sentenceRe     = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
)

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return joinTrimmed(sentences)
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func joinTrimmed(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := lexical.Tokenize(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range lexical.Tokenize(sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
