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

	"teabot/internal/domain"
	"teabot/internal/service"
)

// Pipeline is the TUI-facing subset of the recommendation service.
type Pipeline interface {
	Recommend(ctx context.Context, req service.Request) (*service.Result, error)
	Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredItem, error)
}

// Mode selects what Enter does with the typed query.
type Mode int

const (
	// ModeChat sends the query through the full pipeline and shows the reply.
	ModeChat Mode = iota
	// ModeSearch only retrieves and shows the matches with their scores.
	ModeSearch
)

// Options configures the model.
type Options struct {
	Mode Mode
	// TopN is the number of search results; chat uses the pipeline default.
	TopN int
	// Timeout bounds one pipeline call; zero means none.
	Timeout time.Duration
}

type turn struct {
	query string
	reply string
	err   bool
}

// replyMsg carries a finished chat call back into Update.
type replyMsg struct {
	query string
	text  string
	err   error
}

// resultsMsg carries a finished search back into Update.
type resultsMsg struct {
	query string
	items []domain.ScoredItem
	err   error
}

// Model is the Bubble Tea model for the chat and search views.
type Model struct {
	pipeline  Pipeline
	opts      Options
	input     textinput.Model
	viewport  viewport.Model
	turns     []turn
	results   []domain.ScoredItem
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a TUI model. summary is shown under the header.
func New(p Pipeline, summary string, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "You: "
	ti.Placeholder = "Describe the tea you feel like, or type quit"
	if opts.Mode == ModeSearch {
		ti.Prompt = "> "
		ti.Placeholder = "Type query and press Enter"
	}
	ti.Focus()
	ti.CharLimit = 0
	if opts.TopN <= 0 {
		opts.TopN = service.DefaultTopN
	}
	vp := viewport.New(0, 0)
	return Model{
		pipeline: p,
		opts:     opts,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready. Type a query and press Enter.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and pipeline events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case replyMsg:
		m.busy = false
		t := turn{query: msg.query, reply: msg.text}
		if msg.err != nil {
			// the chat never dies on a provider failure; the error is the reply
			t.reply = "Error: " + msg.err.Error()
			t.err = true
			m.status = "The last request failed."
		} else {
			m.status = "Ready."
		}
		m.turns = append(m.turns, t)
		m.refresh()
		return m, nil
	case resultsMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("Results for %q", msg.query)
			m.results = msg.items
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			if strings.EqualFold(q, "quit") || strings.EqualFold(q, "exit") {
				return m, tea.Quit
			}
			m.input.SetValue("")
			m.busy = true
			m.status = "Thinking..."
			if m.opts.Mode == ModeSearch {
				m.status = "Searching..."
				return m, m.search(q)
			}
			return m, m.recommend(q)
		case "down":
			if m.opts.Mode == ModeSearch && len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.refresh()
				return m, nil
			}
		case "up":
			if m.opts.Mode == ModeSearch && len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.refresh()
				return m, nil
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) callContext() (context.Context, context.CancelFunc) {
	if m.opts.Timeout > 0 {
		return context.WithTimeout(context.Background(), m.opts.Timeout)
	}
	return context.WithCancel(context.Background())
}

func (m Model) recommend(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.callContext()
		defer cancel()
		res, err := m.pipeline.Recommend(ctx, service.Request{Query: q})
		if err != nil {
			return replyMsg{query: q, err: err}
		}
		return replyMsg{query: q, text: res.Text}
	}
}

func (m Model) search(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.callContext()
		defer cancel()
		items, err := m.pipeline.Retrieve(ctx, q, m.opts.TopN)
		return resultsMsg{query: q, items: items, err: err}
	}
}

func (m *Model) refresh() {
	if m.opts.Mode == ModeSearch {
		m.viewport.SetContent(m.renderCurrentResult())
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("TeaBot")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	body := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "Welcome to TeaBot! Tell me what kind of tea you are in the mood for."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(userStyle.Render("You: ") + t.query + "\n")
		reply := t.reply
		if t.err {
			reply = errorStyle.Render(reply)
		}
		b.WriteString(botStyle.Render("TeaBot: ") + reply)
	}
	return b.String()
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  score=%.3f", m.cursor+1, len(m.results), r.Score)
	it := r.Item
	head := highlightStyle.Render(it.Name) + fmt.Sprintf(" (%s)", it.Type)
	if len(it.Flavors) > 0 {
		head += "\nFlavors: " + strings.Join(it.Flavors, ", ")
	}
	body := highlightBestSentence(it.Description, m.lastQuery)
	return title + "\n\n" + head + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the description sentence sharing the most
// words with the query.
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
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if bestScore > 0 && i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
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
