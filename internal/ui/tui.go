package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// maxVisibleErrors bounds the error tail the TUI shows, both while it
// runs and on completion; older errors are not shown.
const maxVisibleErrors = 5

// TUIRenderer is the interactive renderer: spinner, per-stage progress
// bar, and a rolling error tail.
type TUIRenderer struct {
	cfg     Config
	program *tea.Program

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates the TUI renderer. It fails when the terminal
// can't be initialised, letting the caller fall back to plain output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if cfg.Output == nil {
		return nil, fmt.Errorf("tui requires an output writer")
	}
	return &TUIRenderer{cfg: cfg, done: make(chan struct{})}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	model := newBuildModel(r.cfg.ProjectDir)
	r.program = tea.NewProgram(model,
		tea.WithOutput(r.cfg.Output),
		tea.WithContext(ctx),
		tea.WithoutSignalHandler(),
	)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.send(progressMsg(event))
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.send(errorMsg(event))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.send(completeMsg(stats))
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program != nil {
		program.Quit()
		<-r.done
	}
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()
	if program != nil {
		program.Send(msg)
	}
}

type progressMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats

// buildModel is the bubbletea model for the three-phase build.
type buildModel struct {
	projectDir string

	spin    spinner.Model
	bar     progress.Model
	stage   Stage
	current int
	total   int
	file    string

	errors   []ErrorEvent
	complete bool
	stats    CompletionStats
}

func newBuildModel(projectDir string) buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return buildModel{
		projectDir: projectDir,
		spin:       s,
		bar:        progress.New(progress.WithDefaultGradient()),
	}
}

// Init implements tea.Model.
func (m buildModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.
func (m buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progressMsg:
		m.stage = msg.Stage
		m.current = msg.Current
		m.total = msg.Total
		m.file = msg.CurrentFile
		return m, nil

	case errorMsg:
		m.errors = append(m.errors, ErrorEvent(msg))
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m buildModel) View() string {
	var b strings.Builder

	title := "ruby-fast-lsp"
	if m.projectDir != "" {
		title += "  " + m.projectDir
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	if m.complete {
		b.WriteString(doneStyle.Render(fmt.Sprintf(
			"Indexed %d files: %d definitions, %d references, %d unresolved in %s",
			m.stats.Files, m.stats.Definitions, m.stats.References,
			m.stats.Unresolved, m.stats.Duration.Round(1e8))))
		b.WriteString("\n")
	} else {
		b.WriteString(m.spin.View())
		b.WriteString(" ")
		b.WriteString(stageStyle.Render(m.stage.String()))
		if m.total > 0 {
			b.WriteString(fmt.Sprintf(" %d/%d\n", m.current, m.total))
			b.WriteString(m.bar.ViewAs(float64(m.current) / float64(m.total)))
			b.WriteString("\n")
		} else {
			b.WriteString("\n")
		}
		if m.file != "" {
			b.WriteString(fileStyle.Render(m.file))
			b.WriteString("\n")
		}
	}

	if n := len(m.errors); n > 0 {
		b.WriteString("\n")
		start := 0
		if n > maxVisibleErrors {
			start = n - maxVisibleErrors
		}
		for _, e := range m.errors[start:] {
			style := errorStyle
			prefix := "ERROR"
			if e.IsWarn {
				style = warnStyle
				prefix = "WARN"
			}
			b.WriteString(style.Render(fmt.Sprintf("%s %s: %v", prefix, e.File, e.Err)))
			b.WriteString("\n")
		}
	}

	return b.String()
}
