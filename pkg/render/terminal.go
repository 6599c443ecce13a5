package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-gazekeys/pkg/pipeline"
)

var (
	colorActive  = lipgloss.Color("#f38ba8")
	colorIdle    = lipgloss.Color("#a6e3a1")
	colorMuted   = lipgloss.Color("#7f849c")
	colorText    = lipgloss.Color("#cdd6f4")
	colorCommand = lipgloss.Color("#fab387")
)

// Terminal redraws a one-line status bar in place.
type Terminal struct {
	out  io.Writer
	last string
}

// NewTerminal writes to out, or stdout when out is nil.
func NewTerminal(out io.Writer) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{out: out}
}

// StatusLine renders s as a styled single line.
func StatusLine(s pipeline.State) string {
	var b strings.Builder

	if s.Active {
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(colorActive).Render("COMMAND ACTIVE"))
		b.WriteString(lipgloss.NewStyle().Foreground(colorMuted).Render(
			fmt.Sprintf(" %.1fs", s.Remaining.Seconds())))
	} else {
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(colorIdle).Render("MONITORING"))
	}

	text := lipgloss.NewStyle().Foreground(colorText)
	muted := lipgloss.NewStyle().Foreground(colorMuted)

	b.WriteString(muted.Render("  eye "))
	if s.HasEye {
		b.WriteString(text.Render(fmt.Sprintf("%.2f", s.Openness)))
	} else {
		b.WriteString(muted.Render("--"))
	}

	b.WriteString(muted.Render("  pupil "))
	if s.Pupil.Found() {
		b.WriteString(text.Render(fmt.Sprintf("%.0f,%.0f", s.Pupil.X, s.Pupil.Y)))
	} else {
		b.WriteString(muted.Render("--"))
	}

	if !s.Calibrated {
		b.WriteString(muted.Render("  uncalibrated"))
	} else {
		b.WriteString(muted.Render("  gaze "))
		b.WriteString(text.Render(fmt.Sprintf("%+.2f,%+.2f", s.Gaze.X, s.Gaze.Y)))
	}

	if s.Dispatched {
		b.WriteString("  ")
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(colorCommand).Render(
			s.Direction.Arrow() + " " + strings.ToUpper(s.Direction.String())))
	}

	b.WriteString(muted.Render(fmt.Sprintf("  %.0f fps  %d cmds", s.Stats.FPS, s.Stats.Commands)))
	return b.String()
}

// Render redraws the line when it changed.
func (t *Terminal) Render(s pipeline.State) error {
	line := StatusLine(s)
	if line == t.last {
		return nil
	}
	t.last = line
	_, err := fmt.Fprint(t.out, "\r\033[K"+line)
	return err
}

// Close ends the status line.
func (t *Terminal) Close() error {
	if t.last == "" {
		return nil
	}
	_, err := fmt.Fprintln(t.out)
	return err
}
