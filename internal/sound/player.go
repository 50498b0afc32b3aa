package sound

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/nhle/frontdesk-notify/internal/model"
)

// Pipeline plays an alert for a notification type at a gain in 0..1.
type Pipeline interface {
	Name() string
	Play(ctx context.Context, t model.NotificationType, gain float64) error
}

// Resumer is implemented by pipelines whose backend must be woken before
// the first playback.
type Resumer interface {
	Resume(ctx context.Context) error
}

// linuxPlayers are tried in order when the player is "auto".
var linuxPlayers = []string{"paplay", "pw-play", "aplay"}

// CommandPipeline plays a WAV clip through an OS audio tool.
type CommandPipeline struct {
	tool     string
	clipPath string

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewCommandPipeline returns a pipeline for player ("auto" or a tool name).
// clipPath, when set, replaces the synthesized clip.
func NewCommandPipeline(player, clipPath string) *CommandPipeline {
	p := &CommandPipeline{
		clipPath: clipPath,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
	p.tool = p.detect(player)
	return p
}

func (p *CommandPipeline) detect(player string) string {
	if player != "" && player != "auto" {
		return player
	}
	switch runtime.GOOS {
	case "darwin":
		return "afplay"
	case "windows":
		return "powershell"
	case "linux":
		for _, name := range linuxPlayers {
			if _, err := p.lookPath(name); err == nil {
				return name
			}
		}
		return linuxPlayers[0]
	default:
		return ""
	}
}

// Name implements Pipeline.
func (p *CommandPipeline) Name() string {
	if p.tool == "" {
		return "none"
	}
	return p.tool
}

// Resume checks that the audio tool can be started.
func (p *CommandPipeline) Resume(_ context.Context) error {
	if p.tool == "" {
		return fmt.Errorf("no audio tool for %s: %w", runtime.GOOS, ErrNoPipeline)
	}
	if _, err := p.lookPath(p.tool); err != nil {
		return fmt.Errorf("audio tool %s: %w", p.tool, err)
	}
	return nil
}

// Play implements Pipeline.
func (p *CommandPipeline) Play(ctx context.Context, t model.NotificationType, gain float64) error {
	if p.tool == "" {
		return ErrNoPipeline
	}

	path := p.clipPath
	if path == "" {
		f, err := os.CreateTemp("", "frontdesk-alert-*.wav")
		if err != nil {
			return fmt.Errorf("creating clip file: %w", err)
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(renderClip(t, gain)); err != nil {
			f.Close()
			return fmt.Errorf("writing clip file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing clip file: %w", err)
		}
		path = f.Name()
		// The clip already carries the gain.
		gain = 1
	}

	return p.run(ctx, p.tool, p.args(path, gain)...)
}

func (p *CommandPipeline) args(path string, gain float64) []string {
	switch filepath.Base(p.tool) {
	case "paplay":
		return []string{"--volume=" + strconv.Itoa(int(gain*65536)), path}
	case "afplay":
		return []string{"-v", strconv.FormatFloat(gain, 'f', 2, 64), path}
	case "powershell", "powershell.exe", "pwsh":
		script := fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()",
			strings.ReplaceAll(path, "'", "''"))
		return []string{"-NoProfile", "-NonInteractive", "-Command", script}
	default:
		return []string{path}
	}
}

// BeepPipeline is the fallback: it plays the alert's tones through the
// system beeper. The beeper has no volume control, so gain only gates
// whether anything is played.
type BeepPipeline struct {
	beep  func(freq float64, duration int) error
	sleep func(time.Duration)
}

// NewBeepPipeline returns a beeper-backed pipeline.
func NewBeepPipeline() *BeepPipeline {
	return &BeepPipeline{beep: beeep.Beep, sleep: time.Sleep}
}

// Name implements Pipeline.
func (b *BeepPipeline) Name() string {
	return "beep"
}

// Play implements Pipeline.
func (b *BeepPipeline) Play(ctx context.Context, t model.NotificationType, gain float64) error {
	if gain <= 0 {
		return nil
	}
	for _, tn := range toneProfile(t) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.beep(tn.freq, int(tn.dur.Milliseconds())); err != nil {
			return fmt.Errorf("beep %.0fHz: %w", tn.freq, err)
		}
		if tn.gap > 0 {
			b.sleep(tn.gap)
		}
	}
	return nil
}
