package sound

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/frontdesk-notify/internal/model"
)

func TestRenderClip(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		typ   model.NotificationType
		tones int
	}{
		"booking":   {typ: model.NotificationBooking, tones: 2},
		"payment":   {typ: model.NotificationPayment, tones: 3},
		"promotion": {typ: model.NotificationPromotion, tones: 2},
		"system":    {typ: model.NotificationSystem, tones: 1},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Len(t, toneProfile(tt.typ), tt.tones)

			clip := renderClip(tt.typ, 0.7)
			require.Greater(t, len(clip), 44)
			assert.Equal(t, "RIFF", string(clip[0:4]))
			assert.Equal(t, "WAVE", string(clip[8:12]))
			assert.Equal(t, "data", string(clip[36:40]))
			dataLen := binary.LittleEndian.Uint32(clip[40:44])
			assert.EqualValues(t, len(clip)-44, dataLen)
			assert.EqualValues(t, len(clip)-8, binary.LittleEndian.Uint32(clip[4:8]))
		})
	}
}

func TestRenderClip_ZeroGainIsSilent(t *testing.T) {
	t.Parallel()
	clip := renderClip(model.NotificationBooking, 0)
	assert.True(t, bytes.Equal(clip[44:], make([]byte, len(clip)-44)))
}

func newTestCommandPipeline(tool string) (*CommandPipeline, *[][]string) {
	var calls [][]string
	p := &CommandPipeline{
		tool:     tool,
		lookPath: func(string) (string, error) { return "/usr/bin/x", nil },
		run: func(_ context.Context, name string, args ...string) error {
			calls = append(calls, append([]string{name}, args...))
			// The temp clip must exist while the tool runs.
			if _, err := os.Stat(args[len(args)-1]); err != nil && name != "powershell" {
				return err
			}
			return nil
		},
	}
	return p, &calls
}

func TestCommandPipeline_Args(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		tool     string
		clipPath string
		want     func(t *testing.T, args []string)
	}{
		"paplay synthesized clip plays at full scale": {
			tool: "paplay",
			want: func(t *testing.T, args []string) {
				assert.Equal(t, "--volume=65536", args[1])
			},
		},
		"paplay custom clip carries gain": {
			tool:     "paplay",
			clipPath: os.DevNull,
			want: func(t *testing.T, args []string) {
				assert.Equal(t, []string{"paplay", "--volume=32768", os.DevNull}, args)
			},
		},
		"afplay custom clip": {
			tool:     "afplay",
			clipPath: os.DevNull,
			want: func(t *testing.T, args []string) {
				assert.Equal(t, []string{"afplay", "-v", "0.50", os.DevNull}, args)
			},
		},
		"aplay": {
			tool:     "aplay",
			clipPath: os.DevNull,
			want: func(t *testing.T, args []string) {
				assert.Equal(t, []string{"aplay", os.DevNull}, args)
			},
		},
		"powershell": {
			tool:     "powershell",
			clipPath: `C:\it's.wav`,
			want: func(t *testing.T, args []string) {
				assert.Equal(t, "-Command", args[3])
				assert.Contains(t, args[4], `'C:\it''s.wav'`)
			},
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p, calls := newTestCommandPipeline(tt.tool)
			p.clipPath = tt.clipPath

			require.NoError(t, p.Play(context.Background(), model.NotificationBooking, 0.5))
			require.Len(t, *calls, 1)
			tt.want(t, (*calls)[0])
		})
	}
}

func TestCommandPipeline_Resume(t *testing.T) {
	t.Parallel()
	p, _ := newTestCommandPipeline("paplay")
	require.NoError(t, p.Resume(context.Background()))

	p.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	assert.Error(t, p.Resume(context.Background()))

	none := &CommandPipeline{}
	assert.ErrorIs(t, none.Resume(context.Background()), ErrNoPipeline)
	assert.ErrorIs(t, none.Play(context.Background(), model.NotificationSystem, 1), ErrNoPipeline)
	assert.Equal(t, "none", none.Name())
}

func TestCommandPipeline_DetectExplicit(t *testing.T) {
	t.Parallel()
	p := NewCommandPipeline("pw-play", "")
	assert.Equal(t, "pw-play", p.Name())
}

func TestBeepPipeline(t *testing.T) {
	t.Parallel()
	var freqs []float64
	var slept time.Duration
	b := &BeepPipeline{
		beep: func(freq float64, _ int) error {
			freqs = append(freqs, freq)
			return nil
		},
		sleep: func(d time.Duration) { slept += d },
	}

	require.NoError(t, b.Play(context.Background(), model.NotificationPayment, 0.5))
	assert.Equal(t, []float64{1047, 1319, 1568}, freqs)
	assert.Equal(t, 60*time.Millisecond, slept)

	freqs = nil
	require.NoError(t, b.Play(context.Background(), model.NotificationPayment, 0))
	assert.Empty(t, freqs)

	b.beep = func(float64, int) error { return errors.New("no speaker") }
	assert.Error(t, b.Play(context.Background(), model.NotificationSystem, 1))
	assert.Equal(t, "beep", b.Name())
}
