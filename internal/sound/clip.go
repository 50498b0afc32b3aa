package sound

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/nhle/frontdesk-notify/internal/model"
)

const sampleRate = 22050

// tone is one note of an alert.
type tone struct {
	freq float64
	dur  time.Duration
	gap  time.Duration
}

// toneProfile returns the notes played for an alert type.
func toneProfile(t model.NotificationType) []tone {
	switch t {
	case model.NotificationBooking:
		return []tone{
			{freq: 880, dur: 140 * time.Millisecond, gap: 40 * time.Millisecond},
			{freq: 1175, dur: 220 * time.Millisecond},
		}
	case model.NotificationPayment:
		return []tone{
			{freq: 1047, dur: 110 * time.Millisecond, gap: 30 * time.Millisecond},
			{freq: 1319, dur: 110 * time.Millisecond, gap: 30 * time.Millisecond},
			{freq: 1568, dur: 200 * time.Millisecond},
		}
	case model.NotificationPromotion:
		return []tone{
			{freq: 784, dur: 150 * time.Millisecond, gap: 50 * time.Millisecond},
			{freq: 988, dur: 150 * time.Millisecond},
		}
	default:
		return []tone{
			{freq: 660, dur: 180 * time.Millisecond},
		}
	}
}

// renderClip synthesizes the alert for t as a 16-bit mono PCM WAV file at
// the given gain (0..1).
func renderClip(t model.NotificationType, gain float64) []byte {
	gain = math.Max(0, math.Min(1, gain))

	var samples []int16
	for _, tn := range toneProfile(t) {
		samples = append(samples, renderTone(tn.freq, tn.dur, gain)...)
		samples = append(samples, make([]int16, samplesFor(tn.gap))...)
	}
	return encodeWAV(samples)
}

func samplesFor(d time.Duration) int {
	return int(d.Seconds() * sampleRate)
}

// renderTone produces a sine with a fundamental plus a soft octave overtone,
// a short linear attack and an exponential decay.
func renderTone(freq float64, dur time.Duration, gain float64) []int16 {
	n := samplesFor(dur)
	attack := samplesFor(8 * time.Millisecond)
	out := make([]int16, n)

	for i := 0; i < n; i++ {
		ts := float64(i) / sampleRate
		env := math.Exp(-4 * float64(i) / float64(n))
		if i < attack {
			env *= float64(i) / float64(attack)
		}
		v := 0.8*math.Sin(2*math.Pi*freq*ts) + 0.2*math.Sin(4*math.Pi*freq*ts)
		out[i] = int16(v * env * gain * math.MaxInt16 * 0.9)
	}
	return out
}

func encodeWAV(samples []int16) []byte {
	dataLen := uint32(len(samples) * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
