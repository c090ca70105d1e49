package notify

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"go.uber.org/zap"
)

const sampleRate = beep.SampleRate(44100)

// chime is the two-tone alert: a short A5 followed by an E6.
var chime = []struct {
	freq float64
	dur  time.Duration
}{
	{880, 120 * time.Millisecond},
	{1318.5, 180 * time.Millisecond},
}

// BeepAlerter plays the alert chime on the default audio device. If the device
// cannot be opened it falls back to silent mode and only logs.
type BeepAlerter struct {
	logger *zap.Logger

	once   sync.Once
	silent bool

	// Seams for tests.
	initSpeaker func(sr beep.SampleRate, bufferSize int) error
	play        func(s ...beep.Streamer)
}

// NewBeepAlerter creates an alerter. The speaker is opened lazily on the first alert.
func NewBeepAlerter(logger *zap.Logger) *BeepAlerter {
	return &BeepAlerter{
		logger:      logger.Named("notify.beep"),
		initSpeaker: speaker.Init,
		play:        speaker.Play,
	}
}

func (b *BeepAlerter) init() {
	b.once.Do(func() {
		if err := b.initSpeaker(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
			b.silent = true
			b.logger.Warn("Audio device unavailable, alerts are silent", zap.Error(err))
		}
	})
}

// Silent reports whether the alerter fell back to silent mode.
func (b *BeepAlerter) Silent() bool {
	b.init()
	return b.silent
}

// PlayAlert queues the chime without waiting for it to finish.
func (b *BeepAlerter) PlayAlert(context.Context) {
	if b.Silent() {
		return
	}
	b.play(Chime(sampleRate))
}

// Notify is a no-op; the alerter has no text channel.
func (b *BeepAlerter) Notify(context.Context, string) {}

// Chime builds the alert streamer at the given sample rate.
func Chime(sr beep.SampleRate) beep.Streamer {
	parts := make([]beep.Streamer, 0, len(chime))
	for _, c := range chime {
		parts = append(parts, beep.Take(sr.N(c.dur), Tone(sr, c.freq, c.dur)))
	}
	return beep.Seq(parts...)
}

// Tone generates a sine wave with a linear fade-out over dur, so the chime does not click.
func Tone(sr beep.SampleRate, freq float64, dur time.Duration) beep.Streamer {
	total := sr.N(dur)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			env := 0.0
			if pos < total {
				env = 1 - float64(pos)/float64(total)
			}
			v := 0.3 * env * math.Sin(2*math.Pi*freq*float64(pos)/float64(sr))
			samples[i][0] = v
			samples[i][1] = v
			pos++
		}
		return len(samples), true
	})
}
