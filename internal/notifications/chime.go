package notifications

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

const chimeSampleRate = 22050

type Tone struct {
	Frequency float64       `json:"frequency"`
	Duration  time.Duration `json:"duration"`
}

// Cue is a short sound played when a notification arrives. WAV is a mono
// 16-bit PCM rendering of Tones, ready for the UI to play.
type Cue struct {
	Tones []Tone `json:"tones"`
	WAV   []byte `json:"wav"`
}

var (
	chimeOnce sync.Once
	chime     Cue
)

// TwoToneChime is the delivery cue: 800 Hz then 600 Hz.
func TwoToneChime() Cue {
	chimeOnce.Do(func() {
		tones := []Tone{
			{Frequency: 800, Duration: 150 * time.Millisecond},
			{Frequency: 600, Duration: 150 * time.Millisecond},
		}
		chime = Cue{Tones: tones, WAV: renderWAV(tones, chimeSampleRate)}
	})
	return chime
}

// renderWAV runs a sine oscillator over each tone with an exponential decay
// so consecutive tones do not click.
func renderWAV(tones []Tone, sampleRate int) []byte {
	var samples []int16
	for _, t := range tones {
		n := int(t.Duration.Seconds() * float64(sampleRate))
		for i := 0; i < n; i++ {
			progress := float64(i) / float64(n)
			gain := 0.3 * math.Exp(-4*progress)
			v := gain * math.Sin(2*math.Pi*t.Frequency*float64(i)/float64(sampleRate))
			samples = append(samples, int16(v*math.MaxInt16))
		}
	}

	dataSize := uint32(len(samples) * 2)
	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
