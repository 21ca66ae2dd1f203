// Package audio holds the PCM clip model, WAV codec, the small amount of DSP
// the briefing needs and the Mixer that assembles the final track.
package audio

import (
	"math"
)

// DefaultSampleRate is the rate every clip is mixed at.
const DefaultSampleRate = 24000

// Clip is mono PCM audio with samples in [-1, 1].
type Clip struct {
	SampleRate int
	Samples    []float64
}

// Silence returns ms milliseconds of silence at rate.
func Silence(ms int, rate int) *Clip {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Clip{SampleRate: rate, Samples: make([]float64, samplesFor(ms, rate))}
}

func samplesFor(ms, rate int) int {
	if ms <= 0 {
		return 0
	}
	return ms * rate / 1000
}

// Len is the number of samples.
func (c *Clip) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Samples)
}

// Seconds is the clip duration.
func (c *Clip) Seconds() float64 {
	if c == nil || c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Clone copies the clip.
func (c *Clip) Clone() *Clip {
	return &Clip{SampleRate: c.SampleRate, Samples: append([]float64(nil), c.Samples...)}
}

// Append adds other to the end of c. other is resampled when rates differ.
func (c *Clip) Append(other *Clip) {
	if other == nil || len(other.Samples) == 0 {
		return
	}
	if other.SampleRate != c.SampleRate {
		other = other.Resample(c.SampleRate)
	}
	c.Samples = append(c.Samples, other.Samples...)
}

// DBFS is the RMS level relative to full scale. Silence is -Inf.
func (c *Clip) DBFS() float64 {
	if c.Len() == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range c.Samples {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(c.Samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// Gain scales the clip by db decibels in place.
func (c *Clip) Gain(db float64) *Clip {
	if db == 0 {
		return c
	}
	f := math.Pow(10, db/20)
	for i := range c.Samples {
		c.Samples[i] *= f
	}
	return c
}

// Normalize moves the clip's RMS level to target dBFS. Silent clips are left alone.
func (c *Clip) Normalize(target float64) *Clip {
	level := c.DBFS()
	if math.IsInf(level, -1) {
		return c
	}
	return c.Gain(target - level)
}

// Compress lowers the whole clip when its level is above threshold, by
// (level - threshold) * (1 - 1/ratio) dB.
func (c *Clip) Compress(threshold, ratio float64) *Clip {
	level := c.DBFS()
	if ratio <= 1 || math.IsInf(level, -1) || level <= threshold {
		return c
	}
	return c.Gain(-(level - threshold) * (1 - 1/ratio))
}

// FadeIn ramps the first ms milliseconds up from silence.
func (c *Clip) FadeIn(ms int) *Clip {
	n := samplesFor(ms, c.SampleRate)
	if n > len(c.Samples) {
		n = len(c.Samples)
	}
	for i := 0; i < n; i++ {
		c.Samples[i] *= float64(i) / float64(n)
	}
	return c
}

// FadeOut ramps the last ms milliseconds down to silence.
func (c *Clip) FadeOut(ms int) *Clip {
	n := samplesFor(ms, c.SampleRate)
	total := len(c.Samples)
	if n > total {
		n = total
	}
	for i := 0; i < n; i++ {
		c.Samples[total-1-i] *= float64(i) / float64(n)
	}
	return c
}

// Resample converts to rate with linear interpolation.
func (c *Clip) Resample(rate int) *Clip {
	if rate <= 0 || rate == c.SampleRate || len(c.Samples) == 0 {
		out := c.Clone()
		if rate > 0 {
			out.SampleRate = rate
		}
		return out
	}
	n := int(int64(len(c.Samples)) * int64(rate) / int64(c.SampleRate))
	out := make([]float64, n)
	step := float64(c.SampleRate) / float64(rate)
	last := len(c.Samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = c.Samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = c.Samples[j]*(1-frac) + c.Samples[j+1]*frac
	}
	return &Clip{SampleRate: rate, Samples: out}
}

// Peak is the largest absolute sample.
func (c *Clip) Peak() float64 {
	var p float64
	for _, s := range c.Samples {
		if a := math.Abs(s); a > p {
			p = a
		}
	}
	return p
}
