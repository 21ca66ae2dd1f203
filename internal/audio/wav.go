package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

var ErrNotWAV = errors.New("not a valid wav stream")

// DecodeWAV reads a PCM WAV stream of any channel count and bit depth into a
// mono clip at its native rate.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrNotWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	channels := 1
	rate := int(d.SampleRate)
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}
	depth := int(d.BitDepth)
	if depth == 0 {
		depth = bitDepth
	}
	scale := float64(int64(1) << uint(depth-1))
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		samples[i] = sum / float64(channels) / scale
	}
	return &Clip{SampleRate: rate, Samples: samples}, nil
}

// DecodeWAVBytes decodes an in-memory WAV file.
func DecodeWAVBytes(b []byte) (*Clip, error) {
	return DecodeWAV(bytes.NewReader(b))
}

// DecodeWAVFile decodes the WAV file at path.
func DecodeWAVFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodePCM16 reads raw signed 16-bit little-endian mono PCM.
func DecodePCM16(b []byte, rate int) *Clip {
	n := len(b) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
		samples[i] = float64(v) / 32768
	}
	return &Clip{SampleRate: rate, Samples: samples}
}

// EncodeWAV writes c as 16-bit mono PCM WAV. Samples outside [-1, 1] are clipped.
func EncodeWAV(w io.WriteSeeker, c *Clip) error {
	enc := wav.NewEncoder(w, c.SampleRate, bitDepth, 1, 1)
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// EncodeWAVFile writes c to path.
func EncodeWAVFile(path string, c *Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeWAV(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeWAVBytes renders c as an in-memory WAV file.
func EncodeWAVBytes(c *Clip) ([]byte, error) {
	var ws writeSeeker
	if err := EncodeWAV(&ws, c); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// writeSeeker is the in-memory io.WriteSeeker the wav encoder needs to patch
// its header sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("writeSeeker: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("writeSeeker: negative position")
	}
	w.pos = int(abs)
	return abs, nil
}
