// Package audio handles the PCM WAV buffers produced by the speech engine.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	riffHeaderSize = 12
	chunkHeaderLen = 8
	formatPCM      = 1
)

// ErrNotWAV is returned for buffers without a RIFF/WAVE header
var ErrNotWAV = errors.New("not a RIFF/WAVE buffer")

// Format describes the sample layout of a WAV buffer
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// DefaultFormat matches the engine's default output: 24kHz mono 16-bit PCM
var DefaultFormat = Format{AudioFormat: formatPCM, Channels: 1, SampleRate: 24000, BitsPerSample: 16}

// ByteRate returns the number of data bytes per second of audio
func (f Format) ByteRate() uint32 {
	return f.SampleRate * uint32(f.Channels) * uint32(f.BitsPerSample) / 8
}

// BlockAlign returns the number of bytes per sample frame
func (f Format) BlockAlign() uint16 {
	return f.Channels * f.BitsPerSample / 8
}

// WAV is a decoded buffer: its format and raw sample data
type WAV struct {
	Format Format
	Data   []byte
}

// Duration returns the playback length of the sample data
func (w *WAV) Duration() time.Duration {
	rate := w.Format.ByteRate()
	if rate == 0 {
		return 0
	}
	return time.Duration(len(w.Data)) * time.Second / time.Duration(rate)
}

// Decode parses a RIFF/WAVE buffer. Chunks other than fmt and data are skipped.
func Decode(buf []byte) (*WAV, error) {
	if len(buf) < riffHeaderSize || string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		w        WAV
		haveFmt  bool
		haveData bool
		offset   = riffHeaderSize
	)

	for offset+chunkHeaderLen <= len(buf) {
		id := string(buf[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(buf[offset+4 : offset+8]))
		body := offset + chunkHeaderLen
		end := body + size
		if end > len(buf) || end < body {
			// Some encoders write a streaming size; take what is there
			if id != "data" {
				return nil, fmt.Errorf("chunk %q overruns buffer", id)
			}
			end = len(buf)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			w.Format = Format{
				AudioFormat:   binary.LittleEndian.Uint16(buf[body:]),
				Channels:      binary.LittleEndian.Uint16(buf[body+2:]),
				SampleRate:    binary.LittleEndian.Uint32(buf[body+4:]),
				BitsPerSample: binary.LittleEndian.Uint16(buf[body+14:]),
			}
			haveFmt = true
		case "data":
			w.Data = buf[body:end]
			haveData = true
		}

		// Chunks are word aligned
		offset = end + size%2
	}

	if !haveFmt {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if !haveData {
		return nil, fmt.Errorf("missing data chunk")
	}
	return &w, nil
}

// Encode writes a canonical 44-byte header WAV buffer
func Encode(format Format, data []byte) []byte {
	var b bytes.Buffer
	b.Grow(44 + len(data))

	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, format.AudioFormat)
	binary.Write(&b, binary.LittleEndian, format.Channels)
	binary.Write(&b, binary.LittleEndian, format.SampleRate)
	binary.Write(&b, binary.LittleEndian, format.ByteRate())
	binary.Write(&b, binary.LittleEndian, format.BlockAlign())
	binary.Write(&b, binary.LittleEndian, format.BitsPerSample)

	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)

	return b.Bytes()
}

// Concat joins WAV buffers in order into one buffer. All inputs must share
// a format. An empty list yields a zero-length buffer in DefaultFormat.
func Concat(buffers [][]byte) ([]byte, error) {
	if len(buffers) == 0 {
		return Encode(DefaultFormat, nil), nil
	}

	var (
		format Format
		data   bytes.Buffer
	)

	for i, buf := range buffers {
		w, err := Decode(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to decode segment %d: %w", i, err)
		}
		if i == 0 {
			format = w.Format
		} else if w.Format != format {
			return nil, fmt.Errorf("segment %d format %+v does not match %+v", i, w.Format, format)
		}
		data.Write(w.Data)
	}

	return Encode(format, data.Bytes()), nil
}

// Duration returns the playback length of a WAV buffer
func Duration(buf []byte) (time.Duration, error) {
	w, err := Decode(buf)
	if err != nil {
		return 0, err
	}
	return w.Duration(), nil
}
