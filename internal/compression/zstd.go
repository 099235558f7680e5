// Package compression provides the at-rest blob codec for filesystem-backed
// storage roots.
package compression

import (
	"github.com/klauspost/compress/zstd"
)

// Level selects the zstd encoder speed/ratio trade-off.
type Level int

const (
	// Default balances speed and ratio.
	Default Level = iota
	// Fastest favors throughput.
	Fastest
	// Better favors ratio.
	Better
)

// Codec compresses blobs on write and restores them on read. Blobs below a
// size floor, or blobs that do not shrink, are stored raw; Decode detects
// raw blobs by the absence of a zstd frame.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// minEncodeSize is the floor below which compression is skipped.
const minEncodeSize = 128

// New returns a Codec. A disabled codec passes bytes through unchanged.
func New(level Level, enabled bool) (*Codec, error) {
	if !enabled {
		return &Codec{enabled: false}, nil
	}

	encoderLevel := zstd.SpeedDefault
	switch level {
	case Fastest:
		encoderLevel = zstd.SpeedFastest
	case Better:
		encoderLevel = zstd.SpeedBetterCompression
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &Codec{encoder: encoder, decoder: decoder, enabled: true}, nil
}

// Encode returns the stored form of content.
func (c *Codec) Encode(content []byte) []byte {
	if !c.enabled || len(content) < minEncodeSize {
		return content
	}

	compressed := c.encoder.EncodeAll(content, make([]byte, 0, len(content)))
	if len(compressed) >= len(content) {
		return content
	}
	return compressed
}

// Decode returns the original bytes for a stored blob. Stored bytes that are
// not a zstd frame are returned as-is.
func (c *Codec) Decode(stored []byte) ([]byte, error) {
	if !c.enabled {
		return stored, nil
	}

	content, err := c.decoder.DecodeAll(stored, nil)
	if err != nil {
		return stored, nil
	}
	return content, nil
}

func (c *Codec) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
