// Package compression encodes delivery payloads for the HTTP listener.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type represents a compression algorithm.
type Type string

const (
	TypeNone    Type = "none"
	TypeGzip    Type = "gzip"
	TypeZstd    Type = "zstd"
	TypeSnappy  Type = "snappy"
	TypeZlib    Type = "zlib"
	TypeDeflate Type = "deflate"
	TypeLZ4     Type = "lz4"
)

// Level is an algorithm-specific compression level. Zero selects the default.
type Level int

const (
	LevelDefault Level = 0
	LevelFastest Level = 1
	LevelBest    Level = 9
)

// Config holds compression configuration.
type Config struct {
	Type  Type
	Level Level
}

// ParseType parses a compression type string.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TypeNone:
		return TypeNone, nil
	case TypeGzip, TypeZstd, TypeSnappy, TypeZlib, TypeDeflate, TypeLZ4:
		return t, nil
	default:
		return TypeNone, fmt.Errorf("unsupported compression type: %s", s)
	}
}

// Enabled reports whether t actually transforms the payload.
func (t Type) Enabled() bool {
	return t != "" && t != TypeNone
}

// ContentEncoding returns the HTTP Content-Encoding header value, or "" when
// no header should be sent.
func (t Type) ContentEncoding() string {
	if !t.Enabled() {
		return ""
	}
	return string(t)
}

// ParseContentEncoding maps an HTTP Content-Encoding header value to a Type.
func ParseContentEncoding(encoding string) Type {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		return TypeGzip
	case "zstd":
		return TypeZstd
	case "snappy", "x-snappy-framed":
		return TypeSnappy
	case "zlib":
		return TypeZlib
	case "deflate":
		return TypeDeflate
	case "lz4":
		return TypeLZ4
	default:
		return TypeNone
	}
}

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 32*1024))
	},
}

// zstd encoders are expensive to build; one pool per level in use.
var zstdPools sync.Map // zstd.EncoderLevel -> *sync.Pool

func zstdPool(level zstd.EncoderLevel) *sync.Pool {
	if p, ok := zstdPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := zstdPools.LoadOrStore(level, &sync.Pool{
		New: func() any {
			poolNews.Add(1)
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
			if err != nil {
				return nil
			}
			return enc
		},
	})
	return p.(*sync.Pool)
}

// Compress returns data encoded with cfg.Type. TypeNone returns data as is.
func Compress(data []byte, cfg Config) ([]byte, error) {
	if !cfg.Type.Enabled() {
		return data, nil
	}

	switch cfg.Type {
	case TypeZstd:
		return compressZstd(data, cfg.Level)
	case TypeSnappy:
		// Block format, readable by any snappy decoder.
		return s2.EncodeSnappy(nil, data), nil
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	bufferPoolGets.Add(1)
	buf.Reset()
	defer func() {
		bufferPool.Put(buf)
		bufferPoolPuts.Add(1)
	}()

	var w io.WriteCloser
	var err error
	switch cfg.Type {
	case TypeGzip:
		w, err = gzip.NewWriterLevel(buf, flateLevel(cfg.Level))
	case TypeZlib:
		w, err = zlib.NewWriterLevel(buf, flateLevel(cfg.Level))
	case TypeDeflate:
		w, err = flate.NewWriter(buf, flateLevel(cfg.Level))
	case TypeLZ4:
		lw := lz4.NewWriter(buf)
		if cfg.Level != LevelDefault {
			err = lw.Apply(lz4.CompressionLevelOption(lz4Level(cfg.Level)))
		}
		w = lw
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", cfg.Type, err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write %s data: %w", cfg.Type, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", cfg.Type, err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func compressZstd(data []byte, level Level) ([]byte, error) {
	zl := zstd.SpeedDefault
	switch {
	case level == LevelDefault:
	case level <= 1:
		zl = zstd.SpeedFastest
	case level >= 9:
		zl = zstd.SpeedBestCompression
	case level >= 6:
		zl = zstd.SpeedBetterCompression
	}

	pool := zstdPool(zl)
	enc, _ := pool.Get().(*zstd.Encoder)
	poolGets.Add(1)
	if enc == nil {
		poolDiscards.Add(1)
		return nil, fmt.Errorf("failed to create zstd encoder")
	}
	out := enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	pool.Put(enc)
	poolPuts.Add(1)
	return out, nil
}

func flateLevel(level Level) int {
	if level == LevelDefault {
		return flate.DefaultCompression
	}
	return int(level)
}

func lz4Level(level Level) lz4.CompressionLevel {
	switch {
	case level <= 1:
		return lz4.Fast
	case level >= 9:
		return lz4.Level9
	default:
		return lz4.CompressionLevel(1 << (8 + int(level)))
	}
}

// Decompress reverses Compress. Used by tests and by receivers in examples.
func Decompress(data []byte, t Type) ([]byte, error) {
	if !t.Enabled() {
		return data, nil
	}

	var r io.Reader
	switch t {
	case TypeSnappy:
		return s2.Decode(nil, data)
	case TypeZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case TypeGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gr.Close()
		r = gr
	case TypeZlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case TypeDeflate:
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		r = fr
	case TypeLZ4:
		r = lz4.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
	return io.ReadAll(r)
}
