package optimize

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/lovell/petra/store"
)

// CompressionType names a content-encoding CompressTransform can produce.
type CompressionType string

const (
	CompressionGzip   CompressionType = "gzip"
	CompressionBrotli CompressionType = "br"
	// CompressionBest runs both gzip and brotli and keeps whichever
	// output is smaller, at the cost of compressing the body twice.
	CompressionBest CompressionType = "best"
	CompressionNone CompressionType = ""
)

// CompressConfig configures CompressTransform.
type CompressConfig struct {
	Type    CompressionType
	Level   int
	MinSize int64
}

// DefaultGzipConfig returns a gzip configuration with a 1KB floor.
func DefaultGzipConfig() CompressConfig {
	return CompressConfig{Type: CompressionGzip, Level: gzip.DefaultCompression, MinSize: 1024}
}

// DefaultBrotliConfig returns a brotli configuration with a 1KB floor.
func DefaultBrotliConfig() CompressConfig {
	return CompressConfig{Type: CompressionBrotli, Level: 6, MinSize: 1024}
}

// CompressTransform compresses a response body, skipping bodies that are
// already encoded, below MinSize, whose Content-Type isn't one
// IsCompressible recognizes, or that don't actually shrink. The
// Content-Type check matters beyond just skipping wasted CPU: gzip and
// brotli can both expand an already-compressed payload (a JPEG, say)
// that happens to arrive with no Content-Encoding set, and the shrink
// check alone wouldn't catch that until after the (expensive) compression
// pass had already run.
func CompressTransform(config CompressConfig) Transform {
	run := func(ctx context.Context, in io.Reader, meta *store.Meta) (io.ReadCloser, *store.Meta, error) {
		if meta.Encoding != "" && meta.Encoding != "identity" {
			if rc, ok := in.(io.ReadCloser); ok {
				return rc, meta, nil
			}
			return io.NopCloser(in), meta, nil
		}
		if meta.ContentType != "" && !IsCompressible(strings.ToLower(meta.ContentType)) {
			if rc, ok := in.(io.ReadCloser); ok {
				return rc, meta, nil
			}
			return io.NopCloser(in), meta, nil
		}

		var buf bytes.Buffer
		written, err := io.Copy(&buf, in)
		if err != nil {
			return nil, nil, fmt.Errorf("optimize: failed to read input: %w", err)
		}

		// Bodies left as they are keep the input meta, so Pipeline does
		// not list this transform as applied.
		if written < config.MinSize || config.Type == CompressionNone {
			return io.NopCloser(&buf), meta, nil
		}

		compressed, encoding, err := compressBest(buf.Bytes(), config)
		if err != nil {
			return nil, nil, err
		}

		if int64(len(compressed)) >= written {
			return io.NopCloser(&buf), meta, nil
		}

		newMeta := *meta
		newMeta.Encoding = encoding
		newMeta.Size = int64(len(compressed))
		return io.NopCloser(bytes.NewReader(compressed)), &newMeta, nil
	}

	return Transform{Name: "compress:" + string(config.Type), Run: run}
}

func compressBest(data []byte, config CompressConfig) ([]byte, string, error) {
	switch config.Type {
	case CompressionGzip:
		return gzipCompress(data, config.Level)
	case CompressionBrotli:
		return brotliCompress(data, config.Level)
	case CompressionBest:
		gzipped, _, err := gzipCompress(data, gzip.DefaultCompression)
		if err != nil {
			return nil, "", err
		}
		brotlied, _, err := brotliCompress(data, config.Level)
		if err != nil {
			return nil, "", err
		}
		if len(brotlied) < len(gzipped) {
			return brotlied, "br", nil
		}
		return gzipped, "gzip", nil
	default:
		return data, "", nil
	}
}

func gzipCompress(data []byte, level int) ([]byte, string, error) {
	var out bytes.Buffer
	w, err := gzip.NewWriterLevel(&out, level)
	if err != nil {
		return nil, "", fmt.Errorf("optimize: failed to create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, "", fmt.Errorf("optimize: failed to compress with gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("optimize: failed to finalize gzip stream: %w", err)
	}
	return out.Bytes(), "gzip", nil
}

func brotliCompress(data []byte, level int) ([]byte, string, error) {
	var out bytes.Buffer
	w := brotli.NewWriterLevel(&out, level)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, "", fmt.Errorf("optimize: failed to compress with brotli: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("optimize: failed to finalize brotli stream: %w", err)
	}
	return out.Bytes(), "br", nil
}

// GzipTransform is CompressTransform fixed to gzip at level.
func GzipTransform(level int) Transform {
	return CompressTransform(CompressConfig{Type: CompressionGzip, Level: level, MinSize: 1024})
}

// BrotliTransform is CompressTransform fixed to brotli at level.
func BrotliTransform(level int) Transform {
	return CompressTransform(CompressConfig{Type: CompressionBrotli, Level: level, MinSize: 1024})
}

// DecompressTransform reverses CompressTransform for the encodings it
// understands, passing through anything else unchanged.
func DecompressTransform() Transform {
	run := func(ctx context.Context, in io.Reader, meta *store.Meta) (io.ReadCloser, *store.Meta, error) {
		if meta.Encoding == "" || meta.Encoding == "identity" {
			if rc, ok := in.(io.ReadCloser); ok {
				return rc, meta, nil
			}
			return io.NopCloser(in), meta, nil
		}

		var decompressed io.Reader
		switch meta.Encoding {
		case "gzip":
			gr, err := gzip.NewReader(in)
			if err != nil {
				return nil, nil, fmt.Errorf("optimize: failed to create gzip reader: %w", err)
			}
			defer gr.Close()
			decompressed = gr
		case "br":
			decompressed = brotli.NewReader(in)
		default:
			if rc, ok := in.(io.ReadCloser); ok {
				return rc, meta, nil
			}
			return io.NopCloser(in), meta, nil
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, decompressed); err != nil {
			return nil, nil, fmt.Errorf("optimize: failed to decompress: %w", err)
		}

		newMeta := *meta
		newMeta.Encoding = ""
		newMeta.Size = int64(buf.Len())
		return io.NopCloser(&buf), &newMeta, nil
	}

	return Transform{Name: "decompress", Run: run}
}

// IsCompressible reports whether contentType is a type that typically
// benefits from compression.
func IsCompressible(contentType string) bool {
	prefixes := []string{
		"text/", "application/json", "application/javascript",
		"application/xml", "application/x-javascript",
		"application/xhtml+xml", "image/svg+xml",
	}
	for _, p := range prefixes {
		if len(contentType) >= len(p) && contentType[:len(p)] == p {
			return true
		}
	}
	return false
}
