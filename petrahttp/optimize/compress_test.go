package optimize

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lovell/petra/store"
)

func TestCompressTransform_Gzip(t *testing.T) {
	transform := CompressTransform(DefaultGzipConfig())

	input := strings.Repeat("hello world ", 200)
	meta := &store.Meta{ContentType: "text/plain", Size: int64(len(input))}

	result, resultMeta, err := transform.Run(context.Background(), bytes.NewReader([]byte(input)), meta)
	require.NoError(t, err)
	defer result.Close()

	output, err := io.ReadAll(result)
	require.NoError(t, err)
	require.Equal(t, "gzip", resultMeta.Encoding)
	require.Less(t, len(output), len(input))

	gr, err := gzip.NewReader(bytes.NewReader(output))
	require.NoError(t, err)
	decoded, err := io.ReadAll(gr)
	require.NoError(t, err)
	require.Equal(t, input, string(decoded))
}

func TestCompressTransform_SkipsSmallBodies(t *testing.T) {
	transform := CompressTransform(DefaultGzipConfig())

	input := "short"
	meta := &store.Meta{ContentType: "text/plain", Size: int64(len(input))}

	result, resultMeta, err := transform.Run(context.Background(), bytes.NewReader([]byte(input)), meta)
	require.NoError(t, err)
	defer result.Close()

	output, err := io.ReadAll(result)
	require.NoError(t, err)
	require.Equal(t, input, string(output))
	require.Empty(t, resultMeta.Encoding)
}

func TestCompressTransform_SkipsAlreadyEncoded(t *testing.T) {
	transform := CompressTransform(DefaultGzipConfig())

	input := strings.Repeat("x", 2000)
	meta := &store.Meta{ContentType: "application/octet-stream", Encoding: "br", Size: int64(len(input))}

	result, resultMeta, err := transform.Run(context.Background(), bytes.NewReader([]byte(input)), meta)
	require.NoError(t, err)
	defer result.Close()

	output, err := io.ReadAll(result)
	require.NoError(t, err)
	require.Equal(t, input, string(output))
	require.Equal(t, "br", resultMeta.Encoding)
}

func TestCompressTransform_Brotli(t *testing.T) {
	transform := CompressTransform(DefaultBrotliConfig())

	input := strings.Repeat("the quick brown fox jumps over the lazy dog ", 100)
	meta := &store.Meta{ContentType: "text/plain", Size: int64(len(input))}

	result, resultMeta, err := transform.Run(context.Background(), bytes.NewReader([]byte(input)), meta)
	require.NoError(t, err)
	defer result.Close()

	output, err := io.ReadAll(result)
	require.NoError(t, err)
	require.Equal(t, "br", resultMeta.Encoding)
	require.Less(t, len(output), len(input))
}

func TestCompressTransform_SkipsIncompressibleContentType(t *testing.T) {
	transform := CompressTransform(DefaultGzipConfig())

	input := strings.Repeat("x", 2000)
	meta := &store.Meta{ContentType: "image/png", Size: int64(len(input))}

	result, resultMeta, err := transform.Run(context.Background(), bytes.NewReader([]byte(input)), meta)
	require.NoError(t, err)
	defer result.Close()

	output, err := io.ReadAll(result)
	require.NoError(t, err)
	require.Equal(t, input, string(output))
	require.Empty(t, resultMeta.Encoding)
}

func TestCompressTransform_Best(t *testing.T) {
	transform := CompressTransform(CompressConfig{Type: CompressionBest, Level: 6, MinSize: 1024})

	input := strings.Repeat("the quick brown fox jumps over the lazy dog ", 100)
	meta := &store.Meta{ContentType: "text/plain", Size: int64(len(input))}

	result, resultMeta, err := transform.Run(context.Background(), bytes.NewReader([]byte(input)), meta)
	require.NoError(t, err)
	defer result.Close()

	output, err := io.ReadAll(result)
	require.NoError(t, err)
	require.Contains(t, []string{"gzip", "br"}, resultMeta.Encoding)
	require.Less(t, len(output), len(input))
}

func TestDecompressTransform_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("round trip me"))
	gw.Close()

	transform := DecompressTransform()
	meta := &store.Meta{Encoding: "gzip"}

	result, resultMeta, err := transform.Run(context.Background(), bytes.NewReader(buf.Bytes()), meta)
	require.NoError(t, err)
	defer result.Close()

	output, err := io.ReadAll(result)
	require.NoError(t, err)
	require.Equal(t, "round trip me", string(output))
	require.Empty(t, resultMeta.Encoding)
}

func TestIsCompressible(t *testing.T) {
	require.True(t, IsCompressible("text/html"))
	require.True(t, IsCompressible("application/json"))
	require.False(t, IsCompressible("image/png"))
}
