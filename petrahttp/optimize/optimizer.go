// Package optimize runs a pipeline of content transforms (minify,
// compress, ...) over a cached response body before it is written back
// through a store.Store.
package optimize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lovell/petra/store"
)

// optimizedHeader is the response header set to the comma-joined list of
// transform names a Pipeline actually ran, so an admin endpoint or a
// debugging proxy can see what happened to a cached entry without
// re-deriving it from the pipeline's own configuration.
const optimizedHeader = "X-Petra-Optimizations"

// TransformFunc rewrites a response body and its metadata.
type TransformFunc func(ctx context.Context, in io.Reader, meta *store.Meta) (io.ReadCloser, *store.Meta, error)

// Transform pairs a TransformFunc with the name recorded against an entry
// once the transform has run, so a Pipeline's effect on a given body is
// visible after the fact rather than only inferable from its construction.
type Transform struct {
	Name string
	Run  TransformFunc
}

// Pipeline runs a sequence of Transforms in order.
type Pipeline struct {
	transforms []Transform
}

// NewPipeline builds a Pipeline from transforms, applied in order.
func NewPipeline(transforms ...Transform) *Pipeline {
	return &Pipeline{transforms: transforms}
}

// AddTransform appends a transform to the end of the pipeline.
func (p *Pipeline) AddTransform(t Transform) {
	p.transforms = append(p.transforms, t)
}

// Apply runs every transform in sequence over in, closing each
// intermediate reader as it's superseded. On success, the returned meta's
// Headers[X-Petra-Optimizations] lists the transforms that ran, in order;
// a transform that declines to act (e.g. shouldMinify returning false)
// should return its input meta unchanged to stay out of that list — see
// minify.go/compress.go for the convention each transform uses to signal
// "no-op" versus "ran".
func (p *Pipeline) Apply(ctx context.Context, in io.Reader, meta *store.Meta) (io.ReadCloser, *store.Meta, error) {
	if len(p.transforms) == 0 {
		if rc, ok := in.(io.ReadCloser); ok {
			return rc, meta, nil
		}
		return io.NopCloser(in), meta, nil
	}

	current := in
	currentMeta := meta
	var applied []string

	for i, t := range p.transforms {
		select {
		case <-ctx.Done():
			if rc, ok := current.(io.ReadCloser); ok {
				rc.Close()
			}
			return nil, nil, ctx.Err()
		default:
		}

		next, nextMeta, err := t.Run(ctx, current, currentMeta)
		if err != nil {
			if rc, ok := current.(io.ReadCloser); ok && i > 0 {
				rc.Close()
			}
			if len(applied) > 0 {
				return nil, nil, fmt.Errorf("optimize: stage %q failed after %s: %w", t.Name, strings.Join(applied, ","), err)
			}
			return nil, nil, fmt.Errorf("optimize: stage %q failed: %w", t.Name, err)
		}

		if ran(currentMeta, nextMeta) {
			applied = append(applied, t.Name)
		}

		if i > 0 {
			if rc, ok := current.(io.ReadCloser); ok {
				rc.Close()
			}
		}

		current = next
		currentMeta = nextMeta
	}

	if len(applied) > 0 {
		currentMeta = stampOptimizations(currentMeta, applied)
	}

	if rc, ok := current.(io.ReadCloser); ok {
		return rc, currentMeta, nil
	}
	return io.NopCloser(current), currentMeta, nil
}

// ran reports whether a transform materially changed meta, used to decide
// whether its name belongs in the applied list. A transform that declined
// to act returns the identical *Meta pointer it was given.
func ran(before, after *store.Meta) bool {
	return before != after
}

func stampOptimizations(meta *store.Meta, applied []string) *store.Meta {
	if meta.Headers == nil {
		meta.Headers = make(map[string]string, 1)
	}
	meta.Headers[optimizedHeader] = strings.Join(applied, ",")
	return meta
}

// ApplyToBytes runs the pipeline over an in-memory body, a convenience
// wrapper for callers (the middleware, the worker pool) that already hold
// the whole response in memory.
func (p *Pipeline) ApplyToBytes(ctx context.Context, data []byte, meta *store.Meta) ([]byte, *store.Meta, error) {
	result, resultMeta, err := p.Apply(ctx, io.NopCloser(bytes.NewReader(data)), meta)
	if err != nil {
		return nil, nil, err
	}
	defer result.Close()

	resultBytes, err := io.ReadAll(result)
	if err != nil {
		return nil, nil, err
	}
	return resultBytes, resultMeta, nil
}
