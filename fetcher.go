package petra

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/lovell/petra/internal/ttl"
)

// fetchResult is returned by the upstream fetcher on success.
type fetchResult struct {
	atime time.Time
	mtime time.Time
}

// fetch runs the upstream fetch as a small state machine: connect and
// validate headers, stream the body to a temp file, then rename into
// place and stamp timestamps. Any error path removes the temp file. The
// caller must hold the file lock for filename for the duration of this
// call.
func (i *Instance) fetch(ctx context.Context, url, filename string) (fetchResult, error) {
	part := partPath(filename)

	// CONNECTING: a connect/header deadline of RequestTimeout. The timer
	// is stopped once headers arrive, so it never cuts off the body.
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	headerTimer := time.AfterFunc(i.opts.RequestTimeout, cancel)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fetchResult{}, finalizeError(url, err)
	}
	req.Header.Set("User-Agent", i.opts.UserAgent)

	resp, err := i.opts.Client.Do(req)
	headerTimedOut := !headerTimer.Stop()
	if err != nil {
		if headerTimedOut {
			return fetchResult{}, transportError(url, CodeGatewayTimeout, err)
		}
		return fetchResult{}, i.classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	// HEADERS -> VALIDATING
	if resp.StatusCode != http.StatusOK {
		return fetchResult{}, statusError(url, resp.StatusCode)
	}

	if len(i.opts.MediaTypes) > 0 {
		ct := resp.Header.Get("Content-Type")
		if !containsMediaType(i.opts.MediaTypes, ct) {
			return fetchResult{}, mediaTypeError(url, ct)
		}
	}

	// Arm the response-body timer, distinct from the connect timeout and
	// cancellable from the body-completion path. It starts now, after
	// headers have been validated.
	bodyCtx := ctx
	var bodyCancel context.CancelFunc
	if i.opts.ResponseTimeout > 0 {
		bodyCtx, bodyCancel = context.WithTimeout(ctx, i.opts.ResponseTimeout)
		defer bodyCancel()
	}

	// STREAMING: open a write stream to the .part sibling and pipe the
	// body into it.
	out, err := os.Create(part)
	if err != nil {
		return fetchResult{}, finalizeError(url, err)
	}

	copyErr := copyWithContext(bodyCtx, out, resp.Body)
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(part) // CLEANUP: best-effort, ignore errors
		if errors.Is(bodyCtx.Err(), context.DeadlineExceeded) {
			return fetchResult{}, responseTimeoutError(url, i.opts.ResponseTimeout.String())
		}
		return fetchResult{}, i.classifyTransportError(url, copyErr)
	}
	if closeErr != nil {
		os.Remove(part)
		return fetchResult{}, finalizeError(url, closeErr)
	}

	// FINALIZING: rename into place, compute TTL, stamp atime/mtime.
	if err := os.Rename(part, filename); err != nil {
		os.Remove(part)
		return fetchResult{}, finalizeError(url, err)
	}

	seconds := ttl.ParseCacheControl(resp.Header.Get("Cache-Control"))
	effective := i.opts.MinimumTTL
	if fromHeader := time.Duration(seconds) * time.Second; fromHeader > effective {
		effective = fromHeader
	}

	// Round(0) drops the monotonic clock reading so the returned times
	// compare equal to the ones a later cache hit reads back from disk.
	now := time.Now().Round(0)
	mtime := now.Add(effective)
	if err := os.Chtimes(filename, now, mtime); err != nil {
		// The body is already in place under the canonical name, but a
		// failed timestamp stamp still fails the fetch outright rather
		// than leaving an entry with an indeterminate TTL.
		os.Remove(filename)
		return fetchResult{}, finalizeError(url, err)
	}

	return fetchResult{atime: now, mtime: mtime}, nil
}

// classifyTransportError maps a transport-level failure (no HTTP response
// obtained) to a gateway-timeout or bad-gateway error code.
func (i *Instance) classifyTransportError(url string, err error) *FetchError {
	if isRecognizedTimeoutOrRefused(err) {
		return transportError(url, CodeGatewayTimeout, err)
	}
	return transportError(url, CodeBadGateway, err)
}

func isRecognizedTimeoutOrRefused(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// copyWithContext copies src into dst, aborting promptly when ctx is
// cancelled instead of waiting for the next Read to return. This is what
// lets the response-timeout timer cut off a slow-drip body mid-stream.
//
// If ctx is cancelled mid-copy, the background io.Copy is still blocked
// on a Read of src; closing src (when it implements io.Closer, as
// resp.Body always does) is what actually unblocks it. copyWithContext
// then waits for that goroutine to observe the Close and return before
// reporting ctx.Err() itself, so the caller never closes its destination
// file while the copy is still mid-Write against it.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(dst, src)
		done <- err
	}()

	select {
	case <-ctx.Done():
		if closer, ok := src.(io.Closer); ok {
			closer.Close()
		}
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func containsMediaType(allowed []string, contentType string) bool {
	mt := contentType
	for idx := 0; idx < len(mt); idx++ {
		if mt[idx] == ';' {
			mt = mt[:idx]
			break
		}
	}
	for _, a := range allowed {
		if a == mt || a == contentType {
			return true
		}
	}
	return false
}
