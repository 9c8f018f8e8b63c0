package petra

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_ConnectionRefusedMapsTo504(t *testing.T) {
	// Bind and immediately close a listener to get a port nothing is
	// listening on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	inst := newTestInstance(t, WithRequestTimeout(time.Second))

	_, err = inst.Fetch(context.Background(), "http://"+addr)
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, CodeGatewayTimeout, fe.Code)
}

func TestFetch_StatusErrorLeavesNoFileOrPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	inst := newTestInstance(t)
	_, err := inst.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 500, fe.Code)

	fp := inst.fingerprint(srv.URL)
	filename := entryPath(inst.opts.CacheDirectory, fp)
	assertNoFile(t, filename)
	assertNoFile(t, partPath(filename))
}

func TestIsRecognizedTimeoutOrRefused(t *testing.T) {
	assert.True(t, isRecognizedTimeoutOrRefused(context.DeadlineExceeded))
	assert.False(t, isRecognizedTimeoutOrRefused(errors.New("boom")))
}

func TestContainsMediaType(t *testing.T) {
	allowed := []string{"image/png", "image/jpeg"}
	assert.True(t, containsMediaType(allowed, "image/png"))
	assert.True(t, containsMediaType(allowed, "image/png; charset=binary"))
	assert.False(t, containsMediaType(allowed, "text/html"))
}
