package workerpool_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dukex/flowstudio/pkg/workerpool"
	"github.com/stretchr/testify/require"
)

func serverPort(t *testing.T, server *httptest.Server) int {
	t.Helper()

	_, rawPort, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)

	port, err := strconv.Atoi(rawPort)
	require.NoError(t, err)

	return port
}

func TestHTTPProber(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(healthy.Close)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(failing.Close)

	prober := workerpool.NewHTTPProber(nil, "")

	require.NoError(t, prober.Probe(t.Context(), serverPort(t, healthy)))
	require.ErrorIs(t, prober.Probe(t.Context(), serverPort(t, failing)), workerpool.ErrProcessUnhealthy)

	closed := httptest.NewServer(http.NotFoundHandler())
	closedPort := serverPort(t, closed)
	closed.Close()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	require.ErrorIs(t, prober.Probe(ctx, closedPort), workerpool.ErrProcessUnhealthy)
}
