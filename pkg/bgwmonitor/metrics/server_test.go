package metrics_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/metrics"
)

func TestServer_ServesPrometheusMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	metrics.PollTotal.WithLabelValues(metrics.PollResultOK).Inc()

	srv := &metrics.Server{Addr: addr}
	srv.Start()
	defer srv.Stop(context.Background())
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bgwmonitor_poll_total")
}

func TestServer_StopWithoutStartIsNoop(t *testing.T) {
	srv := &metrics.Server{}
	assert.NoError(t, srv.Stop(context.Background()))
}
