package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/app"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/config"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/runner"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/script"
)

type fakeRunner struct{}

func (fakeRunner) Run(ctx context.Context, timeout time.Duration, label, name string, args ...string) (runner.Result, error) {
	stdout := `{"lan_ip":"` + label + `","gw_number":"007","gw_name":"gw1","last_seen":"2026-01-15,09:00:00"}`
	return runner.Result{Stdout: stdout, ExitCode: 0}, nil
}

func testConfig() config.Config {
	c := config.Config{
		MaxPolling:    5,
		TimeoutSecs:   5,
		PollingSecs:   0,
		StorageMaxLen: 10,
		HTTPServer:    "", // disable upload server for most tests
		NokRTPOnly:    false,
	}
	return c
}

func TestApp_DiscoveryStartPopulatesStores(t *testing.T) {
	a := app.New(app.Config{
		Settings: testConfig(),
		Template: script.TextTemplate{Source: "ip={{bgw_ip}}"},
		Runner:   fakeRunner{},
	})

	err := a.DiscoveryStart(context.Background(), []string{"10.0.0.5"}, "tls", nil, nil)
	require.NoError(t, err)

	gw, ok := a.BGWs.Get("007")
	require.True(t, ok)
	assert.Equal(t, "gw1", gw.GWName)

	ip, ok := a.GWs.Get("10.0.0.5")
	require.True(t, ok)
	assert.Equal(t, "007", ip)
}

func TestApp_PollingStartRefusesWithoutGateways(t *testing.T) {
	a := app.New(app.Config{
		Settings: testConfig(),
		Template: script.TextTemplate{Source: "ip={{bgw_ip}}"},
		Runner:   fakeRunner{},
	})

	err := a.PollingStart(context.Background())
	assert.Error(t, err)
}

func TestApp_PollingStartThenStopIsClean(t *testing.T) {
	a := app.New(app.Config{
		Settings: testConfig(),
		Template: script.TextTemplate{Source: "ip={{bgw_ip}}"},
		Runner:   fakeRunner{},
	})

	require.NoError(t, a.DiscoveryStart(context.Background(), []string{"10.0.0.5"}, "tls", nil, nil))
	require.NoError(t, a.PollingStart(context.Background()))

	// refuses a second concurrent start
	assert.Error(t, a.PollingStart(context.Background()))

	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		a.PollingStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PollingStop did not return")
	}

	// idempotent
	a.PollingStop()

	gw, ok := a.BGWs.Get("007")
	require.True(t, ok)
	assert.True(t, gw.Polls > 0)
}

func TestApp_DiscoveryStopCancelsInflightDiscovery(t *testing.T) {
	a := app.New(app.Config{
		Settings: testConfig(),
		Template: script.TextTemplate{Source: "ip={{bgw_ip}}"},
		Runner:   fakeRunner{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- a.DiscoveryStart(ctx, []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"}, "tls", nil, nil)
	}()

	a.DiscoveryStop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("DiscoveryStart did not return after DiscoveryStop")
	}
}
