package upload_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatch/bgwmonitor/models"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/runner"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/upload"
)

type fakeRunner struct {
	results map[string]runner.Result
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, timeout time.Duration, label, name string, args ...string) (runner.Result, error) {
	f.calls = append(f.calls, name)
	return f.results[name], nil
}

func newStores() (*models.OrderedStore[string, string], *models.OrderedStore[string, models.Capture]) {
	return models.NewOrderedStore[string, string](0), models.NewOrderedStore[string, models.Capture](0)
}

func TestProcessor_EnrichesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture1.pcap")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	gws, pcaps := newStores()
	fr := &fakeRunner{results: map[string]runner.Result{
		"capinfos": {Stdout: "capinfos output", ExitCode: 0},
		"tshark":   {Stdout: "tshark output", ExitCode: 0},
	}}

	p := &upload.Processor{Runner: fr, UploadDir: dir, GWs: gws, PCAPs: pcaps}
	p.Process(context.Background(), upload.Item{
		RemoteIP: "10.0.0.1", Filename: "capture1.pcap", FileSize: 4, ReceivedTimestamp: time.Now(),
	})

	got, ok := pcaps.Get("capture1.pcap")
	require.True(t, ok)
	assert.Equal(t, "capinfos output", got.CapinfosRaw)
	assert.Equal(t, "tshark output", got.RTPInfoRaw)
	assert.ElementsMatch(t, []string{"capinfos", "tshark"}, fr.calls)
}

func TestProcessor_MissingFileStoresBareMetadata(t *testing.T) {
	dir := t.TempDir()
	gws, pcaps := newStores()
	fr := &fakeRunner{results: map[string]runner.Result{}}

	p := &upload.Processor{Runner: fr, UploadDir: dir, GWs: gws, PCAPs: pcaps}
	p.Process(context.Background(), upload.Item{
		RemoteIP: "10.0.0.1", Filename: "missing.pcap", FileSize: 0, ReceivedTimestamp: time.Now(),
	})

	got, ok := pcaps.Get("missing.pcap")
	require.True(t, ok)
	assert.Empty(t, got.CapinfosRaw)
	assert.Empty(t, got.RTPInfoRaw)
	assert.Empty(t, fr.calls, "runner must not be invoked for a missing file")
}

func TestProcessor_ResolvesGWNumberFromGWsStore(t *testing.T) {
	dir := t.TempDir()
	gws, pcaps := newStores()
	gws.Put("10.0.0.1", "007")

	p := &upload.Processor{Runner: &fakeRunner{}, UploadDir: dir, GWs: gws, PCAPs: pcaps}
	p.Process(context.Background(), upload.Item{RemoteIP: "10.0.0.1", Filename: "x.pcap"})

	got, ok := pcaps.Get("x.pcap")
	require.True(t, ok)
	assert.Equal(t, "007", got.GWNumber)
}

func TestProcessor_DefaultsGWNumberToNAWhenUnresolved(t *testing.T) {
	dir := t.TempDir()
	gws, pcaps := newStores()

	p := &upload.Processor{Runner: &fakeRunner{}, UploadDir: dir, GWs: gws, PCAPs: pcaps}
	p.Process(context.Background(), upload.Item{RemoteIP: "10.9.9.9", Filename: "x.pcap"})

	got, ok := pcaps.Get("x.pcap")
	require.True(t, ok)
	assert.Equal(t, "NA", got.GWNumber)
}

func TestProcessor_InvokesOnChangeCallback(t *testing.T) {
	dir := t.TempDir()
	gws, pcaps := newStores()
	called := false

	p := &upload.Processor{Runner: &fakeRunner{}, UploadDir: dir, GWs: gws, PCAPs: pcaps, OnChange: func() { called = true }}
	p.Process(context.Background(), upload.Item{RemoteIP: "10.0.0.1", Filename: "x.pcap"})

	assert.True(t, called)
}

func TestProcessor_RunDrainsChannelUntilClosed(t *testing.T) {
	dir := t.TempDir()
	gws, pcaps := newStores()
	ch := make(chan upload.Item, 2)
	ch <- upload.Item{RemoteIP: "10.0.0.1", Filename: "a.pcap"}
	ch <- upload.Item{RemoteIP: "10.0.0.1", Filename: "b.pcap"}
	close(ch)

	p := &upload.Processor{Runner: &fakeRunner{}, UploadDir: dir, GWs: gws, PCAPs: pcaps}

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel closed")
	}

	assert.Equal(t, 2, pcaps.Len())
}
