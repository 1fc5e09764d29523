package upload_test

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/upload"
)

func startServer(t *testing.T, items chan upload.Item) (addr string, stop func()) {
	t.Helper()
	dir := t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr = ln.Addr().String()
	ln.Close()

	srv := &upload.Server{Addr: addr, UploadDir: dir, Items: items}
	go srv.ListenAndServe()
	time.Sleep(20 * time.Millisecond)

	return addr, func() { srv.Close() }
}

func TestServer_PutStoresFileAndEmitsItem(t *testing.T) {
	items := make(chan upload.Item, 1)
	addr, stop := startServer(t, items)
	defer stop()

	req, err := http.NewRequest(http.MethodPut, "http://"+addr+"/capture1.pcap", bytes.NewBufferString("hello"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "capture1.pcap uploaded successfully (5 bytes)")

	select {
	case item := <-items:
		assert.Equal(t, "capture1.pcap", item.Filename)
		assert.EqualValues(t, 5, item.FileSize)
	case <-time.After(time.Second):
		t.Fatal("no item emitted")
	}
}

func TestServer_GetMethodRejected(t *testing.T) {
	items := make(chan upload.Item, 1)
	addr, stop := startServer(t, items)
	defer stop()

	resp, err := http.Get("http://" + addr + "/x.pcap")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_EmptyFilenameRejected(t *testing.T) {
	items := make(chan upload.Item, 1)
	addr, stop := startServer(t, items)
	defer stop()

	req, _ := http.NewRequest(http.MethodPut, "http://"+addr+"/", bytes.NewBufferString("x"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_WritesFileToUploadDir(t *testing.T) {
	dir := t.TempDir()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	srv := &upload.Server{Addr: addr, UploadDir: dir}
	go srv.ListenAndServe()
	defer srv.Close()
	time.Sleep(20 * time.Millisecond)

	req, _ := http.NewRequest(http.MethodPost, "http://"+addr+"/file.bin", bytes.NewBufferString("payload-bytes"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data, err := os.ReadFile(filepath.Join(dir, "file.bin"))
	require.NoError(t, err)
	assert.Equal(t, "payload-bytes", string(data))
}
