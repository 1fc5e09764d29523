// Package upload implements the Upload Server (spec.md §4.8) and Upload
// Processor (spec.md §4.9). Grounded on ahttp.py's FileUploadProtocol,
// restructured onto idiomatic net/http instead of a hand-rolled
// asyncio.Protocol state machine — the wire contract (PUT/POST only,
// basename-sanitized filename, exact Content-Length write, 201/400/405/500
// responses, one request per connection) is preserved exactly.
package upload

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/netutil"
)

// Item is the metadata the server hands to the Upload Processor for each
// accepted file, matching ahttp.py's upload_queue item shape.
type Item struct {
	RemoteIP          string
	Filename          string
	FileSize          int64
	ReceivedTimestamp time.Time
}

// Server accepts PUT/POST uploads and writes them under UploadDir.
type Server struct {
	Addr       string
	UploadDir  string
	MaxConns   int // 0 = unbounded; limits concurrent connections via netutil
	Items      chan<- Item
	Logger     *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// ListenAndServe starts accepting connections and blocks until the
// listener is closed (by Close or a fatal accept error).
func (s *Server) ListenAndServe() error {
	logger := s.logger()

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("upload: listen %s: %w", s.Addr, err)
	}
	if s.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.MaxConns)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpload)

	// One request per connection (spec.md §4.8): disabling keep-alives
	// means every accepted connection serves exactly one upload.
	s.httpServer = &http.Server{Handler: mux}
	s.httpServer.SetKeepAlivesEnabled(false)

	logger.Info("upload server: listening", "addr", s.Addr, "upload_dir", s.UploadDir)
	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	logger := s.logger()

	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "Only PUT and POST methods are supported", http.StatusMethodNotAllowed)
		return
	}

	filename := sanitizeFilename(r.URL.Path)
	if filename == "" {
		http.Error(w, "Filename must be specified in URL path", http.StatusBadRequest)
		return
	}

	remoteIP := remoteIPOf(r)

	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		logger.Error("upload server: mkdir upload dir failed", "err", err)
		http.Error(w, "Error saving file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	dst := filepath.Join(s.UploadDir, filename)
	f, err := os.Create(dst)
	if err != nil {
		logger.Error("upload server: create file failed", "filename", filename, "err", err)
		http.Error(w, "Error saving file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	n, err := io.Copy(f, r.Body)
	if err != nil {
		logger.Error("upload server: write failed", "filename", filename, "err", err)
		http.Error(w, "Error saving file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Info("upload server: received file", "filename", filename, "bytes", n, "remote_ip", remoteIP)

	if s.Items != nil {
		item := Item{
			RemoteIP:          remoteIP,
			Filename:          filename,
			FileSize:          n,
			ReceivedTimestamp: receivedNow(),
		}
		select {
		case s.Items <- item:
		default:
			logger.Warn("upload server: upload queue full, dropping item", "filename", filename)
		}
	}

	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, "File %s uploaded successfully (%d bytes)\n", filename, n)
}

// sanitizeFilename mirrors ahttp.py's handle_upload: basename the
// unescaped path, then strip "..", "/", "\\" substrings outright (not
// just path-traverse components), returning "" if nothing legitimate
// remains.
func sanitizeFilename(urlPath string) string {
	base := filepath.Base(strings.TrimPrefix(urlPath, "/"))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.ReplaceAll(base, "..", "")
	base = strings.ReplaceAll(base, "/", "")
	base = strings.ReplaceAll(base, "\\", "")
	return base
}

func remoteIPOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return s.Logger
}

// receivedNow is isolated so it is the single call site touching wall-clock
// time in this file, kept as an ordinary function (not a package var) since
// nothing here needs to fake it out in tests beyond passing a fixed
// timestamp through Item construction directly.
func receivedNow() time.Time { return time.Now() }

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
