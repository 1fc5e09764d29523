package models

import (
	"regexp"
	"strings"
	"time"
)

// Capture is one uploaded packet-capture record, enriched by the Upload
// Processor with `capinfos` and RTP-stream-analyzer output. Grounded on
// capture.py's Capture class.
type Capture struct {
	RemoteIP          string
	Filename          string
	FileSize          int64
	ReceivedTimestamp time.Time
	GWNumber          string // resolved from GWs[RemoteIP], "NA" if unknown

	CapinfosRaw string // raw `capinfos` stdout, "" if the run failed
	RTPInfoRaw  string // raw RTP-stream-analyzer stdout, "" if the run failed
}

var (
	firstPacketTimeRe = regexp.MustCompile(`First packet time:\s+(.*?)\.`)
	lastPacketTimeRe  = regexp.MustCompile(`Last packet time:\s+(.*?)\.`)
)

// FirstPacketTime extracts the "First packet time" line from the raw
// capinfos output, per capture.py's regex.
func (c *Capture) FirstPacketTime() (string, bool) {
	m := firstPacketTimeRe.FindStringSubmatch(c.CapinfosRaw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LastPacketTime extracts the "Last packet time" line from the raw capinfos
// output, per capture.py's regex.
func (c *Capture) LastPacketTime() (string, bool) {
	m := lastPacketTimeRe.FindStringSubmatch(c.CapinfosRaw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RTPStreams returns the lines of the RTP-stream analyzer output that
// describe an actual stream (contain an SSRC marker "0x"), per capture.py.
func (c *Capture) RTPStreams() []string {
	return filterLines(c.RTPInfoRaw, func(line string) bool {
		return strings.Contains(line, "0x")
	})
}

// RTPProblems returns the lines flagged by tshark as problematic: those
// ending in "X" once trailing whitespace is stripped, per capture.py.
func (c *Capture) RTPProblems() []string {
	return filterLines(c.RTPInfoRaw, func(line string) bool {
		trimmed := strings.TrimRight(line, " \t\r")
		return strings.HasSuffix(trimmed, "X")
	})
}

func filterLines(text string, keep func(string) bool) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if keep(line) {
			out = append(out, line)
		}
	}
	return out
}
