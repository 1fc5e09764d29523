// Package discovery enumerates candidate gateways and drives the one-shot
// discovery poll across all of them. Grounded on async_loop.py's
// connected_bgws/discovery.
package discovery

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
)

// portProto maps the call-controller-side TCP port observed in an
// ESTABLISHED connection to the gateway's signalling protocol tag. The
// three low ports are grounded directly on utils.py's connected_bgws; the
// 61440-61444 range is spec.md §4.4's addition (DESIGN.md Open Question
// decision 3) and is mapped to "h323" per spec.md §1's protocol-tag list,
// since that range is Avaya's well-known H.323 gatekeeper signalling band.
var portProto = map[string]string{
	"1039":  "ptls",
	"2944":  "tls",
	"2945":  "unenc",
	"61440": "h323",
	"61441": "h323",
	"61442": "h323",
	"61443": "h323",
	"61444": "h323",
}

var establishedLineRe = regexp.MustCompile(
	`([0-9.]+):(1039|2944|2945|61440|61441|61442|61443|61444)\s+([0-9.]+):([0-9]+)\s+ESTABLISHED`,
)

// Enumerator discovers candidate gateway IPs and their signalling
// protocol. Abstracted behind an interface (DESIGN.md Open Question
// decision 6) so the `netstat` text-scraping implementation can be swapped
// for a `/proc/net/tcp` reader without touching callers.
type Enumerator interface {
	Enumerate(ctx context.Context) (map[string]string, error)
}

// NetstatEnumerator scrapes `netstat -tan` for ESTABLISHED connections to
// the call-controller on the recognized ports, grounded on
// utils.py's connected_bgws.
type NetstatEnumerator struct{}

func (NetstatEnumerator) Enumerate(ctx context.Context) (map[string]string, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-tan").Output()
	if err != nil {
		return nil, err
	}
	return parseNetstatOutput(string(out)), nil
}

func parseNetstatOutput(text string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "ESTABLISHED") {
			continue
		}
		m := establishedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ip, port := m[3], m[2]
		proto, ok := portProto[port]
		if !ok {
			proto = "unknown"
		}
		result[ip] = proto
	}
	return result
}

// StaticEnumerator bypasses scraping entirely, returning a fixed explicit
// IP set with a single shared protocol tag — spec.md §4.4 "(ii) from an
// explicit IP input set".
type StaticEnumerator struct {
	IPs   []string
	Proto string
}

func (s StaticEnumerator) Enumerate(ctx context.Context) (map[string]string, error) {
	result := make(map[string]string, len(s.IPs))
	for _, ip := range s.IPs {
		result[ip] = s.Proto
	}
	return result, nil
}

// Filter intersects candidates with an optional allow-set; a nil/empty
// filter passes every candidate through unchanged.
func Filter(candidates map[string]string, filter map[string]struct{}) map[string]string {
	if len(filter) == 0 {
		return candidates
	}
	out := make(map[string]string, len(candidates))
	for ip, proto := range candidates {
		if _, ok := filter[ip]; ok {
			out[ip] = proto
		}
	}
	return out
}
