package upload

import "testing"

// Exercises sanitizeFilename directly rather than through a live HTTP round
// trip: both net/http's client and ServeMux normalize ".." out of request
// paths before a handler ever sees them, so a raw traversal payload only
// reaches this function verbatim when a client sends a non-conforming
// request line, which is exactly what this function guards against.
func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "/capture1.pcap", "capture1.pcap"},
		{"nested path takes last element", "/a/b/capture1.pcap", "capture1.pcap"},
		{"dotdot collapsed by Base then stripped", "/../../etc/evil.pcap", "evil.pcap"},
		{"bare dotdot yields empty", "/..", ""},
		{"root yields empty", "/", ""},
		{"embedded dotdot in name stripped", "/a..b.pcap", "ab.pcap"},
		{"backslash stripped", "/a\\b.pcap", "ab.pcap"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := sanitizeFilename(c.in)
			if got != c.want {
				t.Fatalf("sanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
