package discovery

import "testing"

// White-box: parseNetstatOutput is unexported, so these exercise it
// directly against fixture `netstat -tan` text rather than through a fake
// Enumerator, which would only prove the interface plumbing works.
const netstatFixture = `Active Internet connections (servers and established)
Proto Recv-Q Send-Q Local Address           Foreign Address         State
tcp        0      0 0.0.0.0:2944            0.0.0.0:*               LISTEN
tcp        0      0 10.0.0.1:2944           10.1.2.10:51234         ESTABLISHED
tcp        0      0 10.0.0.1:1039           10.1.2.11:41000         ESTABLISHED
tcp        0      0 10.0.0.1:2945           10.1.2.12:33221         ESTABLISHED
tcp        0      0 10.0.0.1:61440          10.1.2.13:12345         ESTABLISHED
tcp        0      0 10.0.0.1:61441          10.1.2.14:12346         ESTABLISHED
tcp        0      0 10.0.0.1:61442          10.1.2.15:12347         ESTABLISHED
tcp        0      0 10.0.0.1:61443          10.1.2.16:12348         ESTABLISHED
tcp        0      0 10.0.0.1:61444          10.1.2.17:12349         ESTABLISHED
tcp6       0      0 ::1:22                  ::1:54321               ESTABLISHED
tcp        0      0 10.0.0.1:9999           10.1.2.18:22222         ESTABLISHED
`

func TestParseNetstatOutput_RecognizesEachPort(t *testing.T) {
	got := parseNetstatOutput(netstatFixture)

	want := map[string]string{
		"10.1.2.10": "tls",
		"10.1.2.11": "ptls",
		"10.1.2.12": "unenc",
		"10.1.2.13": "h323",
		"10.1.2.14": "h323",
		"10.1.2.15": "h323",
		"10.1.2.16": "h323",
		"10.1.2.17": "h323",
	}
	if len(got) != len(want) {
		t.Fatalf("parseNetstatOutput() = %v, want %v", got, want)
	}
	for ip, proto := range want {
		if got[ip] != proto {
			t.Errorf("parseNetstatOutput()[%q] = %q, want %q", ip, got[ip], proto)
		}
	}
}

func TestParseNetstatOutput_SkipsUnrecognizedPortAndListenLines(t *testing.T) {
	got := parseNetstatOutput(netstatFixture)

	if _, ok := got["10.1.2.18"]; ok {
		t.Error("parseNetstatOutput() should not report a connection on an unrecognized port")
	}
	if _, ok := got["0.0.0.0"]; ok {
		t.Error("parseNetstatOutput() should not report a LISTEN line")
	}
	if _, ok := got["::1"]; ok {
		t.Error("parseNetstatOutput() should not match a tcp6 address")
	}
}

func TestParseNetstatOutput_EmptyInput(t *testing.T) {
	got := parseNetstatOutput("")
	if len(got) != 0 {
		t.Fatalf("parseNetstatOutput(\"\") = %v, want empty", got)
	}
}

func TestFilter_EmptyFilterPassesThrough(t *testing.T) {
	candidates := map[string]string{"10.0.0.1": "tls", "10.0.0.2": "ptls"}

	got := Filter(candidates, nil)
	if len(got) != len(candidates) {
		t.Fatalf("Filter with nil filter = %v, want %v", got, candidates)
	}
	for ip, proto := range candidates {
		if got[ip] != proto {
			t.Errorf("Filter(nil)[%q] = %q, want %q", ip, got[ip], proto)
		}
	}
}

func TestFilter_IntersectsAllowSet(t *testing.T) {
	candidates := map[string]string{
		"10.0.0.1": "tls",
		"10.0.0.2": "ptls",
		"10.0.0.3": "unenc",
	}
	filter := map[string]struct{}{"10.0.0.1": {}, "10.0.0.3": {}}

	got := Filter(candidates, filter)

	want := map[string]string{"10.0.0.1": "tls", "10.0.0.3": "unenc"}
	if len(got) != len(want) {
		t.Fatalf("Filter() = %v, want %v", got, want)
	}
	for ip, proto := range want {
		if got[ip] != proto {
			t.Errorf("Filter()[%q] = %q, want %q", ip, got[ip], proto)
		}
	}
	if _, ok := got["10.0.0.2"]; ok {
		t.Error("Filter() should drop candidates absent from the allow set")
	}
}
