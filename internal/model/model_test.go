package model

import "testing"

func TestPeerShortDNSName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"alpha.mesh.ts.net.":  "alpha.mesh.ts.net",
		"alpha.mesh.ts.net":   "alpha.mesh.ts.net",
		"alpha.mesh.ts.net..": "alpha.mesh.ts.net.",
	}
	for in, want := range cases {
		p := Peer{DNSName: in}
		if got := p.ShortDNSName(); got != want {
			t.Fatalf("ShortDNSName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestPeerAliases(t *testing.T) {
	t.Parallel()

	p := Peer{HostName: "alpha", DNSName: "alpha.mesh.ts.net."}
	got := p.Aliases()
	want := []string{"alpha", "alpha.mesh.ts.net.", "alpha.mesh.ts.net"}
	if len(got) != len(want) {
		t.Fatalf("aliases=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("aliases=%v", got)
		}
	}
}
