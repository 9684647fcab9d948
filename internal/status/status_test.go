package status

import (
	"errors"
	"os/exec"
	"strings"
	"testing"

	"tssh/internal/execx"
)

type fakeRunner struct {
	out  string
	err  error
	cmds []string
}

func (r *fakeRunner) Output(name string, args ...string) ([]byte, error) {
	r.cmds = append(r.cmds, name+" "+strings.Join(args, " "))
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.out), nil
}

var _ execx.Runner = (*fakeRunner)(nil)

const alphaDoc = `{"Peer": {"p1": {"TailscaleIPs": ["100.1.1.1"], "HostName": "alpha", "DNSName": "alpha.mesh.ts.net.", "sshHostKeys": ["ssh-ed25519 AAAA1"]}}}`

func TestParse_SinglePeer(t *testing.T) {
	t.Parallel()

	peers, err := Parse([]byte(alphaDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("peers=%d", len(peers))
	}
	p := peers[0]
	if p.ID != "p1" || p.HostName != "alpha" || p.DNSName != "alpha.mesh.ts.net." {
		t.Fatalf("peer=%+v", p)
	}
	if len(p.Addresses) != 1 || p.Addresses[0].String() != "100.1.1.1" {
		t.Fatalf("addresses=%v", p.Addresses)
	}
	if len(p.HostKeys) != 1 || p.HostKeys[0] != "ssh-ed25519 AAAA1" {
		t.Fatalf("keys=%v", p.HostKeys)
	}
}

func TestParse_SkipsPeersWithoutKeys(t *testing.T) {
	t.Parallel()

	doc := `{"Peer": {
		"absent": {"TailscaleIPs": ["100.1.1.2"], "HostName": "beta", "DNSName": "beta.mesh.ts.net."},
		"null":   {"TailscaleIPs": ["100.1.1.3"], "HostName": "gamma", "DNSName": "gamma.mesh.ts.net.", "sshHostKeys": null},
		"empty":  {"TailscaleIPs": ["100.1.1.4"], "HostName": "delta", "DNSName": "delta.mesh.ts.net.", "sshHostKeys": []},
		"keyed":  {"TailscaleIPs": ["100.1.1.1"], "HostName": "alpha", "DNSName": "alpha.mesh.ts.net.", "sshHostKeys": ["ssh-ed25519 AAAA1"]}
	}}`
	peers, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(peers) != 1 || peers[0].HostName != "alpha" {
		t.Fatalf("peers=%+v", peers)
	}
}

func TestParse_MalformedSkippedPeerIsIgnored(t *testing.T) {
	t.Parallel()

	doc := `{"Peer": {
		"junk":  {"TailscaleIPs": 7, "HostName": false},
		"keyed": {"TailscaleIPs": ["100.1.1.1"], "HostName": "alpha", "DNSName": "alpha.mesh.ts.net.", "sshHostKeys": ["k1"]}
	}}`
	peers, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("peers=%d", len(peers))
	}
}

func TestParse_SortedByPeerID(t *testing.T) {
	t.Parallel()

	doc := `{"Peer": {
		"c": {"TailscaleIPs": ["100.1.1.3"], "HostName": "c", "DNSName": "c.ts.net.", "sshHostKeys": ["k"]},
		"a": {"TailscaleIPs": ["100.1.1.1"], "HostName": "a", "DNSName": "a.ts.net.", "sshHostKeys": ["k"]},
		"b": {"TailscaleIPs": ["100.1.1.2"], "HostName": "b", "DNSName": "b.ts.net.", "sshHostKeys": ["k"]}
	}}`
	for i := 0; i < 5; i++ {
		peers, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(peers) != 3 || peers[0].ID != "a" || peers[1].ID != "b" || peers[2].ID != "c" {
			t.Fatalf("order=%+v", peers)
		}
	}
}

func TestParse_NullPeerMapIsEmpty(t *testing.T) {
	t.Parallel()

	peers, err := Parse([]byte(`{"Peer": null, "Self": {}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("peers=%d", len(peers))
	}
}

func TestParse_KeepsPeersWithUnusualNames(t *testing.T) {
	t.Parallel()

	doc := `{"Peer": {
		"p1": {"TailscaleIPs": ["100.1.1.1"], "HostName": "alpha", "DNSName": "alpha.mesh.ts.net.", "sshHostKeys": ["k1"]},
		"p2": {"TailscaleIPs": ["100.1.1.2"], "HostName": "Pixel 7", "DNSName": "pixel-7.mesh.ts.net.", "sshHostKeys": ["k2"]},
		"p3": {"TailscaleIPs": ["100.1.1.3"], "HostName": "a,b", "DNSName": "", "sshHostKeys": ["k3"]}
	}}`
	peers, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(peers) != 3 {
		t.Fatalf("peers=%+v", peers)
	}
	if peers[1].HostName != "Pixel 7" {
		t.Fatalf("hostname=%q", peers[1].HostName)
	}
	if peers[2].HostName != "a,b" || peers[2].DNSName != "" {
		t.Fatalf("peer=%+v", peers[2])
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		doc    string
		peerID string
		field  string
		is     error
	}{
		{name: "not json", doc: `not json`},
		{name: "not object", doc: `null`},
		{name: "array", doc: `[]`},
		{name: "no Peer", doc: `{"Self": {}}`, field: "Peer", is: ErrMissingField},
		{name: "Peer wrong type", doc: `{"Peer": []}`, field: "Peer"},
		{
			name:   "missing HostName",
			doc:    `{"Peer": {"p1": {"TailscaleIPs": ["100.1.1.1"], "DNSName": "a.ts.net.", "sshHostKeys": ["k"]}}}`,
			peerID: "p1", field: "HostName", is: ErrMissingField,
		},
		{
			name:   "missing DNSName",
			doc:    `{"Peer": {"p1": {"TailscaleIPs": ["100.1.1.1"], "HostName": "a", "sshHostKeys": ["k"]}}}`,
			peerID: "p1", field: "DNSName", is: ErrMissingField,
		},
		{
			name:   "missing TailscaleIPs",
			doc:    `{"Peer": {"p1": {"HostName": "a", "DNSName": "a.ts.net.", "sshHostKeys": ["k"]}}}`,
			peerID: "p1", field: "TailscaleIPs", is: ErrMissingField,
		},
		{
			name:   "empty TailscaleIPs",
			doc:    `{"Peer": {"p1": {"TailscaleIPs": [], "HostName": "a", "DNSName": "a.ts.net.", "sshHostKeys": ["k"]}}}`,
			peerID: "p1", field: "TailscaleIPs", is: ErrEmptyField,
		},
		{
			name:   "bad address",
			doc:    `{"Peer": {"p1": {"TailscaleIPs": ["100.1.1"], "HostName": "a", "DNSName": "a.ts.net.", "sshHostKeys": ["k"]}}}`,
			peerID: "p1", field: "TailscaleIPs",
		},
		{
			name:   "HostName wrong type",
			doc:    `{"Peer": {"p1": {"TailscaleIPs": ["100.1.1.1"], "HostName": 1, "DNSName": "a.ts.net.", "sshHostKeys": ["k"]}}}`,
			peerID: "p1",
		},
		{
			name:   "keys wrong type",
			doc:    `{"Peer": {"p1": {"TailscaleIPs": ["100.1.1.1"], "HostName": "a", "DNSName": "a.ts.net.", "sshHostKeys": "k"}}}`,
			peerID: "p1", field: "sshHostKeys",
		},
		{
			name:   "multi-line key",
			doc:    `{"Peer": {"p1": {"TailscaleIPs": ["100.1.1.1"], "HostName": "a", "DNSName": "a.ts.net.", "sshHostKeys": ["k\nevil k"]}}}`,
			peerID: "p1", field: "sshHostKeys",
		},
		{
			name:   "blank key",
			doc:    `{"Peer": {"p1": {"TailscaleIPs": ["100.1.1.1"], "HostName": "a", "DNSName": "a.ts.net.", "sshHostKeys": [" "]}}}`,
			peerID: "p1", field: "sshHostKeys", is: ErrEmptyField,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			peers, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatalf("expected error, got peers=%+v", peers)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err=%T %v", err, err)
			}
			if pe.PeerID != tc.peerID {
				t.Fatalf("peer=%q want %q", pe.PeerID, tc.peerID)
			}
			if pe.Field != tc.field {
				t.Fatalf("field=%q want %q", pe.Field, tc.field)
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("err=%v want %v", err, tc.is)
			}
		})
	}
}

func TestFetcherPeers_RunsStatusJSON(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{out: alphaDoc}
	peers, err := NewFetcher(r, "/usr/bin/tailscale").Peers()
	if err != nil {
		t.Fatalf("Peers: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("peers=%d", len(peers))
	}
	if len(r.cmds) != 1 || r.cmds[0] != "/usr/bin/tailscale status --json" {
		t.Fatalf("cmds=%v", r.cmds)
	}
}

func TestFetcherPeers_DefaultBinary(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{out: alphaDoc}
	if _, err := NewFetcher(r, "").Peers(); err != nil {
		t.Fatalf("Peers: %v", err)
	}
	if r.cmds[0] != "tailscale status --json" {
		t.Fatalf("cmds=%v", r.cmds)
	}
}

func TestFetcherPeers_ExecutionErrorKeepsStderr(t *testing.T) {
	t.Parallel()

	exitErr := errors.New("exit status 1")
	r := &fakeRunner{err: &execx.Error{
		Name:   "tailscale",
		Args:   []string{"status", "--json"},
		Stderr: "failed to connect to local tailscaled",
		Err:    exitErr,
	}}
	_, err := NewFetcher(r, "").Peers()
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("err=%T %v", err, err)
	}
	if ee.Stderr != "failed to connect to local tailscaled" {
		t.Fatalf("stderr=%q", ee.Stderr)
	}
	if !errors.Is(err, exitErr) {
		t.Fatalf("cause lost: %v", err)
	}
	if !strings.Contains(err.Error(), "failed to connect to local tailscaled") {
		t.Fatalf("message=%q", err.Error())
	}
}

func TestFetcherPeers_MissingBinaryIsExecutionError(t *testing.T) {
	t.Parallel()

	_, err := NewFetcher(execx.NewOSRunner(), "tssh-no-such-tailscale").Peers()
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("err=%T %v", err, err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestFetcherPeers_ParseErrorPropagates(t *testing.T) {
	t.Parallel()

	_, err := NewFetcher(&fakeRunner{out: `{}`}, "").Peers()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err=%T %v", err, err)
	}
}
