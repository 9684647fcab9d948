package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strings"

	"tssh/internal/execx"
	"tssh/internal/logging"
	"tssh/internal/model"
)

const DefaultBinary = "tailscale"

var (
	ErrMissingField = errors.New("field missing")
	ErrEmptyField   = errors.New("field empty")
)

// ExecutionError is returned when the status query cannot be run or exits
// non-zero. Stderr holds the tool's own diagnostics.
type ExecutionError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %v: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ParseError is returned when the status document or a retained peer in it
// does not have the expected shape. PeerID is empty for document-level
// problems.
type ParseError struct {
	PeerID string
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse status")
	if e.PeerID != "" {
		fmt.Fprintf(&b, ": peer %q", e.PeerID)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Fetcher runs `tailscale status --json`. It is injectable for unit tests.
type Fetcher struct {
	r      execx.Runner
	binary string
}

func NewFetcher(r execx.Runner, binary string) *Fetcher {
	if r == nil {
		r = execx.NewOSRunner()
	}
	if binary == "" {
		binary = DefaultBinary
	}
	return &Fetcher{r: r, binary: binary}
}

// Peers queries the tailnet and returns every peer that publishes SSH host
// keys, ordered by peer ID.
func (f *Fetcher) Peers() ([]model.Peer, error) {
	args := []string{"status", "--json"}
	logging.Debugf("running %s %s", f.binary, strings.Join(args, " "))
	out, err := f.r.Output(f.binary, args...)
	if err != nil {
		execErr := &ExecutionError{
			Command: f.binary + " " + strings.Join(args, " "),
			Err:     err,
		}
		var ee *execx.Error
		if errors.As(err, &ee) {
			execErr.Stderr = ee.Stderr
			execErr.Err = ee.Err
		}
		return nil, execErr
	}
	return Parse(out)
}

// rawPeer mirrors the fields of one tailscale status peer that tssh reads.
// Pointers distinguish an absent field from an empty one.
type rawPeer struct {
	TailscaleIPs *[]string `json:"TailscaleIPs"`
	HostName     *string   `json:"HostName"`
	DNSName      *string   `json:"DNSName"`
}

type keysProbe struct {
	SSHHostKeys json.RawMessage `json:"sshHostKeys"`
}

// Parse decodes a `tailscale status --json` document. Peers without SSH host
// keys are dropped before any other field is looked at; any problem with a
// retained peer fails the whole document.
func Parse(data []byte) ([]model.Peer, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &ParseError{Err: err}
	}
	if top == nil {
		return nil, &ParseError{Err: errors.New("document is not an object")}
	}
	rawPeers, ok := top["Peer"]
	if !ok {
		return nil, &ParseError{Field: "Peer", Err: ErrMissingField}
	}
	var byID map[string]json.RawMessage
	if err := json.Unmarshal(rawPeers, &byID); err != nil {
		return nil, &ParseError{Field: "Peer", Err: err}
	}

	peers := make([]model.Peer, 0, len(byID))
	skipped := 0
	for _, id := range slices.Sorted(maps.Keys(byID)) {
		keys, err := decodeKeys(id, byID[id])
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			skipped++
			continue
		}
		peer, err := decodePeer(id, byID[id])
		if err != nil {
			return nil, err
		}
		peer.HostKeys = keys
		peers = append(peers, peer)
	}
	logging.Debugf("status peers kept=%d skipped=%d", len(peers), skipped)
	return peers, nil
}

func decodeKeys(id string, raw json.RawMessage) ([]string, error) {
	var probe keysProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &ParseError{PeerID: id, Err: err}
	}
	if len(probe.SSHHostKeys) == 0 {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal(probe.SSHHostKeys, &keys); err != nil {
		return nil, &ParseError{PeerID: id, Field: "sshHostKeys", Err: err}
	}
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			return nil, &ParseError{PeerID: id, Field: "sshHostKeys", Err: ErrEmptyField}
		}
		if strings.ContainsAny(key, "\r\n") {
			return nil, &ParseError{PeerID: id, Field: "sshHostKeys", Err: errors.New("key spans multiple lines")}
		}
	}
	return keys, nil
}

func decodePeer(id string, raw json.RawMessage) (model.Peer, error) {
	var rp rawPeer
	if err := json.Unmarshal(raw, &rp); err != nil {
		return model.Peer{}, &ParseError{PeerID: id, Err: err}
	}

	hostName, err := requireName(id, "HostName", rp.HostName)
	if err != nil {
		return model.Peer{}, err
	}
	dnsName, err := requireName(id, "DNSName", rp.DNSName)
	if err != nil {
		return model.Peer{}, err
	}

	if rp.TailscaleIPs == nil {
		return model.Peer{}, &ParseError{PeerID: id, Field: "TailscaleIPs", Err: ErrMissingField}
	}
	if len(*rp.TailscaleIPs) == 0 {
		return model.Peer{}, &ParseError{PeerID: id, Field: "TailscaleIPs", Err: ErrEmptyField}
	}
	addrs := make([]netip.Addr, 0, len(*rp.TailscaleIPs))
	for _, s := range *rp.TailscaleIPs {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return model.Peer{}, &ParseError{PeerID: id, Field: "TailscaleIPs", Err: err}
		}
		addrs = append(addrs, addr)
	}

	return model.Peer{
		ID:        id,
		HostName:  hostName,
		DNSName:   dnsName,
		Addresses: addrs,
	}, nil
}

// requireName only insists that the field is present. Names that cannot be
// written to known_hosts are still valid peer names; the writer leaves them
// out of the host list.
func requireName(id, field string, v *string) (string, error) {
	if v == nil {
		return "", &ParseError{PeerID: id, Field: field, Err: ErrMissingField}
	}
	return *v, nil
}
