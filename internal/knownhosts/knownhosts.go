// Package knownhosts renders tailnet peers into an OpenSSH known_hosts file
// and answers whether a host name belongs to one of those peers.
package knownhosts

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	xknownhosts "golang.org/x/crypto/ssh/knownhosts"

	"tssh/internal/logging"
	"tssh/internal/model"
)

// DefaultFile is the known_hosts location relative to the user's home.
const DefaultFile = ".local/tailscale_known_hosts"

// WriteError is returned when the known_hosts file cannot be replaced.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write known hosts %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// writable reports whether name can appear verbatim in a known_hosts host
// list without ssh reading it as a separator, pattern or line marker.
func writable(name string) bool {
	if name == "" || strings.ContainsAny(name, ", \t\r\n*?![]") {
		return false
	}
	return !strings.ContainsAny(name[:1], "#@|")
}

// Hosts returns the host list written for p: the writable aliases followed by
// every address.
func Hosts(p model.Peer) []string {
	hosts := make([]string, 0, 3+len(p.Addresses))
	for _, alias := range p.Aliases() {
		if !writable(alias) {
			logging.Debugf("peer %s: leaving %q out of known_hosts", p.ID, alias)
			continue
		}
		hosts = append(hosts, alias)
	}
	for _, addr := range p.Addresses {
		hosts = append(hosts, addr.String())
	}
	return hosts
}

// Line renders the known_hosts line for one peer key. The space before the
// newline is part of the format existing files were written with.
func Line(p model.Peer, key string) string {
	return strings.Join(Hosts(p), ",") + " " + key + " \n"
}

// Render returns the complete file contents, one line per (peer, key).
func Render(peers []model.Peer) []byte {
	var buf bytes.Buffer
	for _, p := range peers {
		for _, key := range p.HostKeys {
			buf.WriteString(Line(p, key))
		}
	}
	return buf.Bytes()
}

// Write replaces the file at path with the rendered peers. The content goes
// to a temporary sibling first and is renamed into place, so a failure
// leaves any previous file untouched. When path is a symlink the file it
// points to is replaced and the link is kept.
func Write(path string, peers []model.Peer) error {
	data := Render(peers)

	target := path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		target = resolved
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: path, Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return &WriteError{Path: path, Op: "create", Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return &WriteError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return &WriteError{Path: path, Op: "chmod", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &WriteError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return &WriteError{Path: path, Op: "rename", Err: err}
	}

	logging.Debugf("wrote %d bytes for %d peers to %s", len(data), len(peers), target)
	return nil
}

// IsKnownHost reports whether candidate is the short name, the DNS name, or
// the DNS name without its trailing dot of any peer.
func IsKnownHost(peers []model.Peer, candidate string) bool {
	if candidate == "" {
		return false
	}
	for _, p := range peers {
		for _, alias := range p.Aliases() {
			if alias == candidate {
				return true
			}
		}
	}
	return false
}

// Checker reads a known_hosts file back the way ssh would.
type Checker struct {
	cb ssh.HostKeyCallback
}

func NewChecker(path string) (*Checker, error) {
	cb, err := xknownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("read known hosts %s: %w", path, err)
	}
	return &Checker{cb: cb}, nil
}

// Matches reports whether the file accepts key for every host Write lists
// for p. Keys that do not parse never match.
func (c *Checker) Matches(p model.Peer, key string) bool {
	pk, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key))
	if err != nil || len(p.Addresses) == 0 {
		return false
	}
	for _, host := range Hosts(p) {
		remote := p.Addresses[0]
		if addr, err := netip.ParseAddr(host); err == nil {
			remote = addr
		}
		tcp := net.TCPAddrFromAddrPort(netip.AddrPortFrom(remote, 22))
		if err := c.cb(net.JoinHostPort(host, "22"), tcp, pk); err != nil {
			logging.Debugf("peer %s: %s does not accept %s: %v", p.ID, host, pk.Type(), err)
			return false
		}
	}
	return true
}

// Describe returns the key type and SHA256 fingerprint of an authorized_keys
// formatted key, or "invalid" for both when it does not parse. It is for
// display only.
func Describe(key string) (keyType, fingerprint string) {
	pk, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key))
	if err != nil {
		return "invalid", "invalid"
	}
	return pk.Type(), ssh.FingerprintSHA256(pk)
}
