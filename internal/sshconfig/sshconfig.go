package sshconfig

import (
	"errors"
	"fmt"
	"strings"
)

const DefaultCommand = "tssh"

// ErrUnquotable is returned for values ssh_config has no way to quote.
var ErrUnquotable = errors.New(`contains '"' or '\'`)

// Params controls the rendered Match block.
type Params struct {
	// Command is how ssh should invoke tssh. Defaults to DefaultCommand.
	Command string
	// Flags are placed between Command and the check subcommand.
	Flags []string
	// KnownHostsFile is the file tssh check keeps up to date.
	KnownHostsFile string
}

// Render returns an ssh_config snippet that runs `tssh check %h` for every
// connection and, when it succeeds, points UserKnownHostsFile at the file
// tssh maintains. ssh expands % tokens in both directives, so literal
// percent signs are doubled.
func Render(p Params) (string, error) {
	cmd := p.Command
	if cmd == "" {
		cmd = DefaultCommand
	}

	if err := quotable("command", cmd); err != nil {
		return "", err
	}
	words := []string{escapeTokens(shellQuote(cmd))}
	for _, f := range p.Flags {
		if err := quotable("flag", f); err != nil {
			return "", err
		}
		words = append(words, escapeTokens(shellQuote(f)))
	}
	words = append(words, "check", "%h")
	if err := quotable("known hosts file", p.KnownHostsFile); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("# Use tssh to check if a host is in tailscale\n")
	b.WriteString("Match exec \"")
	b.WriteString(strings.Join(words, " "))
	b.WriteString("\"\n")
	b.WriteString("    UserKnownHostsFile ")
	b.WriteString(configQuote(escapeTokens(p.KnownHostsFile)))
	b.WriteString("\n")
	return b.String(), nil
}

func quotable(what, s string) error {
	if strings.ContainsAny(s, `"\`) {
		return fmt.Errorf("ssh config %s %q: %w", what, s, ErrUnquotable)
	}
	return nil
}

func escapeTokens(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// shellQuote quotes s for the shell ssh runs Match exec commands with.
func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t'\"\\$`;&|<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func configQuote(s string) string {
	if !strings.ContainsAny(s, " \t") {
		return s
	}
	return `"` + s + `"`
}
