package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tssh/internal/knownhosts"
	"tssh/internal/logging"
	"tssh/internal/model"
	"tssh/internal/sshconfig"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <host>",
		Short: "Refresh the known_hosts file and exit 0 if host is a tailscale peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			member, err := a.bridge().Check(args[0])
			if err != nil {
				return err
			}
			logging.Debugf("check %s member=%v", args[0], member)
			if code := exitStatus(member); code != exitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func newSSHConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ssh-config",
		Short: "Print an ssh_config snippet that uses tssh check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snippet, err := sshconfig.Render(sshconfig.Params{
				Flags:          a.passthroughFlags(),
				KnownHostsFile: a.cfg.KnownHostsFile,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), snippet)
			return nil
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refresh the known_hosts file without checking a host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			peers, err := a.bridge().Refresh()
			if err != nil {
				return err
			}
			keys := 0
			for _, p := range peers {
				keys += len(p.HostKeys)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d host keys for %d peers to %s\n", keys, len(peers), a.cfg.KnownHostsFile)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Refresh the known_hosts file and list peers with their host keys",
		Long: `list refreshes the known_hosts file and prints one row per peer host key.
IN_FILE reads the file back with ssh's own known_hosts matching and shows
whether every name and address written for the peer accepts the key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			peers, err := a.bridge().Refresh()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(peers) == 0 {
				fmt.Fprintln(out, "no peers with ssh host keys")
				return nil
			}

			checker, err := knownhosts.NewChecker(a.cfg.KnownHostsFile)
			if err != nil {
				logging.Debugf("list: %v", err)
			}

			const row = "%-16s  %-32s  %-32s  %-20s  %-7s  %s\n"
			fmt.Fprintf(out, row, "NAME", "DNS_NAME", "ADDRESSES", "KEY_TYPE", "IN_FILE", "FINGERPRINT")
			for _, p := range peers {
				addrs := make([]string, 0, len(p.Addresses))
				for _, addr := range p.Addresses {
					addrs = append(addrs, addr.String())
				}
				for _, key := range p.HostKeys {
					keyType, fp := knownhosts.Describe(key)
					fmt.Fprintf(out, row, p.HostName, p.DNSName, strings.Join(addrs, ","), keyType, inFile(checker, p, key), fp)
				}
			}
			return nil
		},
	}
}

func inFile(c *knownhosts.Checker, p model.Peer, key string) string {
	switch {
	case c == nil:
		return "-"
	case c.Matches(p, key):
		return "yes"
	default:
		return "no"
	}
}
