package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tssh/internal/bridge"
	"tssh/internal/config"
	"tssh/internal/execx"
	"tssh/internal/logging"
	"tssh/internal/status"
)

var version = "dev" // set by the linker

// Exit codes. check is consumed by ssh's Match exec, which only reads
// zero versus non-zero.
const (
	exitOK        = 0
	exitNotMember = 1
	exitUsage     = 1
	exitFailure   = 2
)

// env carries everything main takes from the process, so tests can build
// isolated command trees.
type env struct {
	runner execx.Runner
	stdout io.Writer
	stderr io.Writer
	home   func() (string, error)
}

func defaultEnv() *env {
	return &env{
		runner: execx.NewOSRunner(),
		stdout: os.Stdout,
		stderr: os.Stderr,
		home:   os.UserHomeDir,
	}
}

func main() {
	os.Exit(run(os.Args[1:], defaultEnv()))
}

// exitError ends the process with code without printing anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitStatus maps a membership answer to the check exit code.
func exitStatus(member bool) int {
	if member {
		return exitOK
	}
	return exitNotMember
}

func run(args []string, e *env) int {
	cmd := newRootCmd(e)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(e.stderr, "tssh: %v\n", err)
	return exitFailure
}

// app is the state shared by subcommands once flags are parsed.
type app struct {
	env  *env
	v    *viper.Viper
	home string
	cfg  config.Config
}

func newRootCmd(e *env) *cobra.Command {
	a := &app{env: e, v: viper.New()}

	cmd := &cobra.Command{
		Use:   "tssh",
		Short: "Tool for integrating Tailscale SSH host keys with ssh",
		Long: `tssh keeps a known_hosts file in sync with the SSH host keys that
tailscale peers publish, and tells ssh whether a host belongs to the tailnet.

Add the output of "tssh ssh-config" to ~/.ssh/config to use it.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Configure(e.stderr, a.v.GetBool("debug"))
			if !cmd.HasParent() {
				return nil
			}
			return a.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetOut(cmd.ErrOrStderr())
			_ = cmd.Help()
			return &exitError{code: exitUsage}
		},
	}
	cmd.SetOut(e.stdout)
	cmd.SetErr(e.stderr)
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/"+config.DefaultFile+")")
	flags.String("known-hosts", "", "known_hosts file to maintain (default $HOME/.local/tailscale_known_hosts)")
	flags.String("tailscale", "", "tailscale binary (default \"tailscale\")")
	flags.Bool("debug", false, "log diagnostics to stderr")

	a.v.SetEnvPrefix("TSSH")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	for _, name := range []string{"config", "known-hosts", "tailscale", "debug"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(newCheckCmd(a))
	cmd.AddCommand(newSSHConfigCmd(a))
	cmd.AddCommand(newUpdateCmd(a))
	cmd.AddCommand(newListCmd(a))

	return cmd
}

// loadConfig layers defaults, the YAML file, then TSSH_* env and flags.
func (a *app) loadConfig() error {
	home, err := a.env.home()
	if err != nil {
		return fmt.Errorf("home directory: %w", err)
	}
	a.home = home

	var cfg config.Config
	if path := a.v.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOptional(config.DefaultPath(home))
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if s := a.v.GetString("known-hosts"); s != "" {
		cfg.KnownHostsFile = s
	}
	if s := a.v.GetString("tailscale"); s != "" {
		cfg.Tailscale = s
	}
	config.ApplyDefaults(&cfg, home)
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg
	logging.Debugf("known_hosts=%s tailscale=%s", cfg.KnownHostsFile, cfg.Tailscale)
	return nil
}

func (a *app) bridge() *bridge.Bridge {
	return bridge.New(status.NewFetcher(a.env.runner, a.cfg.Tailscale), a.cfg.KnownHostsFile)
}

// passthroughFlags returns the global settings given on the command line or
// in the environment, so hooks rendered into ssh_config see the same values.
func (a *app) passthroughFlags() []string {
	var out []string
	for _, name := range []string{"config", "known-hosts", "tailscale"} {
		if s := a.v.GetString(name); s != "" {
			out = append(out, "--"+name, s)
		}
	}
	return out
}
