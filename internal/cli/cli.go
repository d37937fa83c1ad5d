// Package cli implements the verifolio command line client. Every command
// reads the session through the reconciler and gates protected calls with
// the access guard, the same way the web client does.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charlesng35/verifolio/internal/reconciler"
	"github.com/charlesng35/verifolio/pkg/logger"
)

// ServerEnv overrides the default backend URL.
const ServerEnv = "VERIFOLIO_SERVER"

const defaultServer = "http://localhost:8000"

// ErrUsage reports a malformed command line. Usage has already been printed.
var ErrUsage = errors.New("invalid usage")

// CLI wires command handlers to process streams.
type CLI struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// Interactive enables prompts for optional text such as rejection reasons.
	Interactive bool
	// OpenBrowser shows the sign-in page; nil only prints the URL.
	OpenBrowser func(url string) error

	reader *bufio.Reader
}

type globalOptions struct {
	server     string
	sessionDir string
	debug      bool
	json       bool
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *CLI, opts globalOptions, args []string) error
}

func commands() []command {
	return []command{
		{name: "login", summary: "sign in with Google", run: runLogin},
		{name: "logout", summary: "end the session", run: runLogout},
		{name: "whoami", summary: "show the signed in identity and landing page", run: runWhoami},
		{name: "verify", summary: "request, approve or reject content verification", run: runVerify},
		{name: "associations", summary: "request or answer institute associations", run: runAssociations},
	}
}

// Run parses global flags and dispatches to a subcommand.
func (c *CLI) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verifolio", flag.ContinueOnError)
	fs.SetOutput(c.Err)

	server := os.Getenv(ServerEnv)
	if strings.TrimSpace(server) == "" {
		server = defaultServer
	}

	var opts globalOptions
	fs.StringVar(&opts.server, "server", server, "Backend base URL")
	fs.StringVar(&opts.sessionDir, "session-dir", "", "Directory holding session.json (default: user config dir)")
	fs.BoolVar(&opts.debug, "debug", false, "Log client internals to stderr")
	fs.BoolVar(&opts.json, "json", false, "Print raw JSON results")
	fs.Usage = func() { c.usage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		c.usage(fs)
		return ErrUsage
	}

	level := "warn"
	if opts.debug {
		level = "debug"
	}
	if err := logger.InitConsole(level); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	if opts.sessionDir == "" {
		dir, err := reconciler.DefaultDir()
		if err != nil {
			return fmt.Errorf("resolve session directory: %w", err)
		}
		opts.sessionDir = dir
	}

	name := fs.Arg(0)
	for _, cmd := range commands() {
		if cmd.name == name {
			return cmd.run(ctx, c, opts, fs.Args()[1:])
		}
	}

	fmt.Fprintf(c.Err, "unknown command %q\n\n", name)
	c.usage(fs)
	return ErrUsage
}

func (c *CLI) usage(fs *flag.FlagSet) {
	fmt.Fprintln(c.Err, "usage: verifolio [flags] <command> [args]")
	fmt.Fprintln(c.Err)
	fmt.Fprintln(c.Err, "commands:")
	for _, cmd := range commands() {
		fmt.Fprintf(c.Err, "  %-13s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(c.Err)
	fmt.Fprintln(c.Err, "flags:")
	fs.PrintDefaults()
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func subcommandFlags(c *CLI, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("verifolio "+name, flag.ContinueOnError)
	fs.SetOutput(c.Err)
	return fs
}
