package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// exitError ends the process with code after the command has already
// reported what went wrong.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// NewRootCommand builds the turq command tree. Running the root command
// starts the mock server and the editor.
func NewRootCommand() *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "turq",
		Short: "turq is a mock HTTP server with live-editable rules",
		Long: `turq answers every HTTP request according to a small rule script.

The script can be replaced at any time through the editor, a browser page
served on its own port, or by editing the rules file with --watch. A script
that does not compile is rejected and the previous one stays active.

Settings are read from flags, TURQ_* environment variables and a YAML
config file (--config, or .turqrc.yaml in the working directory), in that
order of precedence.`,
		Example: `  # Serve the default rules (404 for everything)
  turq

  # Serve a rules file and reload it when it changes
  turq -r rules.turq --watch

  # Check a rules file without starting anything
  turq check rules.turq`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true, // reported by Execute
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}

	registerServeFlags(cmd, f)
	cmd.AddCommand(newCheckCommand(), newVersionCommand())
	return cmd
}

// Execute runs the command tree with args and returns the process exit
// code. Errors are printed to stderr as "turq: error: <msg>".
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "turq: error: %s\n", err)
		return 1
	}
	return 0
}

// Main runs turq with the process arguments and returns the exit code.
func Main() int {
	return Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}
