package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vfaronov/turq/pkg/config"
	"github.com/vfaronov/turq/pkg/rules"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Check rules files for errors",
		Long: `Compile each rules file and report errors as file:line:column: message.
Nothing is served. The exit status is 1 if any file has errors.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if msg := checkFile(path); msg != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), msg)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			if failed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

// checkFile returns a diagnostic for path, or "" if it compiles.
func checkFile(path string) string {
	text, err := config.LoadRules(path)
	if err != nil {
		return fmt.Sprintf("%s: %v", path, err)
	}
	if _, err := rules.Compile(text); err != nil {
		var compileErr *rules.CompileError
		if errors.As(err, &compileErr) && compileErr.Line > 0 {
			return fmt.Sprintf("%s:%d:%d: %s", path, compileErr.Line, compileErr.Column, compileErr.Message)
		}
		return fmt.Sprintf("%s: %v", path, err)
	}
	return ""
}
