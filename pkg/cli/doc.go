// Package cli implements the turq command line.
//
// Running turq with no subcommand starts the mock server and the rules
// editor and serves until interrupted. Settings come from flags, TURQ_*
// environment variables, a YAML config file and defaults, in that order
// of precedence.
//
// Subcommands:
//   - check: compile rules files and report errors as file:line:column
//   - version: print build information
package cli
