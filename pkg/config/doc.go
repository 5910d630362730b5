// Package config holds turq's runtime settings and the code that loads
// them, plus loading and watching of the rules file.
//
// Settings come from several sources. Later sources override earlier ones:
//
//  1. Defaults (Default)
//  2. A YAML config file: the --config path, or .turqrc.yaml / .turqrc.yml
//     in the working directory
//  3. Environment variables (TURQ_BIND, TURQ_MOCK_PORT, ..., NO_COLOR)
//  4. Command-line flags, applied by the CLI
//
// Config.Sources records which source supplied each value.
package config
