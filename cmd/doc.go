// Package cmd provides the command-line interface for devreload.
//
// This package implements the CLI using the Cobra framework with Viper
// handling configuration.
//
// # Available Commands
//
//   - serve: Build once, then serve with live reload until interrupted
//   - build: Build the artifacts once and exit
//   - config: Print or validate the effective configuration
//   - version: Show version information
//
// # Command Examples
//
//	// Start the development server on another port
//	devreload serve --port 8080
//
//	// Render the entry with props from a file
//	devreload serve --props @props.json
//
//	// One-shot build for CI
//	devreload build --output public
//
// # Configuration
//
// Configuration sources, highest priority first:
//
//  1. Command-line flags (--port, --source, etc.)
//  2. Environment variables (DEVRELOAD_SERVER_PORT, DEVRELOAD_PATHS_SOURCE,
//     and every other key as DEVRELOAD_<SECTION>_<OPTION>)
//  3. The config file: --config, else DEVRELOAD_CONFIG_FILE, else
//     .devreload.yml in the working directory
//  4. Default values
//
// # Error Handling
//
// serve exits non-zero only for startup failures: invalid configuration,
// an output directory that cannot be written, or a port that cannot be
// bound. Compile and render errors while serving are logged and the last
// good artifacts stay live. build exits non-zero on any stage error.
package cmd
