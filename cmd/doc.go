// Package cmd implements the command-line interface of dDoc.
//
// The package is organized into several subpackages:
//
//   - transcode: encode (JSON/msgpack to the binary format) and decode
//   - bench: the update benchmark running the update coordinator
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See ddoc -help for a list of all commands.
package cmd
