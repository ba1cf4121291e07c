// Package cmd implements the dlock command-line interface. It provides a
// hierarchical command structure for running the servers and for talking
// to them as a client.
//
// The package is organized into several subpackages:
//
//   - apiserve: "dlock api", the REST api for editors
//   - serve: "dlock serve", the store server shared by api instances
//   - lock: "dlock lock", lock operations and a benchmark against a running api
//   - kv: "dlock store", raw document access and a benchmark against a store server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dlock -help for a list of all commands.
package cmd
