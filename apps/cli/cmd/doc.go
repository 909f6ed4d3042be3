// Package cmd implements the hitfetch CLI commands using Cobra.
//
// Available commands:
//   - fetch: Send one request from flags or a request file
//   - bench: Repeat a request and report latency percentiles
//   - resolve: Resolve hostnames through the DNS cache
//   - validate: Check request files without sending them
//   - history: Inspect the local log of past exchanges
//   - init: Create a config file and an example request
//   - import: Convert curl commands and OpenAPI documents to request files
//   - version: Show version information
//
// Exit codes distinguish request failures, parse errors, configuration
// errors and network errors so scripts can branch on them.
package cmd
