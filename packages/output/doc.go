// Package output renders exchanges for the terminal.
//
// Supported output formats:
//   - Console: human-readable colored output with a body preview
//   - JSON: one machine-readable document per exchange
//
// Both formatters implement Formatter.
package output
