// Package command defines the tabvault-cli command tree on
// urfave/cli/v2.
//
//   - root.go: application, global flags, client construction
//   - session.go: session list/get/delete/export/import/restore
//   - system.go: server status and metrics
//   - config.go: server configuration show/init/validate
//
// Commands parse flags, call the server through the connection
// package, and render results through the output package. Results go
// to the app's Writer and progress bars to its ErrWriter, so piped
// output stays machine-readable.
package command
