// Package shutdown coordinates graceful process termination.
//
// A Handler collects cleanup hooks while the process starts up and runs
// them in reverse registration order once SIGINT or SIGTERM arrives (or
// Trigger is called), bounded by a single timeout. The server binary
// registers the HTTP listener, the engine, and the storage tiers so
// teardown mirrors startup.
package shutdown
