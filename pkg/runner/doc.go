// Package runner executes external tools with a bounded combined output
// stream and an absolute wall-clock timeout. Processes are spawned with
// argument vectors, never through a shell, so no quoting or injection
// surface exists. On timeout the process receives SIGTERM and, after a
// grace period, SIGKILL.
package runner
