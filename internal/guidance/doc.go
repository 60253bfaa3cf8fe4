// Package guidance wires the landing pipeline together: producer goroutines
// publish the newest vision sample and telemetry snapshot into latest-value
// cells, and the Orchestrator consumes them at a fixed rate, running the
// filter, PID bank and state machines and issuing at most one flight command
// per tick.
package guidance
