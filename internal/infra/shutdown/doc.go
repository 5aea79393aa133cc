// Package shutdown coordinates process teardown.
//
// Components register named hooks as they start. Wait blocks until SIGINT,
// SIGTERM or Trigger, then runs the hooks newest first under one shared
// deadline, so the HTTP listener stops before the engine that serves it
// takes its final snapshot.
package shutdown
