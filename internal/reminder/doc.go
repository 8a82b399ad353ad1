// Package reminder implements the progressive-interval session engine: an
// immediate first trigger, then waits of first/second/subsequent minutes
// between triggers, ending automatically once the total duration elapses.
//
// Engine owns the heartbeat and state machine. Service is the thread-safe
// control surface that adds settings persistence and trigger history on top.
// Persistence and trigger execution are behind the Store and Dispatcher
// interfaces so the engine itself stays free of I/O.
package reminder
