// Package dispatch runs the side effects of fired triggers: opening the
// reminder URL in a browser and optionally playing a sound. Work happens on
// a rate-limited worker pool behind a bounded queue, and each attempt's
// outcome is appended to the trigger history once it is known.
package dispatch
