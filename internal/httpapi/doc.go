// Package httpapi is the local control surface for the reminder daemon:
// configure, start, stop, status, history and heatmap over JSON, guarded by
// an optional token. It refuses to bind beyond loopback without one.
package httpapi
