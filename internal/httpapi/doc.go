// Package httpapi serves the synchronized state over HTTP: health, stock
// projections, marketplace tables and the live trading toggle.
//
// Reads are served from published snapshots and never block the event
// dispatcher. Stock mutations are forwarded to the backend as commands; their
// effect shows up once the backend emits the matching update event.
package httpapi
