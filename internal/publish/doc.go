// Package publish broadcasts interpreted command messages to websocket
// subscribers. The hub is fire-and-forget: it never blocks the interpreter,
// never buffers for absent subscribers, and drops messages for subscribers
// that cannot keep up. It also serves the health, stats and Prometheus
// metrics endpoints.
package publish
