// Package stream provides the resumable recognition session and its
// supervisor. A session binds the audio source to one bounded-duration
// recognition exchange; the supervisor replaces expired or failed sessions
// so the relay keeps listening indefinitely without losing audio across
// session boundaries.
package stream
