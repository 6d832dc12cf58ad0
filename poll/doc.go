// Package poll supervises the refetch fallback used while the realtime
// channel is down.
//
// A Supervisor observes transport status. When the channel reports
// disconnected or error it arms a periodic refresh; when the channel
// reconnects it disarms the refresh and runs a single catch-up refresh. At
// most one refresh runs at a time: a tick that finds the previous refresh
// still running is skipped.
package poll
