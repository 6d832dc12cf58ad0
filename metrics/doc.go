// Package metrics exposes Prometheus collectors for the realtime client.
//
// A nil *Metrics is valid everywhere and records nothing, so components take
// one unconditionally:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	client, err := transport.New(transport.Options{URL: url, Metrics: m})
package metrics
