/*
Package monitoring provides Prometheus metrics for the host.

# Overview

Every Metrics value owns a private prometheus.Registry, so two hosts in one
process (or two tests) never collide on registration. The registry is exposed
through Handler for the /metrics route.

# Features

- HTTP request metrics by route template
- Package builds and loads, labelled by outcome and verification result
- Bridge commands: dispatched, settled by outcome, discarded responses, pending gauge
- Capability handler calls and latency
- WebSocket connections and messages

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "files", "read")
	// ... run the handler ...
	timer.Stop(monitoring.StatusSuccess)
*/
package monitoring
