/*
Package api exposes the agent's health and introspection endpoints.

Two servers run side by side:

	┌────────────── HTTP (HealthServer) ──────────────┐
	│  GET /health   liveness plus component health   │
	│  GET /ready    every publisher running, store   │
	│                reachable, critical components   │
	│  GET /events   publisher status, as JSON        │
	│  GET /metrics  Prometheus exposition            │
	└──────────────────────────────────────────────────┘

	┌────────────── gRPC (Server) ─────────────────────┐
	│  grpc.health.v1.Health                           │
	│    service ""         whole agent                │
	│    service "<name>"   one publisher              │
	│  interceptors: LoggingInterceptor,               │
	│                ReadOnlyInterceptor               │
	└──────────────────────────────────────────────────┘

The gRPC health service is refreshed from the bus every
DefaultSyncInterval. A publisher is SERVING while its loop is in the
running state and NOT_SERVING otherwise; the agent as a whole is SERVING
only when every publisher is.

# Usage

	hs := api.NewHealthServer(bus, store)
	go func() {
		if err := hs.Start(":9090"); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger.Error().Err(err).Msg("Health server failed")
		}
	}()
	defer hs.Stop(5 * time.Second)

	gs := api.NewServer(bus)
	go gs.Start(":9091")
	defer gs.Stop()

Any Kubernetes-style probe can use /health for liveness and /ready for
readiness. grpc_health_probe works against the gRPC port.
*/
package api
