// Package handlers contains HTTP building blocks shared by the API server.
//
// # Health Checks
//
// The HealthChecker interface allows registering multiple named health checks
// that are executed in parallel. A detailed check also returns values that are
// reported alongside its status:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//	checker.AddDetailedCheck("xp_ledger", xpAward.LedgerHealth)
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Printf("Health check failed: %s", status.Message)
//	}
//
// # Authentication
//
// APIKeyAuth accepts keys whose bcrypt hash was configured at startup.
// Plain keys are never stored:
//
//	auth, err := handlers.NewAPIKeyAuth("X-API-Key", cfg.HTTP.APIKeyHashes)
//	mux := handlers.ChainHandler(router, auth.Middleware)
package handlers
