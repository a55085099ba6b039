// Package observability provides structured JSON logging and health checks.
//
// Create a logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("org_id", orgID).Info("trial created")
//
// Wire health probes:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	router.HandleFunc("/health", checker.Readiness)
//
// Prometheus metrics live in pkg/metrics.
package observability
