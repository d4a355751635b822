// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /health for dependency-aware health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /grants and /grants/{id} for the stored opportunity data,
//     with ?format=html rendering a dashboard table.
package api
