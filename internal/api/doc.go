// Package api hosts the HTTP server, middleware, and route handlers for the
// federating query gateway. Notable routes:
//   - GET /healthz /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /occs/list.<fmt> and /occs/single.<fmt> for the composite
//     occurrence queries, fmt in {json, csv, tsv, txt}.
//   - GET /v1/vocab/{vocab} and /v1/rulesets for the auxiliary
//     vocabulary/output-block read endpoints.
package api
