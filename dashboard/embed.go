// Package dashboard provides the embedded web UI assets.
// The dist/ directory ships with a minimal status page; a richer frontend
// build can replace its contents before compiling.
package dashboard

import "embed"

// DistFS holds the embedded dashboard/dist files served by the REST API
// for all non-API routes.
//
//go:embed all:dist
var DistFS embed.FS
