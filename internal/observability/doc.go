// Package observability holds the service's zerolog setup, its Prometheus
// collectors and the context plumbing for request and correlation ids.
//
// A request handler typically derives its logger with
//
//	logger := observability.FromContext(ctx, baseLogger)
//
// so that every line carries request_id and correlation_id. Other field
// names in use are component, source (a paper source tag), external_id
// (DOI or source-native id) and query.
//
// *Metrics satisfies papersources.RequestRecorder, search.Recorder and
// library.Recorder, and registers its collectors with the default
// Prometheus registry on creation.
package observability
