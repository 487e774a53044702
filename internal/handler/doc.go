// Package handler implements the local HTTP status surface of the client.
//
// It exposes Prometheus metrics, the outbox state (pending count, conflicts
// and failed mutations) and a manual sync trigger to operators on the point
// of sale machine. Request tracing, access logging and method checking are
// handled here before requests reach the service layer.
package handler
