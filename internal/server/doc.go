// Package server runs the local HTTP status server of the client.
//
// The server is a [workers.Worker]: it is started and stopped together with
// the background sync job and shuts down gracefully.
package server
