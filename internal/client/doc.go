// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package client implements the headless point-of-sale cache process.
//
// It wires the local store, the remote adapter, the sync services and the
// background workers into a single process lifecycle: startup refresh,
// background draining, and graceful shutdown.
package client
