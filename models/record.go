// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"encoding/json"
	"time"
)

// EntityKind identifies the kind of business entity a [Record] holds.
// Every kind is stored in its own [Collection].
type EntityKind string

const (
	// Product is a catalog item (name, price, stock, ...).
	Product EntityKind = "product"

	// Customer is a buyer profile registered at the point of sale.
	Customer EntityKind = "customer"

	// Transaction is a completed or pending sale. Transactions are time
	// ordered and carry [Record.OccurredAt].
	Transaction EntityKind = "transaction"
)

// EntityKinds lists every supported entity kind in a stable order.
var EntityKinds = []EntityKind{Product, Customer, Transaction}

// Valid reports whether k is one of the supported entity kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case Product, Customer, Transaction:
		return true
	}
	return false
}

// Collection returns the collection the entity kind is stored in.
func (k EntityKind) Collection() Collection {
	switch k {
	case Product:
		return CollectionProducts
	case Customer:
		return CollectionCustomers
	case Transaction:
		return CollectionTransactions
	}
	return ""
}

// TimeOrdered reports whether records of this kind have a timestamp index.
func (k EntityKind) TimeOrdered() bool {
	return k == Transaction
}

// Collection is a named partition of the local store.
type Collection string

const (
	CollectionProducts     Collection = "products"
	CollectionCustomers    Collection = "customers"
	CollectionTransactions Collection = "transactions"

	// CollectionOutbox names the mutation outbox together with its conflict
	// and failed lists.
	CollectionOutbox Collection = "outbox"
)

// AllCollections lists every collection, record collections first.
var AllCollections = []Collection{
	CollectionProducts,
	CollectionCustomers,
	CollectionTransactions,
	CollectionOutbox,
}

// Record is a single cached entity. Payload is opaque to the cache and is
// owned by the caller's business logic.
type Record struct {
	// ID is the caller-assigned unique identifier within the collection.
	ID string `json:"id"`

	// TenantID is the owning business scope.
	TenantID string `json:"tenant_id"`

	// Payload is the entity body as a JSON object.
	Payload json.RawMessage `json:"payload"`

	// Version is the server-assigned revision. Zero until the remote
	// confirms the record.
	Version int64 `json:"version,omitempty"`

	// OccurredAt is the business timestamp of time-ordered entities.
	OccurredAt *time.Time `json:"occurred_at,omitempty"`

	// UpdatedAt is the last time the record was written, locally or by the
	// server.
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of r so callers never share the store's memory.
func (r Record) Clone() Record {
	out := r
	if r.Payload != nil {
		out.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	if r.OccurredAt != nil {
		t := *r.OccurredAt
		out.OccurredAt = &t
	}
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

// ReadOrder selects how records of a collection are listed.
type ReadOrder int

const (
	// InsertionOrder lists records in the order they were first stored.
	InsertionOrder ReadOrder = iota

	// ChronologicalOrder lists records by OccurredAt ascending. Only valid
	// for time-ordered kinds.
	ChronologicalOrder
)
