// Package core provides the business logic for releasing blanket sales orders.
//
// This package sits between the transport layer and the pure release
// ledger in package release. It can be used by web handlers, CLI tools, or
// tests without modification.
//
// # Release Flow
//
// [Service.Release] runs one release action:
//
//  1. Acquire a slot from the [ReleaseLimiter]
//  2. Take the per-order lock
//  3. Load the order, validate the batch, apply it to a copy
//  4. Resolve every line's unit to a sales order code
//  5. Create the child sales order, save the blanket order, append to the release log
//
// Steps 3 to 5 share one store transaction when the store supports it, so a
// failure at any point leaves the order as it was.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - REL001-REL009: Release errors (validation, stale lines, busy)
//   - DB001-DB008: Database errors
//   - REQ001-REQ003: Request errors (cancelled, timeout, malformed)
//
// # Views
//
// [Service.ReleaseForm] and [Service.Contract] shape an order for the
// release screen and the contract document. Rendering happens elsewhere.
package core
