// Package domain contains the core entities and value objects for possync.
//
// This package is the innermost layer of the application. It has no
// dependencies on infrastructure concerns (HTTP, SQLite, logging) and
// contains only the data model and its invariants.
//
// # Entities
//
//   - [Transaction]: a locally queued POS sale awaiting remote confirmation
//   - [Product]: a cached product snapshot for offline browsing
//   - [CartItem]: one line of the single in-progress cart
//   - [Status]: the derived, UI-facing sync status
//
// # Invariants
//
// A Transaction's ID never changes once assigned, and Synced moves from
// false to true exactly once. Nothing in this module deletes transactions.
package domain
