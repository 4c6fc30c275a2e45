// Package stock owns the canonical in-memory stock collections.
//
// Two books are kept, one for plain items and one for rivens. Every mutation
// (upsert, delete, bulk set, price append, threshold change) rebuilds the
// book's slice copy-on-write and recomputes every entry's Status and
// ListPrice with DeriveStatus before publishing the new slice, so readers
// always see a complete, internally consistent collection.
//
// Conventions:
//   - Prices are integer platinum.
//   - IDs are backend-assigned int64 values; zero is never a valid ID.
//   - Status in incoming payloads is ignored.
package stock
