// Package store persists event-stream pages as Turtle files.
//
// # Layout
//
// Pages live under a root directory as <folder>/[subdirs/]<page>.ttl. The
// optional subdirectory levels are computed from the page number alone by
// Layout, so every page is addressable without a directory scan.
//
// # Writes
//
//   - Serialize the Node to a temp file (".page-*.tmp") in the target directory
//   - fsync, close, rename over the page file
//   - On any failure the temp file is removed and the previous page is intact
//
// Readers therefore see either the old or the new page, never a partial one.
// Failed writes surface as errs.CodePartialWrite.
//
// # Content cache
//
// Page bytes are cached per path. WriteNode refreshes the entry it wrote and
// Remove drops it; Flush drops everything. The cache only reflects writes
// made through this Store, which is the single writer of its root.
package store
