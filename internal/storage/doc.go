// Package storage is the weather archive's storage engine. It persists
// geo-located measurements in two parallel backends behind one Store
// facade:
//
//   - a partitioned binary flat-file archive, append-only, laid out as
//     {activeDir}/{lat}-{long}/{year}/{MMDD}.bin with fixed 40-byte
//     little-endian records (packages record, partition, archive);
//   - a DuckDB relational store loaded through a staged, deduplicating
//     merge-upsert (package relational).
//
// The backends are independent: a caller-supplied flag selects which one
// an ingestion or search request touches. They also age out data
// differently. The relational store is the system of record for retention
// and soft-deletes rows by flag; the file archive moves whole partition
// files between the active and archived directory trees (package
// retention). Neither backend guarantees consistency with the other.
//
// Batch operations bound their concurrency with the parallelism advisor
// (package parallel), which scales worker counts down under memory
// pressure.
package storage
