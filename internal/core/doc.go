// Package core provides the domain model of the field master-data pipeline.
//
// This package holds the types and helpers shared by every stage, independent
// of storage and transport. It can be used by the pipeline loops, the web
// layer, or tests without modification.
//
// # Lifecycle
//
// Every ingested file is a [FileRecord] that moves through [FileStatus] values:
//
//	PICKED -> BRONZE_PROCESSING -> BRONZE_PROCESSED -> SILVER_PROCESSING -> SILVER_PROCESSED
//
// ERROR is reachable from any non-terminal state and is absorbing. Use
// [FileStatus.CanTransition] before persisting a change.
//
// # Schemas and Findings
//
// Zone tables are described by [TableSchema], an ordered list of
// [ColumnDescriptor]. Only reportable columns take part in business rules.
// Rule violations are [Finding] values; their severity comes from the
// [FindingCodes] catalog.
//
// # Reading Files
//
// [ReadBatch] parses a delimited file into a [Batch] after BOM stripping and
// UTF-8 sanitization ([WrapForStreaming]). Cells are cleaned with [CleanCell]
// and converted with [Coerce] or the ToPg* helpers.
//
// # Error Handling
//
// Technical errors shown to curators are mapped to user-friendly messages
// with [MapError]:
//
//   - DB001-DB004: Database errors
//   - FILE001-FILE003: File errors
//   - REF001-REF002: Reference-data service errors
//   - SCH001: Schema registry errors
//   - PIPE001-PIPE002: Lifecycle errors
package core
