// Package audit records role changes.
//
// Every successful role mutation produces one RoleChangeEvent. Sinks accept
// events; DBSink and MemorySink can also list them back through Reader.
// MultiSink fans out to several sinks, typically the database and the
// structured log:
//
//	dbSink, _ := audit.NewDBSink(db)
//	sink := audit.NewMultiSink(dbSink, audit.NewLogSink(logger))
//
// Event IDs are ULIDs, so ordering by ID is ordering by time.
package audit
