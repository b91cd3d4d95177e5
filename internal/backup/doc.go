// Package backup implements the snapshot backup engine. It drives ZFS to
// maintain a chain of incremental snapshots per filesystem and backup id,
// ships unstored snapshots to a remote, publishes time-bucketed index
// documents, and restores chains onto fresh datasets.
//
// Engine state lives on the snapshots themselves: every backup snapshot
// carries a backer:version property identifying the on-disk format and a
// backer:state property holding JSON metadata, the stored flag, and the
// published index paths. The engine therefore needs no local database to
// resume an interrupted chain.
package backup
