package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldFilesystem is the standardized structured logging key for ZFS filesystem names.
	FieldFilesystem = "filesystem"
	// FieldSnapshot is the standardized structured logging key for snapshot names.
	FieldSnapshot = "snapshot"
	// FieldSeries is the standardized structured logging key for backup series identifiers.
	FieldSeries = "series"
	// FieldSequence is the standardized structured logging key for the position within a series.
	FieldSequence = "sequence"
	// FieldLane is the standardized structured logging key for scheduler lane names.
	FieldLane = "lane"
	// FieldRemote is the standardized structured logging key for remote store names.
	FieldRemote = "remote"
	// FieldState is the standardized structured logging key for lifecycle states.
	FieldState = "state"
	// FieldPID is the standardized structured logging key for process identifiers.
	FieldPID = "pid"
)
