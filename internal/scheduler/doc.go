// Package scheduler drives the periodic backup and index lanes.
//
// Each lane runs on its own goroutine, sweeping the configured filesystems
// and running the lane's engine operation whenever a filesystem comes due.
// Failures are logged and recorded in run history without stopping the lane.
// Manual triggers from the IPC surface queue work onto the same lanes so
// scheduled and requested runs never race each other for one filesystem.
package scheduler
