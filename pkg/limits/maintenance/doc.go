// Package maintenance runs periodic housekeeping for the limits registry.
//
// Two jobs are scheduled with cron expressions:
//
//   - sweep: drop keys whose windows are empty, so the gate's key map does
//     not grow with every tenant ever seen
//   - cleanup: delete journal events older than the retention period
//
// Either job may be disabled by leaving its schedule empty.
package maintenance
