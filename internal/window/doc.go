// Package window implements a Redis-backed sliding-window failure counter.
//
// Failed attempts are recorded in sorted sets scored by timestamp, keyed
// independently by caller origin and by targeted principal. Only entries
// newer than now minus the window duration count toward the threshold.
// Expired entries are pruned opportunistically on each check, so no
// background sweeper is needed.
package window
