// Package task tracks code generation jobs and schedules them onto the pipeline.
// A Store holds task records in memory; a Scheduler accepts submissions into a
// FIFO queue and admits a bounded number of them into execution at a time,
// handing each admitted task's write access to a single worker via a Handle.
package task
