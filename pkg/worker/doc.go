// Package worker drives jobs from queued to awaiting approval.
//
// A worker leases the oldest job it can drive (queued, or collecting and
// processing jobs whose previous lease expired), collects its sources,
// generates draft #1 and heartbeats the lease meanwhile. Every step is a
// guarded transition, so a job failed or taken over elsewhere is simply
// abandoned.
package worker
