// Package core provides the fundamental types and interfaces for draftflow.
//
// This package contains:
//   - Job, Draft, Source, Entity, Run and audit models with GORM annotations
//   - The job status transition table
//   - Storage interface defining the persistence contract
//   - Event types for lifecycle monitoring
//   - Coded errors returned to workflow callers
//
// Most users should import the root package github.com/mpislabs/draftflow
// instead of this package directly.
package core
