// Package storage provides the GORM implementation of core.Storage.
//
// This package includes:
//   - GormStorage: guarded-update persistence for jobs, drafts, sources,
//     entities, runs and audit events on SQLite or PostgreSQL
//   - Open: dialect selection from a DSN
//   - Connection pool presets
//
// Every job mutation is a single UPDATE whose WHERE clause carries the
// expected status, draft number or lease owner. A zero row count is
// translated into a core error after re-reading the row.
package storage
