// Package security provides validation, sanitization, and limits for draftflow.
//
// This package includes:
//   - Input validation for target names, source references and edit lists
//   - Failure reason sanitization to prevent credential leakage
//   - Clamping functions to enforce safe limits on retries and concurrency
package security
