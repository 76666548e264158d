// Package channel provides the source adapters used by ingestion: public web
// pages, video transcripts and Drive documents.
//
// Adapters return raw text. Normalization, hashing and deduplication happen
// in package ingest.
package channel
