// Package artifact holds the in-memory cache that the persister saves.
//
// A Cache is a string-keyed map whose mutations touch a persister.Cell.
// The Saver encodes the cache as canonical JSON, checksums it, and appends
// it to the snapshot log in package store. Restore loads the newest
// snapshot back into a Cache on startup.
//
// Keys are NFC normalized, so composed and decomposed spellings of the same
// text address the same entry.
package artifact
