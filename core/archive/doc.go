// Package archive stores produced change documents in object storage.
//
// It wraps the MinIO Go client behind a small interface so archive
// interactions can be mocked in unit tests (see core/archive/mocks).
// Both AWS S3 and self-hosted MinIO instances are supported. Archival is
// optional and off by default.
package archive
