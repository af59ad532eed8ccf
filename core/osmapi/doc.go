// Package osmapi is the client for the authoritative editing API: user
// details, change set download, capability limits, submission, and
// discussion comments.
package osmapi
