// Package httpx provides the shared HTTP client used by the OSM and
// Overpass boundaries.
//
// Every outbound call carries a timeout and can be wrapped in a jittered
// exponential-backoff retry policy with a bounded total budget. Permanent
// (4xx-class) responses short-circuit the policy and are handed back to the
// caller for classification; transient transport errors and 5xx responses
// are retried transparently.
package httpx
