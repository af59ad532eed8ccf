// Package overpass reconstructs element histories from mirrored
// point-in-time-diff endpoints.
//
// For each timestamp partition of a target changeset it runs a bounded
// diff query scoped to the edited ids, verifies the mirror's data horizon
// and the completeness of the answer, optionally merges a caller-filtered
// query, and finally fetches the present-day state of the same ids. The
// per-partition request chain is strictly sequential because later calls
// depend on earlier results; mirrors are tried in order until one fully
// succeeds.
package overpass
