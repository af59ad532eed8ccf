// Package invert computes the inversion of a reconstructed edit history.
//
// Given the merged, newest-first history of one or more target change sets,
// the Inverter runs a per-element state machine over (old, new, current):
// creations are tombstoned if still alive, modifications are reverted
// wholesale when untouched since or reconciled three-way when not, and
// deletions are restored unless the element was recreated afterwards.
//
// The advanced (three-way) path reverts tags, node positions, and ordered
// reference sequences independently, always leaving values that were
// changed by somebody else afterwards untouched. Ordered references fall
// back to a conservative partial revert when no safe patch exists, and the
// affected ids are surfaced as warnings.
package invert
