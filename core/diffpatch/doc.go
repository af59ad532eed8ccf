// Package diffpatch is a generic three-way reconciliation primitive for
// ordered token sequences, built on diff-match-patch.
package diffpatch
