// Package revert orchestrates the revert pipeline: download the target
// change sets, reconstruct their element histories, invert the edits,
// reconcile parents, and submit or export the result.
package revert
