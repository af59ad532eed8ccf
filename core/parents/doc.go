// Package parents keeps planned element deletions consistent with the
// live database: no deletion may leave behind a way or relation that
// still references the deleted element.
package parents
