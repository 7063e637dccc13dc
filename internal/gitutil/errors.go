package gitutil

import "errors"

// ErrMergeConflict is wrapped into the error returned by MergeNoFF when git
// reports a merge conflict, so callers can distinguish it from other
// failures per spec.md §4.3/§7 ("merge conflicts are reported, not
// resolved").
var ErrMergeConflict = errors.New("gitutil: merge conflict")
