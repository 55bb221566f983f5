package tracer

import (
	"sort"
	"strings"

	"github.com/orhun/tracexec/internal/event"
)

// envMap folds "KEY=VALUE" entries into a map. Later duplicates win, matching
// how libc getenv resolves them.
func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	return m
}

// diffEnv compares an environment baseline against the envp passed to an exec.
// The comparison is order-insensitive; a key counts as changed only when it is
// present on both sides with different values.
func diffEnv(baseline, current []string) event.EnvDiff {
	old := envMap(baseline)
	cur := envMap(current)

	diff := event.EnvDiff{
		Added:   make(map[string]string),
		Changed: make(map[string]string),
	}
	for k, v := range cur {
		oldV, ok := old[k]
		switch {
		case !ok:
			diff.Added[k] = v
		case oldV != v:
			diff.Changed[k] = v
		}
	}
	for k := range old {
		if _, ok := cur[k]; !ok {
			diff.Removed = append(diff.Removed, k)
		}
	}
	sort.Strings(diff.Removed)
	return diff
}

// diffFDs compares descriptor tables before and after an exec boundary.
func diffFDs(pre, post []event.FD) event.FDDiff {
	preSet := make(map[int]bool, len(pre))
	for _, fd := range pre {
		preSet[fd.Num] = true
	}
	postSet := make(map[int]bool, len(post))
	for _, fd := range post {
		postSet[fd.Num] = true
	}

	var diff event.FDDiff
	for num := range preSet {
		if postSet[num] {
			diff.Kept = append(diff.Kept, num)
		} else {
			diff.Closed = append(diff.Closed, num)
		}
	}
	for num := range postSet {
		if !preSet[num] {
			diff.Opened = append(diff.Opened, num)
		}
	}
	sort.Ints(diff.Closed)
	sort.Ints(diff.Kept)
	sort.Ints(diff.Opened)
	return diff
}

// survivingFDs applies POSIX exec semantics to a pre-exec descriptor table:
// close-on-exec descriptors are dropped, the rest persist. Used as the
// post-exec baseline when the post-exec table cannot be read.
func survivingFDs(pre []event.FD) []event.FD {
	surviving := make([]event.FD, 0, len(pre))
	for _, fd := range pre {
		if !fd.CloseOnExec {
			surviving = append(surviving, fd)
		}
	}
	return surviving
}
