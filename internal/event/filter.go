package event

// Rules decides which event categories reach consumers. It is built once at
// session startup and read-only afterwards; evaluation is deterministic and
// independent of event arrival order.
type Rules struct {
	visible map[Category]bool
}

// DefaultCategories is the baseline set: warnings, errors, execs and tracee
// exits are visible; signal-level noise is hidden.
var DefaultCategories = []Category{
	CategoryWarning,
	CategoryError,
	CategoryExecSuccess,
	CategoryExecFailure,
	CategoryTraceeExit,
}

// NewRules builds a rule set. showAll short-circuits to the universal set
// before include/exclude are applied: include adds to the base, exclude
// removes from it, and exclude wins when both name the same category.
func NewRules(showAll bool, include, exclude []Category) Rules {
	visible := make(map[Category]bool, len(Categories))
	base := DefaultCategories
	if showAll {
		base = Categories
	}
	for _, c := range base {
		visible[c] = true
	}
	for _, c := range include {
		visible[c] = true
	}
	for _, c := range exclude {
		delete(visible, c)
	}
	return Rules{visible: visible}
}

// DefaultRules returns the baseline rule set with no modifications.
func DefaultRules() Rules {
	return NewRules(false, nil, nil)
}

// SuccessOnly narrows the rule set to drop exec-failure events, mirroring the
// "successful execs only" flag.
func (r Rules) SuccessOnly() Rules {
	visible := make(map[Category]bool, len(r.visible))
	for c := range r.visible {
		visible[c] = true
	}
	delete(visible, CategoryExecFailure)
	return Rules{visible: visible}
}

// Emit reports whether events of the given category should be delivered.
func (r Rules) Emit(c Category) bool {
	return r.visible[c]
}
