package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()

	assert.True(t, rules.Emit(CategoryWarning))
	assert.True(t, rules.Emit(CategoryError))
	assert.True(t, rules.Emit(CategoryExecSuccess))
	assert.True(t, rules.Emit(CategoryExecFailure))
	assert.True(t, rules.Emit(CategoryTraceeExit))
	assert.False(t, rules.Emit(CategoryOtherSignal))
}

func TestNewRulesInclude(t *testing.T) {
	rules := NewRules(false, []Category{CategoryOtherSignal}, nil)

	assert.True(t, rules.Emit(CategoryOtherSignal))
	assert.True(t, rules.Emit(CategoryExecSuccess))
}

func TestNewRulesExclude(t *testing.T) {
	rules := NewRules(false, nil, []Category{CategoryExecSuccess, CategoryTraceeExit})

	assert.False(t, rules.Emit(CategoryExecSuccess))
	assert.False(t, rules.Emit(CategoryTraceeExit))
	assert.True(t, rules.Emit(CategoryExecFailure))
}

func TestNewRulesExcludeWinsOverInclude(t *testing.T) {
	rules := NewRules(false, []Category{CategoryOtherSignal}, []Category{CategoryOtherSignal})

	assert.False(t, rules.Emit(CategoryOtherSignal))
}

func TestNewRulesShowAll(t *testing.T) {
	rules := NewRules(true, nil, nil)

	for _, c := range Categories {
		assert.True(t, rules.Emit(c), "category %s should be visible with show-all", c)
	}

	// Exclude still applies after the universal set.
	rules = NewRules(true, nil, []Category{CategoryOtherSignal})
	assert.False(t, rules.Emit(CategoryOtherSignal))
	assert.True(t, rules.Emit(CategoryWarning))
}

func TestRulesSuccessOnly(t *testing.T) {
	rules := DefaultRules().SuccessOnly()

	assert.True(t, rules.Emit(CategoryExecSuccess))
	assert.False(t, rules.Emit(CategoryExecFailure))
	assert.True(t, rules.Emit(CategoryWarning))
}

func TestRulesOrderIndependent(t *testing.T) {
	rules := NewRules(false, []Category{CategoryOtherSignal}, []Category{CategoryError})

	// Evaluation must not depend on how many events were processed before.
	for i := 0; i < 100; i++ {
		assert.True(t, rules.Emit(CategoryExecSuccess))
		assert.True(t, rules.Emit(CategoryOtherSignal))
		assert.False(t, rules.Emit(CategoryError))
	}
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("exec-success")
	assert.True(t, ok)
	assert.Equal(t, CategoryExecSuccess, c)

	c, ok = ParseCategory("  Warning ")
	assert.True(t, ok)
	assert.Equal(t, CategoryWarning, c)

	_, ok = ParseCategory("bogus")
	assert.False(t, ok)
}
