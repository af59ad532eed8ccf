package revert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevertLimit(t *testing.T) {
	assert.Equal(t, 0, revertLimit(5, false))
	assert.Equal(t, 1, revertLimit(10, false))
	assert.Equal(t, 3, revertLimit(150, false))
	assert.Equal(t, 10, revertLimit(600, false))
	assert.Equal(t, 30, revertLimit(5000, false))
	assert.Equal(t, 50, revertLimit(0, true))
}

func TestMinEditsRequired(t *testing.T) {
	assert.EqualValues(t, 10, minEditsRequired(false))
	assert.EqualValues(t, 0, minEditsRequired(true))
}

func TestNextLimitIncrease(t *testing.T) {
	next, ok := nextLimitIncrease(150, false)
	assert.True(t, ok)
	assert.EqualValues(t, 500, next)

	_, ok = nextLimitIncrease(5000, false)
	assert.False(t, ok)

	_, ok = nextLimitIncrease(100, true)
	assert.False(t, ok)
}

func TestFilterDiscussionChangesets(t *testing.T) {
	ids := []int64{1, 2, 3}

	assert.Equal(t, ids, filterDiscussionChangesets(ids, "all"))
	assert.Equal(t, []int64{3}, filterDiscussionChangesets(ids, "newest"))
	assert.Equal(t, []int64{1}, filterDiscussionChangesets(ids, "oldest"))
	assert.Nil(t, filterDiscussionChangesets(ids, "everything"))
}

func TestDedupeSorted(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 9}, dedupeSorted([]int64{9, 1, 2, 1, 9}))
}
