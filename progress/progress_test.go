package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledBarCounts(t *testing.T) {
	b := New(false)
	b.Started(10)
	b.Flushed(4)
	b.Flushed(6)
	b.Finished()

	assert.Equal(t, 10, b.Done())
	assert.Nil(t, b.pb)
}

func TestEnabledBarWithNothingToDo(t *testing.T) {
	b := New(true)
	b.Started(0)
	b.Flushed(0)
	b.Finished()

	assert.Nil(t, b.pb)
	assert.Zero(t, b.Done())
}
