package batchsize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSizerStartsAtMidpoint(t *testing.T) {
	s := NewSizer(10, 100, 5)
	assert.Equal(t, 55, s.Current())
}

func TestObserveIgnoresZeroInputs(t *testing.T) {
	s := NewSizer(10, 100, 5)
	start := s.Current()

	s.Observe(0, 2)
	assert.Equal(t, start, s.Current())

	s.Observe(50, 0)
	assert.Equal(t, start, s.Current())
}

func TestObserveGrowsSizeWhenBatchesFinishFasterThanTarget(t *testing.T) {
	s := NewSizer(10, 1000, 5)
	s.Observe(55, 1) // 55 rec/s, target 5s worth = 275, well above current

	assert.Greater(t, s.Current(), 55)
}

func TestObserveShrinksSizeWhenBatchesRunSlowerThanTarget(t *testing.T) {
	s := NewSizer(10, 1000, 5)
	s.Observe(55, 50) // 1.1 rec/s, target 5s worth = 5.5, well below current

	assert.Less(t, s.Current(), 55)
}

func TestObserveClampsToMinAndMax(t *testing.T) {
	s := NewSizer(10, 60, 5)
	for i := 0; i < 20; i++ {
		s.Observe(1000, 1) // push hard toward growth every round
	}
	assert.Equal(t, 60, s.Current())

	s2 := NewSizer(10, 60, 5)
	for i := 0; i < 20; i++ {
		s2.Observe(1, 1000) // push hard toward shrink every round
	}
	assert.Equal(t, 10, s2.Current())
}
