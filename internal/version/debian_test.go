package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareBasic(t *testing.T) {
	assert.Equal(t, 0, Compare("1.0", "1.0"))
	assert.Equal(t, -1, sign(Compare("1.0", "1.1")))
	assert.Equal(t, 1, sign(Compare("1.1", "1.0")))
}

func TestCompareTilde(t *testing.T) {
	assert.True(t, Compare("1.0~beta1", "1.0") < 0)
	assert.True(t, Compare("1.0~~", "1.0~") < 0)
	assert.True(t, Compare("1.0~", "1.0") < 0)
}

func TestCompareEpoch(t *testing.T) {
	assert.True(t, Compare("1:1.0", "2.0") > 0)
	assert.True(t, Compare("0:1.0", "1.0") == 0)
}

func TestCompareRevision(t *testing.T) {
	assert.True(t, Compare("1.0-1", "1.0-2") < 0)
	assert.True(t, Compare("1.0-10", "1.0-9") > 0)
}

func TestCompareLeadingZeros(t *testing.T) {
	assert.Equal(t, 0, Compare("1.007", "1.7"))
}

func TestCompareKernelABIStyle(t *testing.T) {
	assert.True(t, Compare("5.4.0-42.46", "5.4.0-42.47") < 0)
	assert.True(t, Compare("5.4.0-42.46~18.04.1", "5.4.0-42.46") < 0)
	assert.True(t, Compare("5.4.0-43.47", "5.4.0-42.46") > 0)
}

func TestLessEqual(t *testing.T) {
	assert.True(t, LessEqual("5.4.0-42.46", "5.4.0-42.46"))
	assert.True(t, LessEqual("5.4.0-42.45", "5.4.0-42.46"))
	assert.False(t, LessEqual("5.4.0-42.47", "5.4.0-42.46"))
}

func sign(x int) int {
	if x < 0 {
		return -1
	}
	if x > 0 {
		return 1
	}
	return 0
}
