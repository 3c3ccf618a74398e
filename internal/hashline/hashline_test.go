package hashline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIsStableAndShort(t *testing.T) {
	h := Hash("hello")
	assert.Len(t, h, HashLen)
	assert.Equal(t, h, Hash("hello"))
	assert.NotEqual(t, h, Hash("hello "))
}

func TestTagLinesNumbersFromStart(t *testing.T) {
	tagged := TagLines("a\nb\nc", 10)
	require.Len(t, tagged, 3)
	assert.Equal(t, 10, tagged[0].Num)
	assert.Equal(t, 12, tagged[2].Num)
	assert.Equal(t, "b", tagged[1].Content)
	assert.Equal(t, Hash("b"), tagged[1].Hash)
}

func TestTagLinesClampsStart(t *testing.T) {
	tagged := TagLines("only", 0)
	require.Len(t, tagged, 1)
	assert.Equal(t, 1, tagged[0].Num)
}

func TestFormatTaggedWireForm(t *testing.T) {
	out := FormatTagged(TagLines("x\ny", 1))
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1:"+Hash("x")+"|x", lines[0])
	assert.Equal(t, "2:"+Hash("y")+"|y", lines[1])
}

func TestCheckAnchor(t *testing.T) {
	lines := []string{"alpha", "beta"}

	assert.NoError(t, CheckAnchor(lines, 1, Hash("alpha")))
	assert.NoError(t, CheckAnchor(lines, 2, ""), "empty hash skips the check")

	err := CheckAnchor(lines, 2, Hash("gamma"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "changed since it was read")

	assert.Error(t, CheckAnchor(lines, 3, Hash("x")))
	assert.Error(t, CheckAnchor(lines, 0, Hash("x")))
}
