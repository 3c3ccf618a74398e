package permission

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsWhenNoRuleMatches(t *testing.T) {
	e := NewEngine(nil)
	assert.Equal(t, Allow, e.Decide("read", "read"))
	assert.Equal(t, Ask, e.Decide("edit", "write"))
	assert.Equal(t, Ask, e.Decide("bash", "bash"))
	assert.Equal(t, Ask, e.Decide("mcp", "mcp.foo.bar"))
}

func TestLastMatchingRuleWins(t *testing.T) {
	e := NewEngine([]Rule{
		{Match: "edit", Decision: Deny},
		{Match: "edit", Decision: Allow},
	})
	assert.Equal(t, Allow, e.Decide("edit", "write"))
}

func TestToolGlobMatchesNameOnly(t *testing.T) {
	e := NewEngine([]Rule{
		{Match: "tool:bash", Decision: Deny},
	})
	assert.Equal(t, Deny, e.Decide("bash", "bash"))
	// A bare "bash" class should not match tool:bash's name-only glob against
	// a different tool.
	assert.Equal(t, Ask, e.Decide("bash", "other"))
}

func TestBareGlobMatchesClassOrToolName(t *testing.T) {
	e := NewEngine([]Rule{
		{Match: "mcp.*", Decision: Deny},
	})
	assert.Equal(t, Deny, e.Decide("mcp", "mcp.github.search"))
	assert.Equal(t, Ask, e.Decide("mcp", "other_tool"))
}

func TestPermissionMonotonicityUnderDenyRule(t *testing.T) {
	before := NewEngine(nil)
	decisionBefore := before.Decide("edit", "write")

	after := NewEngine([]Rule{{Match: "edit", Decision: Deny}})
	decisionAfter := after.Decide("edit", "write")

	if decisionBefore == Allow {
		assert.NotEqual(t, Allow, decisionAfter)
	}
}

type fakeAsker struct{ approve bool }

func (f fakeAsker) Ask(class, tool, detail string) bool { return f.approve }

func TestGateAutoApproveSkipsAsker(t *testing.T) {
	g := NewGate(NewEngine(nil), true, fakeAsker{approve: false})
	assert.True(t, g.Check("edit", "write", "writes a.txt"))
}

func TestGateAsksWhenNotAutoApproved(t *testing.T) {
	g := NewGate(NewEngine(nil), false, fakeAsker{approve: true})
	assert.True(t, g.Check("edit", "write", "writes a.txt"))

	g2 := NewGate(NewEngine(nil), false, fakeAsker{approve: false})
	assert.False(t, g2.Check("edit", "write", "writes a.txt"))
}

func TestGateCLIFlagsLayerAfterConfig(t *testing.T) {
	g := NewGate(NewEngine([]Rule{{Match: "edit", Decision: Deny}}), false, nil)
	g.ApplyCLIFlags(false, true, false)
	assert.True(t, g.Check("edit", "write", "x"))
}

func TestGateNoBashDeniesEvenWithYes(t *testing.T) {
	g := NewGate(NewEngine(nil), false, nil)
	g.ApplyCLIFlags(true, false, true)
	assert.False(t, g.Check("bash", "bash", "rm -rf /"))
}

func TestStdioAskerParsesYes(t *testing.T) {
	a := StdioAsker{In: strings.NewReader("y\n"), Out: new(strings.Builder)}
	assert.True(t, a.Ask("edit", "write", "x"))
}
