package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingWindowEvictsOldestFirst(t *testing.T) {
	w := NewRingWindow(3)

	w.Add("a")
	w.Add("b")
	w.Add("c")
	require.Equal(t, 3, w.Len())

	w.Add("d")
	assert.Equal(t, 3, w.Len())
	assert.False(t, w.Contains("a"), "oldest id should be evicted")
	assert.True(t, w.Contains("b"))
	assert.True(t, w.Contains("d"))
}

func TestRingWindowDefaultCap(t *testing.T) {
	w := NewRingWindow(0)
	require.Equal(t, DefaultProcessedIDCap, w.Cap)

	for i := 0; i < DefaultProcessedIDCap+10; i++ {
		w.Add(fmt.Sprintf("id-%d", i))
	}
	assert.Equal(t, DefaultProcessedIDCap, w.Len())
	assert.False(t, w.Contains("id-0"))
	assert.True(t, w.Contains("id-10"))
}

func TestRingWindowCloneIsIndependent(t *testing.T) {
	w := NewRingWindow(3)
	w.Add("a")

	c := w.Clone()
	w.Add("b")

	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Contains("b"))
	assert.True(t, w.Contains("b"))

	var nilWindow *RingWindow
	assert.Nil(t, nilWindow.Clone())
}

func TestPrependActivityNewestFirstAndBounded(t *testing.T) {
	var log []EmailActivityEntry
	for i := 0; i < 5; i++ {
		log = PrependActivity(log, EmailActivityEntry{MessageID: fmt.Sprintf("m%d", i)}, 3)
	}

	require.Len(t, log, 3)
	assert.Equal(t, "m4", log[0].MessageID, "newest entry should be first")
	assert.Equal(t, "m2", log[2].MessageID, "oldest kept entry should be last")
}

func TestPrependMatchBounded(t *testing.T) {
	var log []MatchEntry
	for i := 0; i < 4; i++ {
		log = PrependMatch(log, MatchEntry{MessageID: fmt.Sprintf("m%d", i)}, 2)
	}
	require.Len(t, log, 2)
	assert.Equal(t, "m3", log[0].MessageID)
}

func TestEnabledRulesPreservesOrder(t *testing.T) {
	cfg := WatcherConfig{Rules: []Rule{
		{ID: "a", Enabled: true, Order: 0},
		{ID: "b", Enabled: false, Order: 1},
		{ID: "c", Enabled: true, Order: 2},
	}}

	enabled := cfg.EnabledRules()
	require.Len(t, enabled, 2)
	assert.Equal(t, "a", enabled[0].ID)
	assert.Equal(t, "c", enabled[1].ID)
}

func TestParseActionSpec(t *testing.T) {
	spec, err := ParseActionSpec("star", "")
	require.NoError(t, err)
	assert.Equal(t, ActionStar, spec.Kind)

	spec, err = ParseActionSpec("label", "Invoices")
	require.NoError(t, err)
	assert.Equal(t, ActionLabel, spec.Kind)
	assert.Equal(t, "Invoices", spec.Label)

	_, err = ParseActionSpec("label", "")
	assert.Error(t, err, "label without a name is invalid")

	_, err = ParseActionSpec("explode", "")
	var unknown *UnknownActionError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "explode", unknown.Name)
}

func TestIsValidCategory(t *testing.T) {
	assert.True(t, IsValidCategory(CategoryInvoice))
	assert.True(t, IsValidCategory(CategoryOther))
	assert.False(t, IsValidCategory("urgent"))
	assert.False(t, IsValidCategory(""))
}
