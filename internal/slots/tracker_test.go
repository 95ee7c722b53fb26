package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCollectsUntilRequiredFilled(t *testing.T) {
	tr := NewTracker()
	require.Equal(t, StateCollecting, tr.State())

	res := tr.Update(Record{Recipient: "Sam"})
	assert.Equal(t, StateCollecting, res.State)
	assert.False(t, res.ReadyToGenerate)
	assert.Equal(t, questions[SlotPurpose], res.NextQuestion)
	assert.Equal(t, []string{SlotPurpose, SlotContext, SlotTone}, res.Missing)

	res = tr.Update(Record{Purpose: "follow-up"})
	assert.Equal(t, questions[SlotContext], res.NextQuestion)

	res = tr.Update(Record{Context: "interview on Monday"})
	assert.Equal(t, questions[SlotTone], res.NextQuestion)
	assert.False(t, res.ReadyToGenerate)

	res = tr.Update(Record{Tone: "formal"})
	assert.Equal(t, StateReady, res.State)
	assert.True(t, res.ReadyToGenerate)
	assert.Empty(t, res.NextQuestion)
	assert.Empty(t, res.Missing)
	assert.Equal(t, "Sam", res.Record.Recipient)
}

func TestTrackerReadyRequiresPurpose(t *testing.T) {
	tr := NewTracker()
	res := tr.Update(Record{Context: "c", Tone: "t", Industry: "finance", Deadline: "Friday"})
	assert.False(t, res.ReadyToGenerate)
	assert.Equal(t, StateCollecting, res.State)
	assert.Equal(t, []string{SlotPurpose}, res.Missing)
}

func TestTrackerBlankValuesDoNotOverwrite(t *testing.T) {
	tr := NewTracker()
	tr.Update(Record{Purpose: "apology"})
	res := tr.Update(Record{Purpose: "   "})
	assert.Equal(t, "apology", res.Record.Purpose)
}

func TestMarkGenerated(t *testing.T) {
	tr := NewTracker()
	require.ErrorIs(t, tr.MarkGenerated(), ErrNotReady)

	tr.Update(Record{Purpose: "p", Context: "c", Tone: "t"})
	require.NoError(t, tr.MarkGenerated())
	assert.Equal(t, StateGenerated, tr.State())
	require.NoError(t, tr.MarkGenerated())

	tr.Update(Record{Purpose: "p"})
	assert.Equal(t, StateGenerated, tr.State(), "unchanged values keep the generated state")

	tr.Update(Record{Tone: "friendly"})
	assert.Equal(t, StateReady, tr.State(), "a changed slot reopens the record")
}

func TestMissingMessage(t *testing.T) {
	assert.Equal(t, "Missing required information: context, tone.", MissingMessage([]string{SlotContext, SlotTone}))
}
