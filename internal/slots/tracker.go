// Package slots tracks the information gathered for an email and decides,
// deterministically, when enough is known to generate it.
package slots

import (
	"errors"
	"strings"
)

// ErrNotReady is returned when generation is attempted before every
// required slot is filled.
var ErrNotReady = errors.New("required slots are missing")

// State is the position of a record in the slot-filling machine.
type State string

const (
	StateCollecting State = "collecting"
	StateReady      State = "ready"
	StateGenerated  State = "generated"
)

// Slot names, in the order questions are asked.
const (
	SlotPurpose              = "purpose"
	SlotContext              = "context"
	SlotTone                 = "tone"
	SlotRecipient            = "recipient"
	SlotIndustry             = "industry"
	SlotDeadline             = "deadline"
	SlotSpecificRequirements = "specificRequirements"
)

// Required lists the slots that must be non-empty before generation.
var Required = []string{SlotPurpose, SlotContext, SlotTone}

var questions = map[string]string{
	SlotPurpose: "What is the main purpose of this email?",
	SlotContext: "What background should the email cover?",
	SlotTone:    "What tone would you like the email to have, for example formal or friendly?",
}

// Record holds the gathered slot values. Empty means unknown.
type Record struct {
	Purpose              string `json:"purpose,omitempty"`
	Recipient            string `json:"recipient,omitempty"`
	Tone                 string `json:"tone,omitempty"`
	Context              string `json:"context,omitempty"`
	Industry             string `json:"industry,omitempty"`
	Deadline             string `json:"deadline,omitempty"`
	SpecificRequirements string `json:"specificRequirements,omitempty"`
}

// Get returns a slot value by name.
func (r Record) Get(slot string) string {
	switch slot {
	case SlotPurpose:
		return r.Purpose
	case SlotRecipient:
		return r.Recipient
	case SlotTone:
		return r.Tone
	case SlotContext:
		return r.Context
	case SlotIndustry:
		return r.Industry
	case SlotDeadline:
		return r.Deadline
	case SlotSpecificRequirements:
		return r.SpecificRequirements
	}
	return ""
}

// Merge overlays the non-blank values of observed onto r.
func (r Record) Merge(observed Record) Record {
	pick := func(cur, next string) string {
		if v := strings.TrimSpace(next); v != "" {
			return v
		}
		return cur
	}
	return Record{
		Purpose:              pick(r.Purpose, observed.Purpose),
		Recipient:            pick(r.Recipient, observed.Recipient),
		Tone:                 pick(r.Tone, observed.Tone),
		Context:              pick(r.Context, observed.Context),
		Industry:             pick(r.Industry, observed.Industry),
		Deadline:             pick(r.Deadline, observed.Deadline),
		SpecificRequirements: pick(r.SpecificRequirements, observed.SpecificRequirements),
	}
}

// Missing returns the required slots that are still empty.
func (r Record) Missing() []string {
	var out []string
	for _, s := range Required {
		if strings.TrimSpace(r.Get(s)) == "" {
			out = append(out, s)
		}
	}
	return out
}

// Result is the outcome of one Update.
type Result struct {
	Record          Record   `json:"gatheredInfo"`
	State           State    `json:"state"`
	NextQuestion    string   `json:"nextQuestionNeeded,omitempty"`
	ReadyToGenerate bool     `json:"readyToGenerate"`
	Missing         []string `json:"missing,omitempty"`
}

// Tracker is the slot-filling machine for one session. It is not safe for
// concurrent use; the owning session serializes access.
type Tracker struct {
	record Record
	state  State
}

// NewTracker returns a tracker in the collecting state.
func NewTracker() *Tracker {
	return &Tracker{state: StateCollecting}
}

// Update merges newly observed values and recomputes the state. A generated
// record stays generated unless a slot value actually changed.
func (t *Tracker) Update(observed Record) Result {
	merged := t.record.Merge(observed)
	changed := merged != t.record
	t.record = merged

	if t.state != StateGenerated || changed {
		t.state = stateFor(merged)
	}
	return t.Result()
}

// MarkGenerated moves a ready record to generated.
func (t *Tracker) MarkGenerated() error {
	switch t.state {
	case StateReady, StateGenerated:
		t.state = StateGenerated
		return nil
	default:
		return ErrNotReady
	}
}

// State returns the current state.
func (t *Tracker) State() State { return t.state }

// Record returns the gathered values.
func (t *Tracker) Record() Record { return t.record }

// Result reports the current record, state and next question.
func (t *Tracker) Result() Result {
	missing := t.record.Missing()
	res := Result{
		Record:          t.record,
		State:           t.state,
		ReadyToGenerate: len(missing) == 0,
		Missing:         missing,
	}
	if len(missing) > 0 {
		res.NextQuestion = questions[missing[0]]
	}
	return res
}

// MissingMessage describes the slots that block generation.
func MissingMessage(missing []string) string {
	return "Missing required information: " + strings.Join(missing, ", ") + "."
}

func stateFor(r Record) State {
	if len(r.Missing()) == 0 {
		return StateReady
	}
	return StateCollecting
}
