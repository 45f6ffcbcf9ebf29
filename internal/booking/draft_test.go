package booking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeDraft() *Draft {
	d := NewDraft("60123456789")
	d.Merge(Partial{
		FieldCustomerName: "John",
		FieldPhone:        "012-345 6789",
		FieldOutlet:       "kd",
		FieldBookingDate:  "2024-06-01",
		FieldTimeslot:     "2pm",
	})
	return d
}

func TestStateDerivation(t *testing.T) {
	var nilDraft *Draft
	assert.Equal(t, StateIdle, nilDraft.State())
	assert.Equal(t, StateIdle, NewDraft("x").State())

	d := NewDraft("x")
	d.Merge(Partial{FieldOutlet: "puchong"})
	assert.Equal(t, StateCollecting, d.State())

	d = completeDraft()
	d.MarkConfirmationShown()
	assert.Equal(t, StateAwaitingConfirmation, d.State())

	d.MarkConfirmed("BKG1", time.Now())
	assert.Equal(t, StateConfirmed, d.State())

	d.AwaitingUpdateConfirmation = true
	assert.Equal(t, StateAwaitingUpdateConfirmation, d.State())
}

func TestMergeNormalisesAndTracksChanges(t *testing.T) {
	d := completeDraft()
	assert.Equal(t, "SOMA KD", d.Fields.Value(FieldOutlet))
	assert.Equal(t, "0123456789", d.Fields.Value(FieldPhone))
	assert.Equal(t, "14:00", d.Fields.Value(FieldTimeslot))
	assert.Equal(t, SourceUser, d.Fields.Get(FieldOutlet).Source)

	res := d.Merge(Partial{FieldTimeslot: "14:00", FieldPax: "3"})
	assert.Equal(t, []Field{FieldPax}, res.Changed, "repeating an existing value is not a change")
	assert.Empty(t, res.Invalid)
}

func TestMergeNeverOverwritesWithEmpty(t *testing.T) {
	d := completeDraft()
	res := d.Merge(Partial{FieldCustomerName: "", FieldOutlet: "  ", FieldPhone: "null"})
	assert.Empty(t, res.Changed)
	assert.Equal(t, "John", d.Fields.Value(FieldCustomerName))
	assert.Equal(t, "SOMA KD", d.Fields.Value(FieldOutlet))
	assert.Equal(t, "0123456789", d.Fields.Value(FieldPhone))
}

func TestMergeRejectsInvalidValues(t *testing.T) {
	d := NewDraft("x")
	res := d.Merge(Partial{FieldPax: "15", FieldSession: "45 min", FieldBookingDate: "someday", FieldOutlet: "cheras"})
	assert.Equal(t, []Field{FieldOutlet}, res.Changed)
	require.Len(t, res.Invalid, 3)
	assert.Contains(t, res.Invalid, FieldPax)
	assert.Contains(t, res.Invalid, FieldSession)
	assert.Contains(t, res.Invalid, FieldBookingDate)
	assert.False(t, d.Fields.Get(FieldPax).IsSet())
}

func TestApplyDefaultsOnlyWhenComplete(t *testing.T) {
	d := NewDraft("x")
	d.Merge(Partial{FieldOutlet: "kd"})
	assert.Nil(t, d.ApplyDefaults())
	assert.False(t, d.Fields.Get(FieldPax).IsSet())

	d = completeDraft()
	d.Merge(Partial{FieldSession: "2 hours"})
	filled := d.ApplyDefaults()
	assert.Equal(t, []Field{FieldPax, FieldTreatmentType, FieldUsingPackage}, filled)
	assert.Equal(t, Slot{Value: "1", Source: SourceDefault}, d.Fields.Get(FieldPax))
	assert.Equal(t, Slot{Value: "120", Source: SourceUser}, d.Fields.Get(FieldSession))
	assert.Equal(t, "select at outlet", d.Fields.Value(FieldTreatmentType))
	assert.Equal(t, "no", d.Fields.Value(FieldUsingPackage))

	before := d.Clone()
	assert.Nil(t, d.ApplyDefaults(), "applying defaults twice is a no-op")
	assert.Equal(t, before.Fields, d.Fields)
}

func TestUserValueReplacesDefault(t *testing.T) {
	d := completeDraft()
	d.ApplyDefaults()
	res := d.Merge(Partial{FieldPax: "2"})
	assert.Equal(t, []Field{FieldPax}, res.Changed)
	assert.Equal(t, Slot{Value: "2", Source: SourceUser}, d.Fields.Get(FieldPax))

	res = d.Merge(Partial{FieldSession: "90"})
	assert.Empty(t, res.Changed)
	assert.Equal(t, SourceUser, d.Fields.Get(FieldSession).Source, "restating the default claims it")
}

func TestMaterialChange(t *testing.T) {
	d := completeDraft()
	d.ApplyDefaults()
	assert.False(t, d.MateriallyChanged(), "nothing shown yet")

	d.MarkConfirmationShown()
	assert.False(t, d.MateriallyChanged())

	d.Merge(Partial{FieldCustomerName: "Johnny"})
	assert.False(t, d.MateriallyChanged(), "name is not material")

	d.Merge(Partial{FieldTimeslot: "3pm"})
	assert.True(t, d.MateriallyChanged())

	d.ResetConfirmation()
	assert.False(t, d.AwaitingConfirmation)
	assert.False(t, d.ConfirmationShown())
}

func TestDiff(t *testing.T) {
	d := completeDraft()
	changes, valid, invalid := d.Diff(Partial{FieldTimeslot: "3pm", FieldOutlet: "SOMA KD", FieldPax: "99"})
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Field: FieldTimeslot, From: "14:00", To: "15:00"}, changes[0])
	assert.Equal(t, Partial{FieldTimeslot: "15:00"}, valid)
	assert.Contains(t, invalid, FieldPax)
}

func TestMarkConfirmedAndClone(t *testing.T) {
	d := completeDraft()
	d.MarkConfirmationShown()
	d.PendingUpdateFields = Partial{FieldTimeslot: "15:00"}
	at := time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC)
	d.MarkConfirmed("BKG20240530100000", at)

	assert.True(t, d.Confirmed)
	assert.False(t, d.AwaitingConfirmation)
	assert.Nil(t, d.PendingUpdateFields)
	require.NotNil(t, d.ConfirmedAt)
	assert.True(t, d.ConfirmedAt.Equal(at))

	c := d.Clone()
	c.Fields.Outlet.Value = "SOMA PJ"
	c.ShownConfirmation[FieldOutlet] = "changed"
	assert.Equal(t, "SOMA KD", d.Fields.Value(FieldOutlet))
	assert.Equal(t, "SOMA KD", d.ShownConfirmation[FieldOutlet])
}

func TestDraftJSONRoundTripKeepsSources(t *testing.T) {
	d := completeDraft()
	d.ApplyDefaults()
	d.MarkConfirmationShown()

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded Draft
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, d.Fields, decoded.Fields)
	assert.Equal(t, SourceDefault, decoded.Fields.Get(FieldPax).Source)
	assert.Equal(t, StateAwaitingConfirmation, decoded.State())
}

func TestSummaryAndLabels(t *testing.T) {
	d := completeDraft()
	d.ApplyDefaults()
	summary := d.Summary()
	assert.Contains(t, summary, "Outlet: SOMA KD")
	assert.Contains(t, summary, "Preferred Date: Sat, 01 Jun 2024")
	assert.Contains(t, summary, "Preferred Time: 2:00 PM")
	assert.Contains(t, summary, "Duration: 90 minutes")

	assert.Equal(t, "Name, Outlet and Preferred Time", LabelList([]Field{FieldCustomerName, FieldOutlet, FieldTimeslot}))
	assert.Equal(t, "Outlet", LabelList([]Field{FieldOutlet}))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		field Field
		in    string
		want  string
	}{
		{FieldOutlet, "SOMA kota damansara", "SOMA KD"},
		{FieldOutlet, "Puchong outlet", "SOMA Puchong"},
		{FieldOutlet, "Bangsar South", "Bangsar South"},
		{FieldBookingDate, "1/6/2024", "2024-06-01"},
		{FieldBookingDate, "01-06-24", "2024-06-01"},
		{FieldSession, "1 hour", "60"},
		{FieldSession, "1.5 hours", "90"},
		{FieldPreferredMasseur, "female", "Female"},
		{FieldUsingPackage, "Y", "yes"},
		{FieldPhone, "+60 12-345 6789", "+60123456789"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.field, tt.in)
		require.NoError(t, err, "%s=%q", tt.field, tt.in)
		assert.Equal(t, tt.want, got, "%s=%q", tt.field, tt.in)
	}

	_, err := Normalize(FieldPhone, "12345")
	assert.Error(t, err)
	_, err = Normalize(FieldThirdPartyVoucher, "maybe")
	assert.Error(t, err)
}
