package booking

import (
	"errors"
	"strconv"
	"time"
)

// Source records where a field value came from.
type Source string

const (
	SourceUser    Source = "user"
	SourceDefault Source = "default"
)

// Slot is one draft field value plus its provenance.
type Slot struct {
	Value  string `json:"value,omitempty"`
	Source Source `json:"source,omitempty"`
}

// IsSet reports whether the slot holds a value.
func (s Slot) IsSet() bool { return s.Value != "" }

// Fields is the closed set of booking draft fields.
type Fields struct {
	CustomerName      Slot `json:"customer_name"`
	Phone             Slot `json:"phone"`
	Outlet            Slot `json:"outlet"`
	BookingDate       Slot `json:"booking_date"`
	Timeslot          Slot `json:"timeslot"`
	Pax               Slot `json:"pax"`
	TreatmentType     Slot `json:"treatment_type"`
	Session           Slot `json:"session"`
	PreferredMasseur  Slot `json:"preferred_masseur"`
	ThirdPartyVoucher Slot `json:"third_party_voucher"`
	UsingPackage      Slot `json:"using_package"`
}

func (f *Fields) slot(name Field) *Slot {
	switch name {
	case FieldCustomerName:
		return &f.CustomerName
	case FieldPhone:
		return &f.Phone
	case FieldOutlet:
		return &f.Outlet
	case FieldBookingDate:
		return &f.BookingDate
	case FieldTimeslot:
		return &f.Timeslot
	case FieldPax:
		return &f.Pax
	case FieldTreatmentType:
		return &f.TreatmentType
	case FieldSession:
		return &f.Session
	case FieldPreferredMasseur:
		return &f.PreferredMasseur
	case FieldThirdPartyVoucher:
		return &f.ThirdPartyVoucher
	case FieldUsingPackage:
		return &f.UsingPackage
	}
	return nil
}

// Get returns the slot for name; unknown names yield an empty slot.
func (f Fields) Get(name Field) Slot {
	if s := f.slot(name); s != nil {
		return *s
	}
	return Slot{}
}

// Value is shorthand for Get(name).Value.
func (f Fields) Value(name Field) string {
	return f.Get(name).Value
}

// State is the workflow position of a conversation.
type State string

const (
	StateIdle                       State = "IDLE"
	StateCollecting                 State = "COLLECTING"
	StateAwaitingConfirmation       State = "AWAITING_CONFIRMATION"
	StateConfirmed                  State = "CONFIRMED"
	StateAwaitingUpdateConfirmation State = "AWAITING_UPDATE_CONFIRMATION"
)

// Draft is the single in-flight booking for one sender.
type Draft struct {
	Sender string `json:"sender"`
	Fields Fields `json:"fields"`

	AwaitingConfirmation       bool       `json:"awaiting_confirmation"`
	AwaitingUpdateConfirmation bool       `json:"awaiting_update_confirmation"`
	Confirmed                  bool       `json:"confirmed"`
	BookingReference           string     `json:"booking_reference,omitempty"`
	ConfirmedAt                *time.Time `json:"confirmed_at,omitempty"`
	PendingUpdateFields        Partial    `json:"pending_update_fields,omitempty"`

	// ShownConfirmation holds the material field values of the last
	// confirmation prompt sent to the customer.
	ShownConfirmation Partial `json:"shown_confirmation,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewDraft starts an empty draft for sender.
func NewDraft(sender string) *Draft {
	return &Draft{Sender: sender}
}

// State derives the workflow state from the draft flags. A nil draft is idle.
func (d *Draft) State() State {
	switch {
	case d == nil:
		return StateIdle
	case d.Confirmed && d.AwaitingUpdateConfirmation:
		return StateAwaitingUpdateConfirmation
	case d.Confirmed:
		return StateConfirmed
	case d.AwaitingConfirmation:
		return StateAwaitingConfirmation
	case d.HasAnyField():
		return StateCollecting
	}
	return StateIdle
}

// HasAnyField reports whether any field carries a value.
func (d *Draft) HasAnyField() bool {
	for _, f := range AllFields {
		if d.Fields.Get(f).IsSet() {
			return true
		}
	}
	return false
}

// Missing lists required fields without a value, in prompt order.
func (d *Draft) Missing() []Field {
	var out []Field
	for _, f := range RequiredFields {
		if !d.Fields.Get(f).IsSet() {
			out = append(out, f)
		}
	}
	return out
}

// Complete reports whether every required field is present.
func (d *Draft) Complete() bool {
	return len(d.Missing()) == 0
}

// Values flattens the draft into a Partial of the set fields.
func (d *Draft) Values() Partial {
	out := Partial{}
	for _, f := range AllFields {
		if v := d.Fields.Value(f); v != "" {
			out[f] = v
		}
	}
	return out
}

// MergeResult describes what a merge did.
type MergeResult struct {
	// Changed lists fields whose stored value was newly set or replaced.
	Changed []Field
	// Invalid holds supplied values that failed normalisation; they were not applied.
	Invalid map[Field]error
}

// Merge applies extractor output. Empty values never overwrite; a supplied
// value replaces a default, and replaces a user value only when it differs.
func (d *Draft) Merge(p Partial) MergeResult {
	var res MergeResult
	for _, f := range AllFields {
		raw, ok := p[f]
		if !ok {
			continue
		}
		value, err := Normalize(f, raw)
		if errors.Is(err, errEmptyValue) {
			continue
		}
		if err != nil {
			if res.Invalid == nil {
				res.Invalid = map[Field]error{}
			}
			res.Invalid[f] = err
			continue
		}
		s := d.Fields.slot(f)
		if s.Value == value {
			// Repeating a defaulted value makes it the customer's own choice.
			s.Source = SourceUser
			continue
		}
		*s = Slot{Value: value, Source: SourceUser}
		res.Changed = append(res.Changed, f)
	}
	return res
}

// ApplyDefaults fills never-supplied optional fields once the required
// fields are satisfied. It returns the fields it filled; a second call is a no-op.
func (d *Draft) ApplyDefaults() []Field {
	if !d.Complete() {
		return nil
	}
	var filled []Field
	for _, def := range defaults {
		s := d.Fields.slot(def.field)
		if s.IsSet() {
			continue
		}
		*s = Slot{Value: def.value, Source: SourceDefault}
		filled = append(filled, def.field)
	}
	return filled
}

// MarkConfirmationShown records the material values the customer is about to
// see and sets the awaiting_confirmation flag.
func (d *Draft) MarkConfirmationShown() {
	snap := Partial{}
	for _, f := range MaterialFields {
		snap[f] = d.Fields.Value(f)
	}
	d.ShownConfirmation = snap
	d.AwaitingConfirmation = true
}

// ConfirmationShown reports whether a confirmation prompt was recorded.
func (d *Draft) ConfirmationShown() bool {
	return d.ShownConfirmation != nil
}

// MateriallyChanged reports whether any material field differs from the
// values shown in the last confirmation prompt.
func (d *Draft) MateriallyChanged() bool {
	if d.ShownConfirmation == nil {
		return false
	}
	for _, f := range MaterialFields {
		if d.ShownConfirmation[f] != d.Fields.Value(f) {
			return true
		}
	}
	return false
}

// ResetConfirmation drops the awaiting flag and the shown snapshot.
func (d *Draft) ResetConfirmation() {
	d.AwaitingConfirmation = false
	d.ShownConfirmation = nil
}

// MarkConfirmed records a successful commit.
func (d *Draft) MarkConfirmed(reference string, at time.Time) {
	d.Confirmed = true
	d.AwaitingConfirmation = false
	d.AwaitingUpdateConfirmation = false
	d.BookingReference = reference
	confirmedAt := at.UTC()
	d.ConfirmedAt = &confirmedAt
	d.PendingUpdateFields = nil
}

// Change is one field difference between a draft and proposed updates.
type Change struct {
	Field Field
	From  string
	To    string
}

// Diff normalises updates and returns the fields that would change.
// Values that fail normalisation are reported separately and excluded.
func (d *Draft) Diff(updates Partial) ([]Change, Partial, map[Field]error) {
	var (
		changes []Change
		valid   = Partial{}
		invalid map[Field]error
	)
	for _, f := range AllFields {
		raw, ok := updates[f]
		if !ok {
			continue
		}
		value, err := Normalize(f, raw)
		if errors.Is(err, errEmptyValue) {
			continue
		}
		if err != nil {
			if invalid == nil {
				invalid = map[Field]error{}
			}
			invalid[f] = err
			continue
		}
		current := d.Fields.Value(f)
		if current == value {
			continue
		}
		valid[f] = value
		changes = append(changes, Change{Field: f, From: current, To: value})
	}
	return changes, valid, invalid
}

// Clone returns a deep copy.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	out := *d
	out.PendingUpdateFields = d.PendingUpdateFields.Clone()
	out.ShownConfirmation = d.ShownConfirmation.Clone()
	if d.ConfirmedAt != nil {
		at := *d.ConfirmedAt
		out.ConfirmedAt = &at
	}
	return &out
}

// Pax returns the party size, or 1 when unset.
func (d *Draft) Pax() int {
	if n, err := strconv.Atoi(d.Fields.Value(FieldPax)); err == nil {
		return n
	}
	return 1
}

// SessionMinutes returns the session length, or 0 when unset.
func (d *Draft) SessionMinutes() int {
	n, _ := strconv.Atoi(d.Fields.Value(FieldSession))
	return n
}
