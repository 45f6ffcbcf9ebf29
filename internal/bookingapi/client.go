// Package bookingapi talks to the outlet booking system.
package bookingapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

// ErrRejected is returned when the booking system answers but refuses the request.
var ErrRejected = errors.New("bookingapi: request rejected")

// Client commits, updates and cancels bookings.
type Client interface {
	Commit(ctx context.Context, sender string, draft *booking.Draft) (Confirmation, error)
	Update(ctx context.Context, sender string, draft *booking.Draft, reference string) (Confirmation, error)
	Cancel(ctx context.Context, sender, reference string) (Confirmation, error)
}

// Confirmation is the booking system's answer to a successful call.
type Confirmation struct {
	Reference string
	Status    string
	Message   string
}

// Payload is the request body sent for commits and updates.
type Payload struct {
	BookingReference  string `json:"booking_reference,omitempty"`
	Outlet            string `json:"outlet"`
	BookingDate       string `json:"booking_date"`
	Session           int    `json:"session"`
	Pax               int    `json:"pax"`
	Timeslot          string `json:"timeslot"`
	CustomerName      string `json:"customer_name"`
	Mobile            string `json:"mobile"`
	Phone             string `json:"phone"`
	TreatmentType     string `json:"treatment_type,omitempty"`
	PreferredMasseur  string `json:"preferred_masseur,omitempty"`
	ThirdPartyVoucher string `json:"third_party_voucher,omitempty"`
	UsingPackage      string `json:"using_package,omitempty"`
}

// NewPayload flattens a draft for the wire. Timeslots are sent as HH:MM:SS.
func NewPayload(sender string, draft *booking.Draft) Payload {
	f := draft.Fields
	timeslot := f.Value(booking.FieldTimeslot)
	if t, err := booking.ParseTimeOfDay(timeslot); err == nil {
		timeslot = t.String() + ":00"
	}
	session, _ := strconv.Atoi(f.Value(booking.FieldSession))
	return Payload{
		BookingReference:  draft.BookingReference,
		Outlet:            f.Value(booking.FieldOutlet),
		BookingDate:       f.Value(booking.FieldBookingDate),
		Session:           session,
		Pax:               draft.Pax(),
		Timeslot:          timeslot,
		CustomerName:      f.Value(booking.FieldCustomerName),
		Mobile:            sender,
		Phone:             f.Value(booking.FieldPhone),
		TreatmentType:     f.Value(booking.FieldTreatmentType),
		PreferredMasseur:  f.Value(booking.FieldPreferredMasseur),
		ThirdPartyVoucher: f.Value(booking.FieldThirdPartyVoucher),
		UsingPackage:      f.Value(booking.FieldUsingPackage),
	}
}

// MockClient accepts every request and mints BKG-prefixed references.
type MockClient struct {
	now func() time.Time
}

// NewMockClient returns a client that never calls out.
func NewMockClient() *MockClient {
	return &MockClient{now: time.Now}
}

func (m *MockClient) reference() string {
	return "BKG" + m.now().Format("20060102150405")
}

func (m *MockClient) Commit(_ context.Context, _ string, draft *booking.Draft) (Confirmation, error) {
	if draft == nil || !draft.Complete() {
		return Confirmation{}, errors.Join(ErrRejected, errors.New("booking details incomplete"))
	}
	return Confirmation{
		Reference: m.reference(),
		Status:    "confirmed",
		Message:   "Your booking has been confirmed! We'll send you a confirmation SMS shortly.",
	}, nil
}

func (m *MockClient) Update(_ context.Context, _ string, _ *booking.Draft, reference string) (Confirmation, error) {
	if reference == "" {
		reference = m.reference()
	}
	return Confirmation{Reference: reference, Status: "updated", Message: "Booking updated successfully"}, nil
}

func (m *MockClient) Cancel(_ context.Context, _ string, reference string) (Confirmation, error) {
	if reference == "" {
		reference = m.reference()
	}
	return Confirmation{Reference: reference, Status: "cancelled", Message: "Booking cancelled successfully"}, nil
}
