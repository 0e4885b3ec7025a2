package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"medslot/backend/internal/domain"
	"medslot/backend/internal/service/bookings"
	"medslot/backend/internal/store"
)

type fakeSchedulingService struct {
	bookFn                func(ctx context.Context, req domain.BookingRequest) (domain.Booking, error)
	cancelFn              func(ctx context.Context, bookingID int64) (domain.Booking, error)
	markDoneFn            func(ctx context.Context, bookingID int64) (domain.Booking, error)
	rateFn                func(ctx context.Context, bookingID int64, rating int) (domain.Booking, error)
	addTimeSlotFn         func(ctx context.Context, in bookings.SlotInput) (bool, error)
	removeTimeSlotFn      func(ctx context.Context, in bookings.SlotInput) (bool, error)
	refreshAvailabilityFn func(ctx context.Context) (domain.WindowReport, error)
	availabilityFn        func(providerID int64) ([]domain.DaySlots, error)
	patientBookingsFn     func(patientID int64) []domain.Booking
	providerBookingsFn    func(providerID int64) []domain.Booking
	todayBookingsFn       func(providerID int64) []domain.Booking
	statisticsFn          func() bookings.Statistics
}

func (f *fakeSchedulingService) Book(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
	if f.bookFn == nil {
		panic("Book not configured")
	}
	return f.bookFn(ctx, req)
}

func (f *fakeSchedulingService) Cancel(ctx context.Context, bookingID int64) (domain.Booking, error) {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, bookingID)
}

func (f *fakeSchedulingService) MarkDone(ctx context.Context, bookingID int64) (domain.Booking, error) {
	if f.markDoneFn == nil {
		panic("MarkDone not configured")
	}
	return f.markDoneFn(ctx, bookingID)
}

func (f *fakeSchedulingService) Rate(ctx context.Context, bookingID int64, rating int) (domain.Booking, error) {
	if f.rateFn == nil {
		panic("Rate not configured")
	}
	return f.rateFn(ctx, bookingID, rating)
}

func (f *fakeSchedulingService) AddTimeSlot(ctx context.Context, in bookings.SlotInput) (bool, error) {
	if f.addTimeSlotFn == nil {
		panic("AddTimeSlot not configured")
	}
	return f.addTimeSlotFn(ctx, in)
}

func (f *fakeSchedulingService) RemoveTimeSlot(ctx context.Context, in bookings.SlotInput) (bool, error) {
	if f.removeTimeSlotFn == nil {
		panic("RemoveTimeSlot not configured")
	}
	return f.removeTimeSlotFn(ctx, in)
}

func (f *fakeSchedulingService) RefreshAvailability(ctx context.Context) (domain.WindowReport, error) {
	if f.refreshAvailabilityFn == nil {
		panic("RefreshAvailability not configured")
	}
	return f.refreshAvailabilityFn(ctx)
}

func (f *fakeSchedulingService) Availability(providerID int64) ([]domain.DaySlots, error) {
	if f.availabilityFn == nil {
		panic("Availability not configured")
	}
	return f.availabilityFn(providerID)
}

func (f *fakeSchedulingService) PatientBookings(patientID int64) []domain.Booking {
	if f.patientBookingsFn == nil {
		panic("PatientBookings not configured")
	}
	return f.patientBookingsFn(patientID)
}

func (f *fakeSchedulingService) ProviderBookings(providerID int64) []domain.Booking {
	if f.providerBookingsFn == nil {
		panic("ProviderBookings not configured")
	}
	return f.providerBookingsFn(providerID)
}

func (f *fakeSchedulingService) TodayBookings(providerID int64) []domain.Booking {
	if f.todayBookingsFn == nil {
		panic("TodayBookings not configured")
	}
	return f.todayBookingsFn(providerID)
}

func (f *fakeSchedulingService) Statistics() bookings.Statistics {
	if f.statisticsFn == nil {
		panic("Statistics not configured")
	}
	return f.statisticsFn()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("structpb.NewStruct error: %v", err)
	}
	return s
}

func TestBook_PassesTypedRequestToService(t *testing.T) {
	var got domain.BookingRequest
	srv := NewSchedulingServer(&fakeSchedulingService{
		bookFn: func(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
			got = req
			return domain.Booking{ID: 1763800000123, PatientID: req.PatientID, ProviderID: req.ProviderID, Date: req.Date, Time: req.Time, Status: domain.BookingStatusBooked}, nil
		},
	}, quietLogger())

	resp, err := srv.Book(context.Background(), mustStruct(t, map[string]any{
		"patientId":  1,
		"providerId": 2,
		"date":       "2025-11-22",
		"time":       "09:00",
	}))
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}

	want := domain.BookingRequest{PatientID: 1, ProviderID: 2, Date: domain.MustParseDate("2025-11-22"), Time: "09:00"}
	if got != want {
		t.Fatalf("request = %+v, want %+v", got, want)
	}

	booking := resp.GetFields()["booking"].GetStructValue().GetFields()
	if id := booking["id"].GetNumberValue(); id != 1763800000123 {
		t.Fatalf("id = %v, want 1763800000123", id)
	}
	if booking["status"].GetStringValue() != "booked" || booking["date"].GetStringValue() != "2025-11-22" {
		t.Fatalf("booking = %v", booking)
	}
	if _, ok := booking["rating"].GetKind().(*structpb.Value_NullValue); !ok {
		t.Fatalf("rating = %v, want null", booking["rating"])
	}
}

func TestBook_ForwardsIdempotencyKey(t *testing.T) {
	tests := []struct {
		name string
		md   metadata.MD
		want string
	}{
		{name: "primary header", md: metadata.Pairs("idempotency-key", " k-1 "), want: "k-1"},
		{name: "fallback header", md: metadata.Pairs("x-idempotency-key", "k-2"), want: "k-2"},
		{name: "absent", md: metadata.MD{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			srv := NewSchedulingServer(&fakeSchedulingService{
				bookFn: func(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
					got = req.IdempotencyKey
					return domain.Booking{ID: 1, Status: domain.BookingStatusBooked}, nil
				},
			}, quietLogger())

			ctx := metadata.NewIncomingContext(context.Background(), tt.md)
			_, err := srv.Book(ctx, mustStruct(t, map[string]any{
				"patientId": 1, "providerId": 1, "date": "2025-11-22", "time": "09:00",
			}))
			if err != nil {
				t.Fatalf("Book error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("IdempotencyKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBook_RejectsBadPayload(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{}, quietLogger())

	tests := []struct {
		name string
		req  map[string]any
	}{
		{name: "unknown field", req: map[string]any{"patientId": 1, "slot": "x"}},
		{name: "bad date", req: map[string]any{"patientId": 1, "providerId": 1, "date": "22/11/2025", "time": "09:00"}},
		{name: "wrong type", req: map[string]any{"patientId": "one"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.Book(context.Background(), mustStruct(t, tt.req))
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
			}
		})
	}
}

func TestBook_MapsServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "duplicate", err: domain.ErrDuplicateBooking, want: codes.FailedPrecondition},
		{name: "double booked", err: domain.ErrPatientDoubleBooked, want: codes.FailedPrecondition},
		{name: "slot taken", err: domain.ErrSlotTaken, want: codes.FailedPrecondition},
		{name: "not offered", err: domain.ErrSlotUnavailable, want: codes.FailedPrecondition},
		{name: "reused key", err: fmt.Errorf("%w: booking 7", store.ErrIdempotencyConflict), want: codes.FailedPrecondition},
		{name: "validation", err: &bookings.ValidationError{}, want: codes.InvalidArgument},
		{name: "not found", err: fmt.Errorf("booking 9: %w", bookings.ErrNotFound), want: codes.NotFound},
		{name: "persistence", err: &bookings.PersistenceError{Err: store.ErrConflict}, want: codes.Unavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{name: "other", err: errors.New("boom"), want: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewSchedulingServer(&fakeSchedulingService{
				bookFn: func(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
					return domain.Booking{}, tt.err
				},
			}, quietLogger())

			_, err := srv.Book(context.Background(), mustStruct(t, map[string]any{
				"patientId": 1, "providerId": 1, "date": "2025-11-22", "time": "09:00",
			}))
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
		})
	}
}

func TestCancel_RequiresBookingID(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{}, quietLogger())

	_, err := srv.Cancel(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestMarkDone_MapsInvalidTransition(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{
		markDoneFn: func(ctx context.Context, bookingID int64) (domain.Booking, error) {
			return domain.Booking{}, bookings.ErrInvalidTransition
		},
	}, quietLogger())

	_, err := srv.MarkDone(context.Background(), mustStruct(t, map[string]any{"bookingId": 7}))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
}

func TestListBookings_SelectsFilter(t *testing.T) {
	var called string
	srv := NewSchedulingServer(&fakeSchedulingService{
		patientBookingsFn: func(int64) []domain.Booking {
			called = "patient"
			return nil
		},
		providerBookingsFn: func(int64) []domain.Booking {
			called = "provider"
			return []domain.Booking{{ID: 1}}
		},
		todayBookingsFn: func(int64) []domain.Booking {
			called = "today"
			return nil
		},
	}, quietLogger())
	ctx := context.Background()

	tests := []struct {
		req  map[string]any
		want string
	}{
		{req: map[string]any{"patientId": 1}, want: "patient"},
		{req: map[string]any{"providerId": 1}, want: "provider"},
		{req: map[string]any{"providerId": 1, "todayOnly": true}, want: "today"},
	}
	for _, tt := range tests {
		called = ""
		resp, err := srv.ListBookings(ctx, mustStruct(t, tt.req))
		if err != nil {
			t.Fatalf("ListBookings(%v) error: %v", tt.req, err)
		}
		if called != tt.want {
			t.Fatalf("ListBookings(%v) called %q, want %q", tt.req, called, tt.want)
		}
		if resp.GetFields()["bookings"].GetListValue() == nil {
			t.Fatalf("bookings missing from response: %v", resp)
		}
	}

	if _, err := srv.ListBookings(ctx, &structpb.Struct{}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("no filter code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
	if _, err := srv.ListBookings(ctx, mustStruct(t, map[string]any{"patientId": 1, "providerId": 1})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("both filters code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestStatistics_Response(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{
		statisticsFn: func() bookings.Statistics {
			return bookings.Statistics{TotalProviders: 4, TotalPatients: 1, TotalBookings: 9, TodayBookings: 2}
		},
	}, quietLogger())

	resp, err := srv.Statistics(context.Background(), nil)
	if err != nil {
		t.Fatalf("Statistics error: %v", err)
	}
	f := resp.GetFields()
	if f["totalProviders"].GetNumberValue() != 4 || f["totalBookings"].GetNumberValue() != 9 || f["todayBookings"].GetNumberValue() != 2 {
		t.Fatalf("statistics = %v", f)
	}
}
