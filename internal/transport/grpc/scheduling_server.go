package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"medslot/backend/internal/domain"
	"medslot/backend/internal/service/bookings"
	"medslot/backend/internal/store"
)

type SchedulingServer struct {
	svc schedulingService
	log *slog.Logger
}

type schedulingService interface {
	Book(ctx context.Context, req domain.BookingRequest) (domain.Booking, error)
	Cancel(ctx context.Context, bookingID int64) (domain.Booking, error)
	MarkDone(ctx context.Context, bookingID int64) (domain.Booking, error)
	Rate(ctx context.Context, bookingID int64, rating int) (domain.Booking, error)
	AddTimeSlot(ctx context.Context, in bookings.SlotInput) (bool, error)
	RemoveTimeSlot(ctx context.Context, in bookings.SlotInput) (bool, error)
	RefreshAvailability(ctx context.Context) (domain.WindowReport, error)
	Availability(providerID int64) ([]domain.DaySlots, error)
	PatientBookings(patientID int64) []domain.Booking
	ProviderBookings(providerID int64) []domain.Booking
	TodayBookings(providerID int64) []domain.Booking
	Statistics() bookings.Statistics
}

func NewSchedulingServer(svc schedulingService, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

type bookRequest struct {
	PatientID  int64  `json:"patientId"`
	ProviderID int64  `json:"providerId"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}

type bookingIDRequest struct {
	BookingID int64 `json:"bookingId"`
}

type rateRequest struct {
	BookingID int64 `json:"bookingId"`
	Rating    int   `json:"rating"`
}

type slotRequest struct {
	ProviderID int64  `json:"providerId"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}

type providerRequest struct {
	ProviderID int64 `json:"providerId"`
}

type listBookingsRequest struct {
	PatientID  int64 `json:"patientId"`
	ProviderID int64 `json:"providerId"`
	TodayOnly  bool  `json:"todayOnly"`
}

type bookingResponse struct {
	Booking domain.Booking `json:"booking"`
}

type slotResponse struct {
	Changed bool `json:"changed"`
}

type availabilityResponse struct {
	ProviderID   int64             `json:"providerId"`
	Availability []domain.DaySlots `json:"availability"`
}

type listBookingsResponse struct {
	Bookings []domain.Booking `json:"bookings"`
}

type windowChange struct {
	ProviderID  int64         `json:"providerId"`
	DaysDropped int           `json:"daysDropped"`
	DaysAdded   []domain.Date `json:"daysAdded"`
}

type refreshResponse struct {
	Today   domain.Date    `json:"today"`
	Changes []windowChange `json:"changes"`
}

type statisticsResponse struct {
	TotalProviders int `json:"totalProviders"`
	TotalPatients  int `json:"totalPatients"`
	TotalBookings  int `json:"totalBookings"`
	TodayBookings  int `json:"todayBookings"`
}

func (s *SchedulingServer) Book(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Book"))

	var in bookRequest
	if err := decodePayload(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "request body does not match Book")
	}
	date, err := parseDate(in.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_date"), slog.String("date", in.Date))
		return nil, err
	}

	b, err := s.svc.Book(ctx, domain.BookingRequest{
		PatientID:      in.PatientID,
		ProviderID:     in.ProviderID,
		Date:           date,
		Time:           in.Time,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.statusFor(log, "booking create failed", err,
			slog.Int64("patient_id", in.PatientID),
			slog.Int64("provider_id", in.ProviderID),
			slog.String("date", in.Date),
			slog.String("time", in.Time),
		)
	}

	return s.respond(log, bookingResponse{Booking: b})
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *SchedulingServer) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, "Cancel", s.svc.Cancel)
}

func (s *SchedulingServer) MarkDone(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, "MarkDone", s.svc.MarkDone)
}

func (s *SchedulingServer) transition(ctx context.Context, req *structpb.Struct, rpc string, apply func(context.Context, int64) (domain.Booking, error)) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", rpc))

	var in bookingIDRequest
	if err := decodePayload(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_payload"), slog.Any("err", err))
		return nil, status.Errorf(codes.InvalidArgument, "request body does not match %s", rpc)
	}
	if in.BookingID <= 0 {
		log.Warn("invalid request", slog.String("reason", "missing_booking_id"))
		return nil, status.Error(codes.InvalidArgument, "bookingId is required")
	}

	b, err := apply(ctx, in.BookingID)
	if err != nil {
		return nil, s.statusFor(log, "booking transition failed", err, slog.Int64("booking_id", in.BookingID))
	}
	return s.respond(log, bookingResponse{Booking: b})
}

func (s *SchedulingServer) Rate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Rate"))

	var in rateRequest
	if err := decodePayload(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "request body does not match Rate")
	}

	b, err := s.svc.Rate(ctx, in.BookingID, in.Rating)
	if err != nil {
		return nil, s.statusFor(log, "booking rate failed", err, slog.Int64("booking_id", in.BookingID))
	}
	return s.respond(log, bookingResponse{Booking: b})
}

func (s *SchedulingServer) AddTimeSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.editSlot(ctx, req, "AddTimeSlot", s.svc.AddTimeSlot)
}

func (s *SchedulingServer) RemoveTimeSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.editSlot(ctx, req, "RemoveTimeSlot", s.svc.RemoveTimeSlot)
}

func (s *SchedulingServer) editSlot(ctx context.Context, req *structpb.Struct, rpc string, apply func(context.Context, bookings.SlotInput) (bool, error)) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", rpc))

	var in slotRequest
	if err := decodePayload(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_payload"), slog.Any("err", err))
		return nil, status.Errorf(codes.InvalidArgument, "request body does not match %s", rpc)
	}
	date, err := parseDate(in.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_date"), slog.String("date", in.Date))
		return nil, err
	}

	changed, err := apply(ctx, bookings.SlotInput{ProviderID: in.ProviderID, Date: date, Time: in.Time})
	if err != nil {
		return nil, s.statusFor(log, "time slot edit failed", err,
			slog.Int64("provider_id", in.ProviderID),
			slog.String("date", in.Date),
			slog.String("time", in.Time),
		)
	}
	return s.respond(log, slotResponse{Changed: changed})
}

func (s *SchedulingServer) RefreshAvailability(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "RefreshAvailability"))

	report, err := s.svc.RefreshAvailability(ctx)
	if err != nil {
		return nil, s.statusFor(log, "availability refresh failed", err)
	}

	out := refreshResponse{Today: report.Today, Changes: []windowChange{}}
	for _, c := range report.Changes {
		out.Changes = append(out.Changes, windowChange{
			ProviderID:  c.ProviderID,
			DaysDropped: c.DaysDropped,
			DaysAdded:   c.DaysAdded,
		})
	}
	return s.respond(log, out)
}

func (s *SchedulingServer) GetAvailability(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))

	var in providerRequest
	if err := decodePayload(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "request body does not match GetAvailability")
	}

	av, err := s.svc.Availability(in.ProviderID)
	if err != nil {
		return nil, s.statusFor(log, "availability lookup failed", err, slog.Int64("provider_id", in.ProviderID))
	}
	if av == nil {
		av = []domain.DaySlots{}
	}

	log.Debug("availability listed", slog.Int64("provider_id", in.ProviderID), slog.Int("days", len(av)))
	return s.respond(log, availabilityResponse{ProviderID: in.ProviderID, Availability: av})
}

func (s *SchedulingServer) ListBookings(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListBookings"))

	var in listBookingsRequest
	if err := decodePayload(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "request body does not match ListBookings")
	}

	var out []domain.Booking
	switch {
	case in.PatientID > 0 && in.ProviderID > 0:
		log.Warn("invalid request", slog.String("reason", "ambiguous_filter"))
		return nil, status.Error(codes.InvalidArgument, "set either patientId or providerId, not both")
	case in.PatientID > 0:
		out = s.svc.PatientBookings(in.PatientID)
	case in.ProviderID > 0 && in.TodayOnly:
		out = s.svc.TodayBookings(in.ProviderID)
	case in.ProviderID > 0:
		out = s.svc.ProviderBookings(in.ProviderID)
	default:
		log.Warn("invalid request", slog.String("reason", "missing_filter"))
		return nil, status.Error(codes.InvalidArgument, "patientId or providerId is required")
	}
	if out == nil {
		out = []domain.Booking{}
	}

	log.Debug("bookings listed",
		slog.Int64("patient_id", in.PatientID),
		slog.Int64("provider_id", in.ProviderID),
		slog.Int("count", len(out)),
	)
	return s.respond(log, listBookingsResponse{Bookings: out})
}

func (s *SchedulingServer) Statistics(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Statistics"))

	st := s.svc.Statistics()
	return s.respond(log, statisticsResponse{
		TotalProviders: st.TotalProviders,
		TotalPatients:  st.TotalPatients,
		TotalBookings:  st.TotalBookings,
		TodayBookings:  st.TodayBookings,
	})
}

func (s *SchedulingServer) respond(log *slog.Logger, v any) (*structpb.Struct, error) {
	out, err := encodePayload(v)
	if err != nil {
		log.Error("response encode failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// statusFor maps service errors onto gRPC codes and logs them at a level matching
// who has to act on them.
func (s *SchedulingServer) statusFor(log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *bookings.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	}
	if errors.Is(err, bookings.ErrNotFound) {
		log.Info(msg, args...)
		return status.Error(codes.NotFound, err.Error())
	}
	if isRejection(err) {
		log.Info(msg, args...)
		return status.Error(codes.FailedPrecondition, rejectionMessage(err))
	}
	var pErr *bookings.PersistenceError
	if errors.As(err, &pErr) {
		log.Error(msg, args...)
		return status.Error(codes.Unavailable, "The change could not be saved. Try again.")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn(msg, args...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}
	log.Error(msg, args...)
	return status.Error(codes.Internal, "internal error")
}

var rejections = []error{
	domain.ErrDuplicateBooking,
	domain.ErrPatientDoubleBooked,
	domain.ErrSlotTaken,
	domain.ErrSlotUnavailable,
	bookings.ErrInvalidTransition,
	bookings.ErrSlotHeld,
	bookings.ErrEmailTaken,
	store.ErrIdempotencyConflict,
}

func isRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateBooking):
		return "You already booked this time with this provider."
	case errors.Is(err, domain.ErrPatientDoubleBooked):
		return "You already have an appointment at that time. Pick a different slot."
	case errors.Is(err, domain.ErrSlotTaken), errors.Is(err, domain.ErrSlotUnavailable):
		return "That time is no longer available. Pick a different slot."
	case errors.Is(err, store.ErrIdempotencyConflict):
		return "This request key was already used for a different booking. Try again."
	}
	return err.Error()
}

func parseDate(s string) (domain.Date, error) {
	d, err := domain.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return domain.Date{}, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}
	return d, nil
}
