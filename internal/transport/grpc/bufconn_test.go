package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"medslot/backend/internal/clock"
	"medslot/backend/internal/domain"
	"medslot/backend/internal/service/bookings"
	"medslot/backend/internal/store/file"
)

// startServer runs the scheduling service over an in-memory listener backed by a
// seeded engine and an in-memory snapshot file.
func startServer(t *testing.T, opts ...grpc.ServerOption) (*SchedulingClient, *grpc.ClientConn) {
	t.Helper()

	fs := afero.NewMemMapFs()
	st := file.NewSnapshotStore(fs, "/data/snapshot.json")
	clk := clock.NewFixed(time.Date(2025, 11, 21, 8, 0, 0, 0, time.UTC))
	cfg := bookings.DefaultConfig()
	cfg.SeedOnEmpty = true
	svc := bookings.NewService(st, clk, cfg, bookings.WithLogger(quietLogger()))
	if _, err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap error: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(opts...)
	RegisterSchedulingServiceServer(srv, NewSchedulingServer(svc, quietLogger()))
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient error: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return NewSchedulingClient(conn), conn
}

func call(t *testing.T, c *SchedulingClient, method string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Call(ctx, method, mustStruct(t, req))
}

func TestBufconn_BookCancelRoundTrip(t *testing.T) {
	client, _ := startServer(t, grpc.ChainUnaryInterceptor(
		LoggingInterceptor(quietLogger()),
		DefaultRequestTimeoutInterceptor(time.Second),
	))

	resp, err := call(t, client, "Book", map[string]any{
		"patientId": 1, "providerId": 1, "date": "2025-11-22", "time": "09:00",
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	booking := resp.GetFields()["booking"].GetStructValue().GetFields()
	bookingID := booking["id"].GetNumberValue()
	if bookingID <= 0 {
		t.Fatalf("booking id = %v", bookingID)
	}

	_, err = call(t, client, "Book", map[string]any{
		"patientId": 1, "providerId": 1, "date": "2025-11-22", "time": "09:00",
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("duplicate code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}

	av, err := call(t, client, "GetAvailability", map[string]any{"providerId": 1})
	if err != nil {
		t.Fatalf("GetAvailability error: %v", err)
	}
	first := av.GetFields()["availability"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	slots := first["slots"].GetListValue().GetValues()
	for _, v := range slots {
		if v.GetStringValue() == "09:00" {
			t.Fatalf("booked unit still offered: %v", slots)
		}
	}

	if _, err := call(t, client, "Cancel", map[string]any{"bookingId": bookingID}); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	_, err = call(t, client, "Cancel", map[string]any{"bookingId": bookingID})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("re-cancel code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}

	list, err := call(t, client, "ListBookings", map[string]any{"patientId": 1})
	if err != nil {
		t.Fatalf("ListBookings error: %v", err)
	}
	rows := list.GetFields()["bookings"].GetListValue().GetValues()
	if len(rows) != 1 || rows[0].GetStructValue().GetFields()["status"].GetStringValue() != string(domain.BookingStatusCancelled) {
		t.Fatalf("bookings = %v", rows)
	}

	stats, err := call(t, client, "Statistics", map[string]any{})
	if err != nil {
		t.Fatalf("Statistics error: %v", err)
	}
	if got := stats.GetFields()["totalProviders"].GetNumberValue(); got != 4 {
		t.Fatalf("totalProviders = %v, want 4", got)
	}
}

func TestBufconn_BookRetryWithIdempotencyKey(t *testing.T) {
	client, _ := startServer(t)
	req := map[string]any{"patientId": 1, "providerId": 2, "date": "2025-11-23", "time": "10:00"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "idempotency-key", "book-42")

	first, err := client.Call(ctx, "Book", mustStruct(t, req))
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	again, err := client.Call(ctx, "Book", mustStruct(t, req))
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	firstID := first.GetFields()["booking"].GetStructValue().GetFields()["id"].GetNumberValue()
	againID := again.GetFields()["booking"].GetStructValue().GetFields()["id"].GetNumberValue()
	if firstID != againID {
		t.Fatalf("retry id = %v, want %v", againID, firstID)
	}

	req["time"] = "11:00"
	_, err = client.Call(ctx, "Book", mustStruct(t, req))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("reused key code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
}

func TestBufconn_SlotEditsAndRefresh(t *testing.T) {
	client, _ := startServer(t)

	resp, err := call(t, client, "AddTimeSlot", map[string]any{"providerId": 2, "date": "2025-11-30", "time": "17:00"})
	if err != nil {
		t.Fatalf("AddTimeSlot error: %v", err)
	}
	if !resp.GetFields()["changed"].GetBoolValue() {
		t.Fatalf("changed = false, want true")
	}

	resp, err = call(t, client, "RemoveTimeSlot", map[string]any{"providerId": 2, "date": "2025-11-30", "time": "17:00"})
	if err != nil {
		t.Fatalf("RemoveTimeSlot error: %v", err)
	}
	if !resp.GetFields()["changed"].GetBoolValue() {
		t.Fatalf("changed = false, want true")
	}

	_, err = call(t, client, "AddTimeSlot", map[string]any{"providerId": 99, "date": "2025-11-30", "time": "17:00"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("unknown provider code = %s, want %s", status.Code(err), codes.NotFound)
	}

	resp, err = call(t, client, "RefreshAvailability", map[string]any{})
	if err != nil {
		t.Fatalf("RefreshAvailability error: %v", err)
	}
	if resp.GetFields()["today"].GetStringValue() != "2025-11-21" {
		t.Fatalf("today = %v", resp.GetFields()["today"])
	}
	if n := len(resp.GetFields()["changes"].GetListValue().GetValues()); n != 0 {
		t.Fatalf("changes = %d, want 0 right after bootstrap", n)
	}
}

func TestBufconn_HealthAndRateLimit(t *testing.T) {
	_, conn := startServer(t, grpc.ChainUnaryInterceptor(
		RateLimitInterceptor(0.001, 1, quietLogger()),
	))
	client := NewSchedulingClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health Check error: %v", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %s, want SERVING", hc.GetStatus())
	}

	// the health call above used the only token
	_, err = client.Call(ctx, "Statistics", nil)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.ResourceExhausted)
	}
}

func TestLoggingInterceptor_AttachesUser(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"x-user-id", " 12 ",
		"x-user-role", "Provider",
		"x-request-id", "req-1",
	))

	var got domain.User
	var ok bool
	_, err := LoggingInterceptor(quietLogger())(ctx, nil, &grpc.UnaryServerInfo{FullMethod: FullMethod("Statistics")},
		func(ctx context.Context, req any) (any, error) {
			got, ok = UserFromContext(ctx)
			return nil, nil
		})
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}
	if !ok || got.ID != 12 || got.Role != domain.RoleProvider {
		t.Fatalf("user = %+v (ok=%v), want id 12 role provider", got, ok)
	}
	if id := requestID(ctx); id != "req-1" {
		t.Fatalf("requestID = %q, want req-1", id)
	}
	if id := requestID(context.Background()); id == "" {
		t.Fatalf("requestID should be generated when absent")
	}
}

func TestDefaultRequestTimeoutInterceptor_SetsDeadline(t *testing.T) {
	icpt := DefaultRequestTimeoutInterceptor(50 * time.Millisecond)

	_, _ = icpt(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected deadline")
		}
		return nil, nil
	})

	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	want, _ := parent.Deadline()
	_, _ = icpt(parent, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		if got, _ := ctx.Deadline(); !got.Equal(want) {
			t.Fatalf("deadline = %v, want caller's %v", got, want)
		}
		return nil, nil
	})
}
