package surrogate

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func startRegistryServer(t *testing.T, reg *Registry) (*grpc.ClientConn, func()) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterRegistryServer(srv, reg)
	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return conn, srv.Stop
}

func TestRemoteModelRoundTrip(t *testing.T) {
	reg, err := NewRegistry(NewFunc("burst", func(_ context.Context, p design.Params) (Estimate, error) {
		return Band(p["t"]*10, 0.1), nil
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn, _ := startRegistryServer(t, reg)

	m := NewRemoteModel("remote_burst", conn, RemoteOptions{RemoteName: "burst", Timeout: time.Second})
	est, err := m.Evaluate(context.Background(), design.Params{"t": 4})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if est.Value != 40 {
		t.Fatalf("expected value 40, got %g", est.Value)
	}
	if math.Abs(est.Lower-36) > 1e-9 || math.Abs(est.Upper-44) > 1e-9 {
		t.Fatalf("expected interval [36,44], got [%g,%g]", est.Lower, est.Upper)
	}
	if m.Name() != "remote_burst" {
		t.Fatalf("expected local name to be kept, got %s", m.Name())
	}
}

func TestRemoteModelUnknownModelIsAnswered(t *testing.T) {
	reg, _ := NewRegistry()
	conn, _ := startRegistryServer(t, reg)

	m := NewRemoteModel("ghost", conn, RemoteOptions{Timeout: time.Second})
	_, err := m.Evaluate(context.Background(), design.Params{"t": 1})
	if err == nil {
		t.Fatalf("expected error for unknown remote model")
	}
	if errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected answered error, got unavailable: %v", err)
	}
}

func TestRemoteModelUnavailableOpensBreaker(t *testing.T) {
	reg, _ := NewRegistry(NewPointFunc("burst", func(design.Params) float64 { return 1 }))
	conn, stop := startRegistryServer(t, reg)
	stop()

	breaker := NewBreaker(1, 1, time.Minute)
	m := NewRemoteModel("burst", conn, RemoteOptions{
		Timeout:    200 * time.Millisecond,
		MaxRetries: 1,
		Backoff:    utils.NewConstantBackoff(time.Millisecond),
		Breaker:    breaker,
	})

	_, err := m.Evaluate(context.Background(), design.Params{"t": 1})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if state := breaker.State("burst", time.Now()); state != CircuitStateOpen {
		t.Fatalf("expected open circuit, got %s", state)
	}

	// Rejected without dialing while open
	_, err = m.Evaluate(context.Background(), design.Params{"t": 1})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable from open circuit, got %v", err)
	}

	ev := NewEvaluator(mustRegistry(t, m))
	_, _, batchErr := ev.EvaluateBatch(context.Background(), []design.Params{{"t": 1}})
	if !errors.Is(batchErr, ErrSurrogateUnavailable) {
		t.Fatalf("expected ErrSurrogateUnavailable, got %v", batchErr)
	}
}

func mustRegistry(t *testing.T, models ...Model) *Registry {
	t.Helper()
	reg, err := NewRegistry(models...)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	return reg
}
