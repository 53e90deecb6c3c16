//go:build integration
// +build integration

package integration_test

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/optd"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
)

func bufDialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

// surrogateHost serves the reference vessel models the way a separate
// surrogate process would and returns a local registry of remote models
func surrogateHost(t *testing.T) (*surrogate.Registry, func()) {
	t.Helper()
	served, err := surrogate.NewVesselRegistry()
	if err != nil {
		t.Fatalf("NewVesselRegistry error: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	surrogate.RegisterRegistryServer(srv, served)
	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///surrogates", bufDialer(lis),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	local, _ := surrogate.NewRegistry()
	breaker := surrogate.NewBreaker(3, 1, time.Minute)
	for _, name := range served.Names() {
		m := surrogate.NewRemoteModel(name, conn, surrogate.RemoteOptions{
			Timeout:    time.Second,
			MaxRetries: 1,
			Backoff:    utils.NewConstantBackoff(5 * time.Millisecond),
			Breaker:    breaker,
		})
		if err := local.Register(m); err != nil {
			t.Fatalf("Register error: %v", err)
		}
	}
	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return local, srv.Stop
}

func optimizerClient(t *testing.T, reg *surrogate.Registry) *optd.Client {
	t.Helper()
	rules, err := constraint.LoadRuleRegistry("../../config/rules")
	if err != nil {
		t.Fatalf("LoadRuleRegistry error: %v", err)
	}
	c := optd.NewController(reg, rules, optd.Options{
		EvalWorkers:    4,
		BaseParameters: design.Merge(nil, surrogate.DefaultVesselParameters),
	})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	optd.RegisterOptimizerServer(srv, c)
	go func() {
		_ = srv.Serve(lis)
	}()
	client, err := optd.Dial("passthrough:///optd", bufDialer(lis),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return client
}

func follow(t *testing.T, client *optd.Client, id string) models.ProgressSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	var last models.ProgressSnapshot
	err := client.StreamProgress(ctx, id, func(s models.ProgressSnapshot) error {
		if s.Sequence <= last.Sequence {
			t.Errorf("sequence went from %d to %d", last.Sequence, s.Sequence)
		}
		if s.Evaluations < last.Evaluations {
			t.Errorf("evaluations went from %d to %d", last.Evaluations, s.Evaluations)
		}
		last = s
		return nil
	})
	if err != nil {
		t.Fatalf("StreamProgress error: %v", err)
	}
	return last
}

func TestIntegration_GRPC_RemoteSurrogates(t *testing.T) {
	reg, _ := surrogateHost(t)
	client := optimizerClient(t, reg)
	ctx := context.Background()

	job, err := client.SubmitJobYAML(ctx, vesselJobYAML)
	if err != nil {
		t.Fatalf("SubmitJobYAML error: %v", err)
	}
	last := follow(t, client, job.ID)
	if last.Status != models.JobStatusCompleted || last.Generation != 8 {
		t.Fatalf("unexpected terminal snapshot: %+v", last)
	}

	res, err := client.GetResults(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetResults error: %v", err)
	}
	if len(res.ParetoDesigns) == 0 {
		t.Fatalf("expected a Pareto set from remote surrogates")
	}
	for _, d := range res.ParetoDesigns {
		if _, ok := d.Confidence["burst_pressure_mpa"]; !ok {
			t.Fatalf("expected the remote band to carry a confidence interval, got %v", d.Confidence)
		}
	}

	data, err := os.ReadFile("../../config/jobs/reliability.json")
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	spec, err := config.ParseReliabilitySpecJSON(data)
	if err != nil {
		t.Fatalf("ParseReliabilitySpecJSON error: %v", err)
	}
	spec.SampleCount = 2000
	rel, err := client.AnalyzeReliability(ctx, job.ID, spec)
	if err != nil {
		t.Fatalf("AnalyzeReliability error: %v", err)
	}
	if rel.SampleCount+rel.FailedEvaluations != 2000 {
		t.Fatalf("expected 2000 samples accounted for, got %d valid and %d failed", rel.SampleCount, rel.FailedEvaluations)
	}
}

func TestIntegration_GRPC_SurrogateOutageFailsJob(t *testing.T) {
	reg, stop := surrogateHost(t)
	client := optimizerClient(t, reg)
	stop()

	job, err := client.SubmitJobYAML(context.Background(), vesselJobYAML)
	if err != nil {
		t.Fatalf("SubmitJobYAML error: %v", err)
	}
	last := follow(t, client, job.ID)
	if last.Status != models.JobStatusFailed || last.Reason != models.ReasonSurrogateUnavailable {
		t.Fatalf("expected a surrogate_unavailable failure, got %s/%s", last.Status, last.Reason)
	}
	if last.FailedAtGeneration != 0 {
		t.Fatalf("expected the failure at the initial population, got generation %d", last.FailedAtGeneration)
	}
}
