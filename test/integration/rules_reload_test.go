//go:build integration
// +build integration

package integration_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/optd"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
)

const coastalRules = `
name: coastal-type4
regime: harbour authority
constraints:
  - {name: burst_ratio, metric: burst_pressure_mpa, op: ">=", ref: working_pressure_mpa, factor: 3, primary: true}
`

func TestIntegration_RuleSetHotReload(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"iso11119-3.yaml", "ec79.yaml"} {
		data, err := os.ReadFile(filepath.Join("../../config/rules", name))
		if err != nil {
			t.Fatalf("ReadFile error: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("WriteFile error: %v", err)
		}
	}

	rules, err := constraint.LoadRuleRegistry(dir)
	if err != nil {
		t.Fatalf("LoadRuleRegistry error: %v", err)
	}
	rules.SetDebounce(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rules.Watch(ctx); err != nil {
		t.Fatalf("Watch error: %v", err)
	}

	reg, err := surrogate.NewVesselRegistry()
	if err != nil {
		t.Fatalf("NewVesselRegistry error: %v", err)
	}
	c := optd.NewController(reg, rules, optd.Options{
		BaseParameters: design.Merge(nil, surrogate.DefaultVesselParameters),
	})
	srv := httptest.NewServer(optd.NewHTTPServer(c).Handler())
	defer func() {
		srv.Close()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = c.Shutdown(sctx)
	}()

	job := strings.Replace(vesselJobYAML, "rule_set: iso11119-3-type4", "rule_set: coastal-type4", 1)
	if code := postJSON(t, srv.URL+"/v1/jobs", "application/yaml", job, nil); code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for an unknown rule set, got %d", code)
	}

	start := rules.Version()
	if err := os.WriteFile(filepath.Join(dir, "coastal.yaml"), []byte(coastalRules), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for rules.Version() == start {
		if time.Now().After(deadline) {
			t.Fatalf("expected the watcher to pick up coastal.yaml")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var sets struct {
		RuleSets []constraint.RuleSetInfo `json:"rule_sets"`
	}
	getJSON(t, srv.URL+"/v1/rule-sets", &sets)
	found := false
	for _, s := range sets.RuleSets {
		if s.Name == "coastal-type4" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected coastal-type4 in the catalog, got %+v", sets.RuleSets)
	}

	var submitted struct {
		JobID string `json:"job_id"`
	}
	if code := postJSON(t, srv.URL+"/v1/jobs", "application/yaml", job, &submitted); code != http.StatusCreated {
		t.Fatalf("expected status 201 after reload, got %d", code)
	}
	last := streamUntilComplete(t, srv.URL+"/v1/jobs/"+submitted.JobID+"/progress/stream")
	if n := len(last); n == 0 || last[n-1].Status != "completed" {
		t.Fatalf("expected the job under the reloaded rules to complete")
	}
}
