package observability

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestSalesAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "sales.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var spec alertSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}

	var salesGroup *alertGroup
	for i := range spec.Groups {
		if spec.Groups[i].Name == "sales" {
			salesGroup = &spec.Groups[i]
			break
		}
	}
	if salesGroup == nil {
		t.Fatal("sales alert group missing")
	}

	expected := map[string]struct {
		severity string
		runbook  string
	}{
		"HighErrorRate":          {severity: "critical", runbook: "docs/runbook-sales.md#high-error-rate"},
		"TransactionConflicts":   {severity: "warning", runbook: "docs/runbook-sales.md#transaction-conflicts"},
		"QuotationExpiryFailing": {severity: "warning", runbook: "docs/runbook-sales.md#quotation-expiry"},
	}

	if len(salesGroup.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(salesGroup.Rules))
	}

	for _, rule := range salesGroup.Rules {
		want, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != want.severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["runbook"] != want.runbook {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if rule.Expr == "" {
			t.Fatalf("rule %s must define an expression", rule.Alert)
		}
		if rule.For == "" {
			t.Fatalf("rule %s must define a hold duration", rule.Alert)
		}
	}
}

type scrapeSpec struct {
	RuleFiles     []string `yaml:"rule_files"`
	ScrapeConfigs []struct {
		JobName       string `yaml:"job_name"`
		HonorLabels   bool   `yaml:"honor_labels"`
		MetricsPath   string `yaml:"metrics_path"`
		StaticConfigs []struct {
			Targets []string `yaml:"targets"`
		} `yaml:"static_configs"`
	} `yaml:"scrape_configs"`
}

func TestScrapeConfigCoversWorker(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "prometheus.yml"))
	if err != nil {
		t.Fatalf("failed to read scrape config: %v", err)
	}
	var spec scrapeSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("failed to unmarshal scrape config: %v", err)
	}
	if len(spec.RuleFiles) != 1 || spec.RuleFiles[0] != "alerts/sales.yml" {
		t.Fatalf("unexpected rule files: %v", spec.RuleFiles)
	}

	jobs := map[string]bool{}
	for _, sc := range spec.ScrapeConfigs {
		jobs[sc.JobName] = true
		if sc.MetricsPath != "/metrics" || len(sc.StaticConfigs) == 0 || len(sc.StaticConfigs[0].Targets) == 0 {
			t.Fatalf("scrape job %s must target /metrics", sc.JobName)
		}
		if sc.JobName == "crm-worker" {
			// The expiry alert matches on the job label the worker exports.
			if !sc.HonorLabels {
				t.Fatal("crm-worker must honor exported labels")
			}
			if sc.StaticConfigs[0].Targets[0] != "crm-worker:9091" {
				t.Fatalf("unexpected worker target %s", sc.StaticConfigs[0].Targets[0])
			}
		}
	}
	if !jobs["crm-api"] || !jobs["crm-worker"] {
		t.Fatalf("scrape config must cover crm-api and crm-worker, got %v", jobs)
	}
}
