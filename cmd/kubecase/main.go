package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"kubecase/pkg/collector"
	"kubecase/pkg/config"
	"kubecase/pkg/engine"
	"kubecase/pkg/history"
	"kubecase/pkg/logger"
	"kubecase/pkg/models"
	"kubecase/pkg/normalize"
	"kubecase/pkg/report"
	"kubecase/pkg/rules"
	"kubecase/pkg/schedule"
)

var (
	kubeconfig    string
	namespace     string
	configFile    string
	rulesFile     string
	prometheusURL string
	logLevel      string

	watchSchedule string
	historyFile   string
	historyLimit  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kubecase",
		Short: "Live Kubernetes troubleshooting and reporting assistant",
	}

	rootCmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig",
		filepath.Join(os.Getenv("HOME"), ".kube", "config"), "Path to kubeconfig")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "Target namespace")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Analysis config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "Custom rules file (YAML)")
	rootCmd.PersistentFlags().StringVar(&prometheusURL, "prometheus-url", "",
		"Read usage from Prometheus instead of metrics-server")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level for watch mode")

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Generate a report for the current cluster state",
	}
	getCmd.AddCommand(
		reportCommand("probe", "Generate a probe coverage report"),
		reportCommand("resource", "Generate a resource usage report"),
		reportCommand("pdb", "Generate a Pod Disruption Budget report"),
		reportCommand("report", "Generate the full diagnostic report"),
	)
	rootCmd.AddCommand(getCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the analysis on a cron schedule",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "*/30 * * * *", "Five-field cron schedule")
	watchCmd.Flags().StringVar(&historyFile, "history-file", "", "Dump run history to this JSON file")
	watchCmd.Flags().IntVar(&historyLimit, "history-limit", 20, "Reports kept in memory")
	rootCmd.AddCommand(watchCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the kubecase version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kubecase %s\n", report.Version)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list-reports",
		Short: "List available report types",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("probe    - probe coverage and timing")
			fmt.Println("resource - resource requests, limits and usage")
			fmt.Println("pdb      - disruption budget coverage and simulation")
			fmt.Println("report   - all of the above")
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func reportCommand(kind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   kind,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), kind)
		},
	}
}

func runReport(ctx context.Context, kind string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if namespace == "" {
		return fmt.Errorf("--namespace is required")
	}

	eng, col, err := bootstrap()
	if err != nil {
		return err
	}

	rep, err := analyzeOnce(ctx, eng, col)
	if errors.Is(err, engine.ErrEmptyNamespace) {
		fmt.Fprintf(os.Stderr, "No pods found in namespace %q, no report generated.\n", namespace)
		return nil
	}
	if err != nil {
		return err
	}

	return printJSON(viewFor(kind, rep))
}

func runWatch(cmd *cobra.Command, args []string) error {
	if namespace == "" {
		return fmt.Errorf("--namespace is required")
	}

	log, err := logger.New(logLevel, false)
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, col, err := bootstrap()
	if err != nil {
		return err
	}

	store := history.NewStore(historyLimit)
	runner, err := schedule.NewRunner(watchSchedule, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return runner.Run(ctx, func(ctx context.Context) error {
		rep, err := analyzeOnce(ctx, eng, col)
		if errors.Is(err, engine.ErrEmptyNamespace) {
			log.Infow("namespace is empty, skipping report", "namespace", namespace)
			return nil
		}
		if err != nil {
			return err
		}

		store.Add(rep)
		log.Infow("analysis complete",
			"namespace", namespace,
			"report", rep.ID,
			"findings", len(rep.Findings),
		)

		if historyFile != "" {
			if err := store.SaveToFile(historyFile); err != nil {
				log.WithError(err).Warnw("failed to save history")
			}
		}
		return nil
	})
}

func bootstrap() (*engine.Engine, *collector.Collector, error) {
	cfg := config.NewDefault()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	eng := engine.New(cfg)
	ruleFile := rulesFile
	if ruleFile == "" {
		ruleFile = cfg.RulesFile
	}
	if ruleFile != "" {
		ruleEngine := rules.NewEngine()
		if err := ruleEngine.Load(ruleFile); err != nil {
			return nil, nil, err
		}
		eng.WithRules(ruleEngine)
	}

	restConfig, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}
	kubeClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	var usage collector.UsageSource
	if prometheusURL != "" {
		usage, err = collector.NewPrometheusSource(prometheusURL)
		if err != nil {
			return nil, nil, err
		}
	} else {
		metricsClient, err := metricsv.NewForConfig(restConfig)
		if err != nil {
			klog.Warningf("Metrics client unavailable, usage rules disabled: %v", err)
		} else {
			usage = collector.NewMetricsServerSource(metricsClient)
		}
	}

	col := collector.New(kubeClient, usage, currentContext())
	return eng, col, nil
}

func analyzeOnce(ctx context.Context, eng *engine.Engine, col *collector.Collector) (*report.Report, error) {
	in, err := col.Collect(ctx, namespace)
	if err != nil {
		return nil, err
	}

	normalized := normalize.Normalize(in)
	return eng.Run(normalized.Snapshot, normalized.Findings)
}

// currentContext mirrors `kubectl config current-context` for the report
// front matter
func currentContext() string {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	loadingRules.ExplicitPath = kubeconfig
	raw, err := loadingRules.Load()
	if err != nil || raw.CurrentContext == "" {
		return "unknown"
	}
	return raw.CurrentContext
}

// viewFor trims the full report to the requested section; the full report
// is its own view
func viewFor(kind string, rep *report.Report) interface{} {
	switch kind {
	case "probe":
		return struct {
			Meta     report.Metadata  `json:"meta"`
			Timings  interface{}      `json:"probe_timings"`
			Findings []models.Finding `json:"findings"`
		}{rep.Meta, rep.ProbeTimings, filterFindings(rep.Findings, "probe")}
	case "resource":
		return struct {
			Meta            report.Metadata         `json:"meta"`
			Resources       interface{}             `json:"resources"`
			QoSDistribution map[models.QoSClass]int `json:"qos_distribution"`
			Findings        []models.Finding        `json:"findings"`
		}{rep.Meta, rep.Resources, rep.QoSDistribution, filterFindings(rep.Findings, "resource")}
	case "pdb":
		return struct {
			Meta       report.Metadata  `json:"meta"`
			Coverage   interface{}      `json:"pdb_coverage"`
			Simulation interface{}      `json:"eviction_simulation"`
			Findings   []models.Finding `json:"findings"`
		}{rep.Meta, rep.Coverage, rep.Simulation, filterFindings(rep.Findings, "pdb")}
	default:
		return rep
	}
}

var findingGroups = map[string][]string{
	"probe": {
		models.CodeMissingStartupProbe,
		models.CodeMissingLivenessProbe,
		models.CodeMissingReadiness,
		models.CodeAggressiveProbe,
		models.CodeInsufficientWindow,
	},
	"resource": {
		models.CodeRequestExceedsLimit,
		models.CodeAsymmetricResources,
		models.CodeNoResourceSpec,
		models.CodeInvalidMemorySuffix,
		models.CodeUsageElevated,
		models.CodeUsageNearLimit,
		models.CodeMalformedQuantity,
		models.CodeMalformedPod,
	},
	"pdb": {
		models.CodeNoPDBCoverage,
		models.CodePDBBlocksEvictions,
		models.CodeInvalidPDBSpec,
	},
}

func filterFindings(findings []models.Finding, group string) []models.Finding {
	codes := findingGroups[group]
	out := []models.Finding{}
	for _, f := range findings {
		for _, code := range codes {
			if f.Code == code {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
