package cmds

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/inheritance10/sumbench/pkg/config"
	"github.com/inheritance10/sumbench/pkg/cputime"
	"github.com/inheritance10/sumbench/pkg/logflags"
	"github.com/inheritance10/sumbench/pkg/report"
	"github.com/inheritance10/sumbench/pkg/server"
	"github.com/inheritance10/sumbench/pkg/store"
	"github.com/inheritance10/sumbench/pkg/sumbench"
	"github.com/inheritance10/sumbench/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configPath overrides ~/.sumbench/config.yml.
	configPath string

	// resultsFile receives a copy of each report.
	resultsFile string
	// record saves each run to MongoDB.
	record bool
	// cpuProfileDir is where cpu.pprof is written.
	cpuProfileDir string

	repeatCount  int
	listenAddr   string
	historyLimit int64
	explain      bool
	writeDefault bool
)

const sumbenchLongDesc = `sumbench adds the integers 1 through 100000000 in a plain loop and
reports the sum and the CPU time the loop took:

  Sum: 5000000050000000
  Time: 0.045 seconds

Run without arguments it prints exactly those two lines. The subcommands repeat
the measurement, record it in MongoDB, or serve the CPU-bound and I/O-bound
demo endpoints over HTTP.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "sumbench",
		Short:         "Times the sum of 1..100000000 on the process CPU clock.",
		Long:          sumbenchLongDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logflags.Setup(log, logOutput, logDest)
		},
		RunE: rootCmd,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output: bench, store, server, config.")
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor.")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.sumbench/config.yml).")
	addRunFlags(rootCommand.Flags())

	// 'repeat' subcommand.
	repeatCommand := &cobra.Command{
		Use:   "repeat",
		Short: "Run the benchmark several times and summarise the timings.",
		Long: `Runs the benchmark -n times, one after the other, printing each two-line
report followed by statistics over the measured CPU times.`,
		Args: cobra.NoArgs,
		RunE: repeatCmd,
	}
	addRunFlags(repeatCommand.Flags())
	repeatCommand.Flags().IntVarP(&repeatCount, "count", "n", 2, "Number of runs.")
	rootCommand.AddCommand(repeatCommand)

	// 'serve' subcommand.
	serveCommand := &cobra.Command{
		Use:   "serve",
		Short: "Serve the /cpu, /ping, /job and /sum endpoints.",
		Long: `Starts an HTTP service until interrupted.

  GET /cpu   CPU-bound: sums 0..cpu-bound inside the request
  GET /ping  I/O-bound: sleeps ping-delay, then answers pong
  GET /job   slow worker: sleeps job-delay, then answers Ok
  GET /sum   runs the full benchmark and returns its report`,
		Args: cobra.NoArgs,
		RunE: serveCmd,
	}
	serveCommand.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (default from config).")
	rootCommand.AddCommand(serveCommand)

	// 'history' subcommand.
	historyCommand := &cobra.Command{
		Use:   "history",
		Short: "List runs recorded with --record.",
		Args:  cobra.NoArgs,
		RunE:  historyCmd,
	}
	historyCommand.Flags().Int64Var(&historyLimit, "limit", 10, "Maximum number of runs to list.")
	historyCommand.Flags().BoolVar(&explain, "explain", false, "Also show how the server executes the listing query.")
	rootCommand.AddCommand(historyCommand)

	// 'config' subcommand.
	configCommand := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration.",
		Args:  cobra.NoArgs,
		RunE:  configCmd,
	}
	configCommand.Flags().BoolVar(&writeDefault, "write-default", false, "Write a commented default config file instead.")
	rootCommand.AddCommand(configCommand)

	// 'version' subcommand.
	var versionVerbose = false
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sumbench\n%s\n", version.Current())
			if versionVerbose {
				fmt.Fprint(cmd.OutOrStdout(), version.Modules())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

// commandContext returns the context cmd was executed with, if any.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func addRunFlags(flags *pflag.FlagSet) {
	flags.StringVar(&resultsFile, "results-file", "", "Also write reports to this file (default from config).")
	flags.BoolVar(&record, "record", false, "Save each run to MongoDB.")
	flags.StringVar(&cpuProfileDir, "cpuprofile", "", "Write a CPU profile (cpu.pprof) into this directory.")
}

// loadConfig reads the config file. The bare benchmark never calls it,
// so a broken config file cannot stop the two-line report.
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configPath)
}

func rootCmd(cmd *cobra.Command, args []string) error {
	results, err := runBenchmarks(cmd, 1, resultsFile)
	if err != nil {
		return err
	}
	return recordRuns(commandContext(cmd), results)
}

func repeatCmd(cmd *cobra.Command, args []string) error {
	if repeatCount < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", repeatCount)
	}
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	filename := resultsFile
	if filename == "" {
		filename = conf.ResultsFile
	}
	results, err := runBenchmarks(cmd, repeatCount, filename)
	if err != nil {
		return err
	}
	rs := make([]sumbench.Result, len(results))
	for i := range results {
		rs[i] = results[i].result
	}
	s, err := report.Summarize(rs)
	if err != nil {
		return err
	}
	if err := report.PrintSummary(cmd.OutOrStdout(), s); err != nil {
		return err
	}
	return recordRuns(commandContext(cmd), results)
}

type timedResult struct {
	result    sumbench.Result
	startedAt time.Time
}

// runBenchmarks runs the benchmark n times, writing each report to the
// command's output and, when filename is set, to that file.
func runBenchmarks(cmd *cobra.Command, n int, filename string) ([]timedResult, error) {
	if cpuProfileDir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cpuProfileDir), profile.Quiet, profile.NoShutdownHook).Stop()
	}

	out, err := report.NewTee(cmd.OutOrStdout(), filename)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	progress := isatty.IsTerminal(os.Stderr.Fd()) && n > 1
	results := make([]timedResult, 0, n)
	for i := 0; i < n; i++ {
		if progress {
			fmt.Fprintf(os.Stderr, "run %d/%d\n", i+1, n)
		}
		startedAt := time.Now()
		if err := out.WriteHeader(fmt.Sprintf("sumbench run %d/%d", i+1, n), startedAt); err != nil {
			return nil, err
		}
		r := sumbench.Run(cputime.Process)
		if err := r.Report(out); err != nil {
			return nil, err
		}
		results = append(results, timedResult{result: r, startedAt: startedAt})
	}
	return results, nil
}

func recordRuns(ctx context.Context, results []timedResult) error {
	if !record {
		return nil
	}
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := connectStore(ctx, conf)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	if _, err := s.EnsureIndexes(ctx); err != nil {
		return err
	}
	for _, tr := range results {
		run := store.NewRun(tr.result, tr.startedAt)
		if err := s.Save(ctx, &run); err != nil {
			return err
		}
	}
	return nil
}

func connectStore(ctx context.Context, conf *config.Config) (*store.Store, error) {
	return store.Connect(ctx, store.Options{
		URI:         conf.Mongo.URI,
		Database:    conf.Mongo.Database,
		Collection:  conf.Mongo.Collection,
		MaxPoolSize: conf.Mongo.MaxPoolSize,
		Timeout:     conf.Mongo.ConnectTimeout,
	})
}

func serveCmd(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	addr := listenAddr
	if addr == "" {
		addr = conf.Server.Listen
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("couldn't start listener: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "sumbench service running on %s\n", listener.Addr())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(server.Config{
		CPUBound:  conf.Server.CPUBound,
		PingDelay: conf.Server.PingDelay,
		JobDelay:  conf.Server.JobDelay,
	}).Run(ctx, listener)
}

func historyCmd(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	s, err := connectStore(ctx, conf)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	runs, err := s.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	agg, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	if err := printHistory(cmd.OutOrStdout(), runs, agg); err != nil {
		return err
	}
	if !explain {
		return nil
	}
	plan, err := s.ExplainRecent(ctx, historyLimit)
	if err != nil {
		return err
	}
	return printPlan(cmd.OutOrStdout(), plan)
}

func printPlan(w io.Writer, p store.Plan) error {
	fmt.Fprintf(w, "\nQuery plan: %s", p.Stage)
	if p.IndexName != "" {
		fmt.Fprintf(w, " (%s)", p.IndexName)
	}
	fmt.Fprintf(w, "\n  examined %d docs, %d keys; returned %d in %d ms\n",
		p.DocsExamined, p.KeysExamined, p.Returned, p.ExecutionMillis)
	for _, warning := range p.Warnings() {
		if _, err := fmt.Fprintf(w, "  warning: %s\n", warning); err != nil {
			return err
		}
	}
	return nil
}

func printHistory(w io.Writer, runs []store.Run, agg store.Aggregate) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tHOST\tSUM\tCPU (s)\tWALL (s)\tGO")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3f\t%.3f\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Host, r.Sum, r.ElapsedSeconds, r.WallSeconds, r.GoVersion)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nRecorded runs: %d  avg %.3f  min %.3f  max %.3f  distinct sums %v\n",
		agg.Runs, agg.AvgElapsed, agg.MinElapsed, agg.MaxElapsed, agg.DistinctSums)
	return err
}

func configCmd(cmd *cobra.Command, args []string) error {
	if writeDefault {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.GetConfigFilePath("config.yml"); err != nil {
				return err
			}
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	}
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
