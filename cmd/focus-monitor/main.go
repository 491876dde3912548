package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sahayak-ai/focus-monitor/internal/config"
	"github.com/sahayak-ai/focus-monitor/internal/detect"
	"github.com/sahayak-ai/focus-monitor/internal/engine"
	"github.com/sahayak-ai/focus-monitor/internal/enrollment"
	"github.com/sahayak-ai/focus-monitor/internal/focus"
	"github.com/sahayak-ai/focus-monitor/internal/logging"
	"github.com/sahayak-ai/focus-monitor/internal/match"
	"github.com/sahayak-ai/focus-monitor/internal/objectness"
	"github.com/sahayak-ai/focus-monitor/internal/report"
	"github.com/sahayak-ai/focus-monitor/internal/session"
	"github.com/sahayak-ai/focus-monitor/internal/source"
)

// CLI flags
var (
	photosFlag        string
	framesFlag        string
	cascadeDirFlag    string
	reportDirFlag     string
	configFlag        string
	stopFileFlag      string
	durationFlag      int
	thresholdFlag     int
	mobileFlag        bool
	checkIntervalFlag time.Duration
)

// rootCmd is the main Cobra command for the monitor.
var rootCmd = &cobra.Command{
	Use:   "focus-monitor",
	Short: "Attention monitoring over a camera frame stream",
	Long: `Focus Monitor watches a stream of camera frames for a fixed session,
matches the people it sees against enrolled reference photos, and scores
each enrolled person's attention once per check interval. At the end of
the session it writes a per-person JSON report.

Reference photos are enrolled from a directory (one sub-folder or ZIP
archive per person) or from a single ZIP archive whose top-level folders
name the people.

Examples:
  focus-monitor --photos ./students.zip --frames ./captures
  focus-monitor --photos ./refs --frames ./captures --duration 600 --threshold 60
  focus-monitor --photos ./refs --frames ./captures --enable-mobile-detection
  focus-monitor --photos ./refs --frames ./captures --config monitor_config.json`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&photosFlag, "photos", "p", "", "Directory or ZIP archive of enrolled reference photos (required)")
	rootCmd.Flags().StringVarP(&framesFlag, "frames", "f", "", "Directory of captured frames to monitor (required)")
	rootCmd.Flags().StringVar(&cascadeDirFlag, "cascade-dir", "cascades", "Directory holding the facefinder and puploc cascade files")
	rootCmd.Flags().StringVar(&reportDirFlag, "report-dir", ".", "Directory the session report is written to")
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "monitor_config.json", "Optional JSON configuration file")
	rootCmd.Flags().StringVar(&stopFileFlag, "stop-file", "monitor_stop.signal", "Path watched for an external stop request")
	rootCmd.Flags().IntVarP(&durationFlag, "duration", "d", 0, "Session duration in seconds (overrides config)")
	rootCmd.Flags().IntVarP(&thresholdFlag, "threshold", "t", 0, "Focus threshold percentage (overrides config)")
	rootCmd.Flags().BoolVar(&mobileFlag, "enable-mobile-detection", false, "Enable the phone-object heuristic")
	rootCmd.Flags().DurationVar(&checkIntervalFlag, "check-interval", 0, "Interval between checks (overrides config)")

	rootCmd.MarkFlagRequired("photos")
	rootCmd.MarkFlagRequired("frames")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	startedAt := time.Now()

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", configFlag).Msg("Failed to load configuration")
	}

	// Flags win over both the file and the environment.
	if cmd.Flags().Changed("duration") {
		cfg.DurationSeconds = durationFlag
	}
	if cmd.Flags().Changed("threshold") {
		cfg.FocusThresholdPercent = thresholdFlag
	}
	if cmd.Flags().Changed("enable-mobile-detection") {
		cfg.ObjectHeuristicEnabled = mobileFlag
	}
	if cmd.Flags().Changed("check-interval") {
		cfg.CheckInterval = checkIntervalFlag
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	roster, err := enrollment.Load(photosFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", photosFlag).Msg("Failed to load reference photos")
	}
	if roster.Len() == 0 {
		log.Fatal().Str("path", photosFlag).Msg("No enrolled people found")
	}

	detector, err := detect.NewPigoDetector(cascadeDirFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", cascadeDirFlag).Msg("Failed to load detection cascades")
	}

	matcher := match.NewMatcher(match.HistogramScorer{}, cfg.MatchThreshold)
	if err := matcher.Train(roster, detector); err != nil {
		if errors.Is(err, match.ErrNoTemplates) {
			log.Fatal().Msg("No reference photo contained a detectable face")
		}
		log.Fatal().Err(err).Msg("Failed to build identity templates")
	}

	src, err := source.NewDirSource(framesFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", framesFlag).Msg("Failed to open frame source")
	}

	var scanner engine.ObjectScanner
	if cfg.ObjectHeuristicEnabled {
		scanner = objectness.New(cfg.ObjectCooldown)
	}

	eng := engine.New(cfg, engine.Deps{
		Source:     src,
		Detector:   detector,
		Matcher:    matcher,
		Classifier: focus.NewClassifier(detector),
		Scanner:    scanner,
		Aggregator: session.NewAggregator(matcher.Persons()),
		Sink:       report.NewEmitter(reportDirFlag),
	})

	logging.NewStartupLogger("focus-monitor").
		SessionID(eng.ID()).
		Config("frames", framesFlag).
		Config("reportDir", reportDirFlag).
		Count("enrolled", roster.Len()).
		Count("durationSeconds", cfg.DurationSeconds).
		Feature("objectHeuristic", cfg.ObjectHeuristicEnabled).
		InitDuration(time.Since(startedAt)).
		Log()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Failsafe: even if the normal shutdown path never completes, the
	// report goes out exactly once before the process exits.
	defer eng.Finalize()

	go watchStopFile(ctx, stopFileFlag, eng)

	if err := eng.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Session ended with failure")
		os.Exit(1)
	}
}

// watchStopFile polls for an externally created stop file and requests
// termination when it appears. The file is removed so a stale request
// cannot stop the next session.
func watchStopFile(ctx context.Context, path string, eng *engine.Engine) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			log.Info().Str("path", path).Msg("Stop file detected")
			if err := os.Remove(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to remove stop file")
			}
			eng.Stop()
			return
		}
	}
}
