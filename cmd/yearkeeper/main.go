// Command yearkeeper wires the year-resolution pipeline end to end:
// load configuration, build every cache/store/provider collaborator,
// snapshot the library, run the Batch Processor over it, then save
// every cache and print the run summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/sundial-audio/yearkeeper/apiorchestrator"
	"github.com/sundial-audio/yearkeeper/batch"
	"github.com/sundial-audio/yearkeeper/cache"
	"github.com/sundial-audio/yearkeeper/config"
	"github.com/sundial-audio/yearkeeper/decision"
	"github.com/sundial-audio/yearkeeper/httpexec"
	"github.com/sundial-audio/yearkeeper/library"
	"github.com/sundial-audio/yearkeeper/pending"
	"github.com/sundial-audio/yearkeeper/ratelimit"
	"github.com/sundial-audio/yearkeeper/reportsrv"
	"github.com/sundial-audio/yearkeeper/scoring"
	"github.com/sundial-audio/yearkeeper/snapshot"
	"github.com/sundial-audio/yearkeeper/store"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

func main() {
	force := flag.Bool("force", false, "bypass the cache-equals-dominant skip (guardrails still apply)")
	dryRun := flag.Bool("dry-run", false, "record intended track mutations instead of performing them")
	libraryPath := flag.String("library", "", "path to the JSON library file (overrides music_library_path)")
	flag.Parse()

	config.Load()
	if *dryRun {
		viper.Set("dry_run", true)
	}

	logger := log.New(os.Stdout, "yearkeeper: ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	libPath := *libraryPath
	if libPath == "" {
		libPath = viper.GetString("music_library_path")
	}
	baseClient, err := library.NewJSONClient(libPath)
	if err != nil {
		logger.Fatalf("opening library: %v", err)
	}
	var libClient library.Client = baseClient
	var dryRunWrapper *library.DryRun
	if viper.GetBool("dry_run") {
		dryRunWrapper = library.NewDryRun(baseClient)
		libClient = dryRunWrapper
	}

	cacheOrch, err := cache.NewOrchestrator()
	if err != nil {
		logger.Fatalf("building cache orchestrator: %v", err)
	}
	cacheOrch.LoadAll()

	pendingStore := pending.New(
		viper.GetString("pending_verification_file"),
		viper.GetInt("year_retrieval.processing.pending_verification_interval_days"),
		viper.GetInt("year_retrieval.processing.prerelease_recheck_days"),
		viper.GetInt("pending_verification.auto_verify_days"),
	)
	if err := pendingStore.LoadFromDisk(); err != nil {
		logger.Printf("loading pending store: %v", err)
	}

	changelogStore, err := store.New(viper.GetString("changelog_db_path"))
	if err != nil {
		logger.Fatalf("opening changelog store: %v", err)
	}
	if err := changelogStore.Initialize(); err != nil {
		logger.Fatalf("initializing changelog store: %v", err)
	}
	defer changelogStore.Close()

	limiters, err := buildRateLimiters()
	if err != nil {
		logger.Fatalf("building rate limiters: %v", err)
	}

	userAgent := fmt.Sprintf(
		"%s (%s)",
		viper.GetString("year_retrieval.api_auth.musicbrainz_app_name"),
		viper.GetString("year_retrieval.api_auth.contact_email"),
	)
	executor := httpexec.New(httpexec.Config{
		MaxRetries:    viper.GetInt("max_retries"),
		BaseDelay:     time.Duration(viper.GetFloat64("retry_delay_seconds") * float64(time.Second)),
		Timeout:       30 * time.Second,
		UserAgent:     userAgent,
		ResponseCache: cacheOrch.Generic,
	})

	scorer := scoring.New(scoring.LoadWeights())

	orchestrator := apiorchestrator.New(
		executor,
		limiters,
		scorer,
		cacheOrch,
		pendingStore,
		apiOrchestratorConfig(),
		viper.GetString("year_retrieval.api_auth.discogs_token"),
		viper.GetString("year_retrieval.api_auth.lastfm_api_key"),
		"US",
		viper.GetStringSlice("year_retrieval.reissue_detection.reissue_keywords"),
	)

	determinator := decision.NewDeterminator(cacheOrch.AlbumYear, orchestrator, pendingStore, determinatorConfig())

	processor := batch.NewProcessor(determinator, libClient, changelogStore, cacheOrch, batchConfig(*force))

	snapshotMgr := snapshot.NewManager(baseClient, snapshotConfig())

	reportServer := reportsrv.New(pendingStore, limiters, cacheOrch.APIResponses, cacheOrch.Generic)
	if viper.GetBool("report_server.enabled") {
		addr := viper.GetString("report_server.host") + ":" + viper.GetString("report_server.port")
		go func() {
			if err := http.ListenAndServe(addr, reportServer.Handler()); err != nil {
				logger.Printf("report server stopped: %v", err)
			}
		}()
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	cacheOrch.StartBackgroundSweep(sweepCtx)

	tracks, err := snapshotMgr.Load(ctx, time.Now())
	if err != nil {
		logger.Fatalf("loading library snapshot: %v", err)
	}
	logger.Printf("loaded %d tracks", len(tracks))

	runErr := processor.Run(ctx, tracks)
	if runErr != nil {
		logger.Printf("batch run ended early: %v", runErr)
	}

	stopSweep()

	if err := cacheOrch.SaveAll(); err != nil {
		logger.Printf("saving caches: %v", err)
	}
	if err := pendingStore.Flush(); err != nil {
		logger.Printf("flushing pending store: %v", err)
	}
	if err := pendingStore.UpdateVerificationTimestamp(); err != nil {
		logger.Printf("updating auto-verify timestamp: %v", err)
	}

	reportPath := viper.GetString("reporting.problematic_albums_path")
	minAttempts := viper.GetInt("reporting.min_attempts_for_report")
	if err := pendingStore.GenerateProblematicAlbumsReport(reportPath, minAttempts); err != nil {
		logger.Printf("generating problematic-albums report: %v", err)
	}

	pendingCount := len(pendingStore.GetAllPendingAlbums())
	dryRunNote := ""
	if dryRunWrapper != nil {
		dryRunNote = fmt.Sprintf(", %d dry-run actions recorded", len(dryRunWrapper.Actions))
	}
	logger.Printf("run complete: %d albums pending verification%s", pendingCount, dryRunNote)

	if runErr != nil {
		os.Exit(1)
	}
}

// buildRateLimiters constructs one moving-window limiter per provider
// from year_retrieval.rate_limits.
func buildRateLimiters() (map[string]*ratelimit.Limiter, error) {
	limiters := make(map[string]*ratelimit.Limiter)

	specs := []struct {
		name    string
		rpm     float64
		windowS float64
	}{
		{"discogs", viper.GetFloat64("year_retrieval.rate_limits.discogs_requests_per_minute"), 60},
		{"musicbrainz", viper.GetFloat64("year_retrieval.rate_limits.musicbrainz_requests_per_second"), 1},
		{"lastfm", viper.GetFloat64("year_retrieval.rate_limits.lastfm_requests_per_second"), 1},
		{"itunes", viper.GetFloat64("year_retrieval.rate_limits.itunes_requests_per_second"), 1},
	}

	for _, s := range specs {
		requestsPerWindow := int(s.rpm)
		if requestsPerWindow < 1 {
			requestsPerWindow = 1
		}
		limiter, err := ratelimit.New(s.name, requestsPerWindow, s.windowS)
		if err != nil {
			return nil, fmt.Errorf("building %s limiter: %w", s.name, err)
		}
		limiters[s.name] = limiter
	}
	return limiters, nil
}

func apiOrchestratorConfig() apiorchestrator.Config {
	priorities := make(map[textnorm.Script]apiorchestrator.ScriptPriority)
	for _, script := range []textnorm.Script{
		textnorm.ScriptCyrillic, textnorm.ScriptCJK, textnorm.ScriptArabic,
		textnorm.ScriptHebrew, textnorm.ScriptGreek, textnorm.ScriptThai,
		textnorm.ScriptDevanagari, textnorm.ScriptMixed,
	} {
		key := "year_retrieval.script_api_priorities." + string(script)
		primary := viper.GetStringSlice(key + ".primary")
		fallback := viper.GetStringSlice(key + ".fallback")
		if len(primary) == 0 && len(fallback) == 0 {
			def := viper.GetStringSlice("year_retrieval.script_api_priorities.default.primary")
			defFallback := viper.GetStringSlice("year_retrieval.script_api_priorities.default.fallback")
			primary, fallback = def, defFallback
		}
		priorities[script] = apiorchestrator.ScriptPriority{Primary: primary, Fallback: fallback}
	}

	return apiorchestrator.Config{
		PreferredAPI:        viper.GetString("year_retrieval.preferred_api"),
		UseLastFM:           viper.GetBool("year_retrieval.api_auth.use_lastfm"),
		ScriptPriorities:    priorities,
		SkipPrerelease:      viper.GetBool("year_retrieval.processing.skip_prerelease"),
		FutureYearThreshold: viper.GetInt("year_retrieval.processing.future_year_threshold"),
		Resolver:            resolverConfig(),
		CacheTTLDays:        viper.GetInt("year_retrieval.processing.cache_ttl_days"),
	}
}

func resolverConfig() scoring.ResolverConfig {
	return scoring.ResolverConfig{
		MinValidYear:               viper.GetInt("year_retrieval.logic.min_valid_year"),
		CurrentYear:                time.Now().Year(),
		DefinitiveScoreThreshold:   viper.GetFloat64("year_retrieval.logic.definitive_score_threshold"),
		DefinitiveScoreDiff:        viper.GetFloat64("year_retrieval.logic.definitive_score_diff"),
		MinYearGapForReissueDetect: viper.GetInt("year_retrieval.logic.min_year_gap_for_reissue_detect"),
		MinReissueYearDifference:   viper.GetInt("year_retrieval.logic.min_reissue_year_difference"),
	}
}

func determinatorConfig() decision.DeterminatorConfig {
	return decision.DeterminatorConfig{
		Consistency: decision.ConsistencyConfig{
			DominanceMinShare: viper.GetFloat64("year_retrieval.logic.dominance_min_share"),
			ParityThreshold:   viper.GetInt("year_retrieval.logic.parity_threshold"),
			CurrentYear:       time.Now().Year(),
		},
		SuspiciousAlbumNameMaxLength:      viper.GetInt("year_retrieval.logic.suspicious_album_name_max_length"),
		SuspiciousAlbumNameMinUniqueYears: viper.GetInt("year_retrieval.logic.suspicious_album_name_min_unique_years"),
		PrereleaseRecheckDays:             viper.GetInt("year_retrieval.processing.prerelease_recheck_days"),
		FutureYearThreshold:               viper.GetInt("year_retrieval.processing.future_year_threshold"),
		Fallback: decision.FallbackConfig{
			Enabled:                 viper.GetBool("year_retrieval.fallback.enabled"),
			AbsurdYearThreshold:     viper.GetInt("year_retrieval.logic.absurd_year_threshold"),
			YearDifferenceThreshold: viper.GetInt("year_retrieval.fallback.year_difference_threshold"),
			SpecialPatterns:         viper.GetStringSlice("album_type_detection.special_patterns"),
			CompilationPatterns:     viper.GetStringSlice("album_type_detection.compilation_patterns"),
			ReissuePatterns:         viper.GetStringSlice("album_type_detection.reissue_patterns"),
		},
	}
}

func batchConfig(force bool) batch.Config {
	return batch.Config{
		BatchSize:           viper.GetInt("year_retrieval.processing.batch_size"),
		DelayBetweenBatches: time.Duration(viper.GetFloat64("year_retrieval.processing.delay_between_batches") * float64(time.Second)),
		AdaptiveDelay:       viper.GetBool("year_retrieval.processing.adaptive_delay"),
		ConcurrencyLimit:    min(viper.GetInt("apple_script_concurrency"), viper.GetInt("year_retrieval.rate_limits.concurrent_api_calls")),
		TrackRetryAttempts:  viper.GetInt("year_retrieval.processing.track_retry_attempts"),
		TrackRetryDelay:     time.Duration(viper.GetFloat64("year_retrieval.processing.track_retry_delay") * float64(time.Second)),
		Force:               force,
	}
}

func snapshotConfig() snapshot.Config {
	return snapshot.Config{
		Enabled:       viper.GetBool("caching.library_snapshot.enabled"),
		DeltaEnabled:  viper.GetBool("caching.library_snapshot.delta_enabled"),
		Path:          viper.GetString("caching.library_snapshot.cache_file"),
		MaxAge:        time.Duration(viper.GetInt("caching.library_snapshot.max_age_hours")) * time.Hour,
		Compress:      viper.GetBool("caching.library_snapshot.compress"),
		CompressLevel: viper.GetInt("caching.library_snapshot.compress_level"),
		IDsBatchSize:  viper.GetInt("batch_processing.ids_batch_size"),
	}
}

