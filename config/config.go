// Package config loads yearkeeper's YAML configuration with viper: a
// .env file is loaded first (non-fatal if missing), defaults are
// registered for every optional key, then the YAML file (if present)
// overrides them, and environment variables can override everything
// via AutomaticEnv + a dot-to-underscore key replacer.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes viper with defaults, the YAML config file, and
// environment overrides, then validates required keys. It terminates the
// process (via log.Fatalf) on a missing required section.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found or error loading it; using defaults and environment variables")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("error reading config file: %v", err)
		}
		log.Println("config file not found, using defaults and environment variables")
	} else {
		log.Println("using config file:", viper.ConfigFileUsed())
	}

	for _, key := range viper.AllKeys() {
		if s, ok := viper.Get(key).(string); ok && strings.Contains(s, "${") {
			viper.Set(key, os.ExpandEnv(s))
		}
	}

	if err := validateRequired(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}
}

func setDefaults() {
	viper.SetDefault("music_library_path", "")
	viper.SetDefault("apple_scripts_dir", "")
	viper.SetDefault("logs_base_dir", "./logs")
	viper.SetDefault("dry_run", false)
	viper.SetDefault("apple_script_concurrency", 4)

	viper.SetDefault("applescript_timeouts.default", 30)
	viper.SetDefault("applescript_timeouts.full_library_fetch", 300)
	viper.SetDefault("applescript_timeouts.single_artist_fetch", 60)
	viper.SetDefault("applescript_timeouts.batch_update", 60)
	viper.SetDefault("applescript_timeouts.ids_batch_fetch", 120)

	viper.SetDefault("applescript_rate_limit.enabled", true)
	viper.SetDefault("applescript_rate_limit.requests_per_window", 20)
	viper.SetDefault("applescript_rate_limit.window_size_seconds", 1.0)

	viper.SetDefault("applescript_retry.max_retries", 3)
	viper.SetDefault("applescript_retry.base_delay_seconds", 1.0)
	viper.SetDefault("applescript_retry.max_delay_seconds", 10.0)
	viper.SetDefault("applescript_retry.jitter_range", 0.2)
	viper.SetDefault("applescript_retry.operation_timeout_seconds", 30)

	viper.SetDefault("max_retries", 3)
	viper.SetDefault("retry_delay_seconds", 1.0)

	viper.SetDefault("batch_processing.ids_batch_size", 200)
	viper.SetDefault("batch_processing.batch_size", 20)

	viper.SetDefault("year_retrieval.enabled", true)
	viper.SetDefault("year_retrieval.preferred_api", "musicbrainz")

	viper.SetDefault("year_retrieval.api_auth.discogs_token", "")
	viper.SetDefault("year_retrieval.api_auth.musicbrainz_app_name", "yearkeeper")
	viper.SetDefault("year_retrieval.api_auth.contact_email", "contact@example.invalid")
	viper.SetDefault("year_retrieval.api_auth.lastfm_api_key", "")
	viper.SetDefault("year_retrieval.api_auth.use_lastfm", true)

	viper.SetDefault("year_retrieval.rate_limits.discogs_requests_per_minute", 60)
	viper.SetDefault("year_retrieval.rate_limits.musicbrainz_requests_per_second", 1.0)
	viper.SetDefault("year_retrieval.rate_limits.lastfm_requests_per_second", 5.0)
	viper.SetDefault("year_retrieval.rate_limits.itunes_requests_per_second", 3.0)
	viper.SetDefault("year_retrieval.rate_limits.concurrent_api_calls", 4)

	viper.SetDefault("year_retrieval.processing.batch_size", 20)
	viper.SetDefault("year_retrieval.processing.delay_between_batches", 1.0)
	viper.SetDefault("year_retrieval.processing.adaptive_delay", true)
	viper.SetDefault("year_retrieval.processing.cache_ttl_days", 180)
	viper.SetDefault("year_retrieval.processing.pending_verification_interval_days", 30)
	viper.SetDefault("year_retrieval.processing.skip_prerelease", true)
	viper.SetDefault("year_retrieval.processing.future_year_threshold", 1)
	viper.SetDefault("year_retrieval.processing.prerelease_recheck_days", 14)
	viper.SetDefault("year_retrieval.processing.track_retry_attempts", 3)
	viper.SetDefault("year_retrieval.processing.track_retry_delay", 0.5)

	viper.SetDefault("year_retrieval.logic.min_valid_year", 1900)
	viper.SetDefault("year_retrieval.logic.absurd_year_threshold", 1970)
	viper.SetDefault("year_retrieval.logic.suspicion_threshold_years", 5)
	viper.SetDefault("year_retrieval.logic.definitive_score_threshold", 70)
	viper.SetDefault("year_retrieval.logic.definitive_score_diff", 10)
	viper.SetDefault("year_retrieval.logic.min_confidence_for_new_year", 50)
	viper.SetDefault("year_retrieval.logic.preferred_countries", []string{"US", "GB", "XW"})
	viper.SetDefault("year_retrieval.logic.major_market_codes", []string{"US", "GB", "DE", "JP", "FR"})
	viper.SetDefault("year_retrieval.logic.dominance_min_share", 0.5)
	viper.SetDefault("year_retrieval.logic.parity_threshold", 1)
	viper.SetDefault("year_retrieval.logic.suspicious_album_name_max_length", 3)
	viper.SetDefault("year_retrieval.logic.suspicious_album_name_min_unique_years", 3)
	viper.SetDefault("year_retrieval.logic.min_year_gap_for_reissue_detect", 4)
	viper.SetDefault("year_retrieval.logic.min_reissue_year_difference", 4)

	setScoringDefaults()

	viper.SetDefault("year_retrieval.reissue_detection.reissue_keywords",
		[]string{"reissue", "remaster", "remastered", "anniversary", "deluxe edition", "expanded edition"})

	viper.SetDefault("year_retrieval.fallback.enabled", true)
	viper.SetDefault("year_retrieval.fallback.year_difference_threshold", 5)
	viper.SetDefault("year_retrieval.fallback.trust_api_score_threshold", 70)

	viper.SetDefault("album_type_detection.special_patterns", []string{"special edition", "bonus tracks"})
	viper.SetDefault("album_type_detection.compilation_patterns", []string{"greatest hits", "best of", "collection", "anthology"})
	viper.SetDefault("album_type_detection.reissue_patterns", []string{"reissue", "remaster", "remastered", "anniversary edition"})
	viper.SetDefault("album_type_detection.soundtrack_patterns", []string{"soundtrack", "original motion picture", "ost"})
	viper.SetDefault("album_type_detection.various_artists_names", []string{"various artists", "various", "va"})

	viper.SetDefault("year_retrieval.script_api_priorities.default.primary", []string{"musicbrainz", "discogs", "itunes"})
	viper.SetDefault("year_retrieval.script_api_priorities.default.fallback", []string{"lastfm"})
	viper.SetDefault("year_retrieval.script_api_priorities.cyrillic.primary", []string{"musicbrainz", "lastfm"})
	viper.SetDefault("year_retrieval.script_api_priorities.cyrillic.fallback", []string{"discogs", "itunes"})
	viper.SetDefault("year_retrieval.script_api_priorities.cjk.primary", []string{"musicbrainz", "itunes"})
	viper.SetDefault("year_retrieval.script_api_priorities.cjk.fallback", []string{"discogs", "lastfm"})

	viper.SetDefault("caching.default_ttl_seconds", 3600)
	viper.SetDefault("caching.album_cache_sync_interval", 300)
	viper.SetDefault("caching.cleanup_interval_seconds", 600)
	viper.SetDefault("caching.negative_result_ttl", 30*86400)
	viper.SetDefault("caching.api_result_cache_path", "./data/api_cache.json")
	viper.SetDefault("caching.generic_cache_max_entries", 5000)
	viper.SetDefault("caching.library_snapshot.enabled", true)
	viper.SetDefault("caching.library_snapshot.delta_enabled", true)
	viper.SetDefault("caching.library_snapshot.cache_file", "./data/snapshot.json")
	viper.SetDefault("caching.library_snapshot.max_age_hours", 24)
	viper.SetDefault("caching.library_snapshot.compress", false)
	viper.SetDefault("caching.library_snapshot.compress_level", 6)

	viper.SetDefault("pending_verification.auto_verify_days", 7)

	viper.SetDefault("album_years_cache_file", "./data/album_years.csv")
	viper.SetDefault("pending_verification_file", "./data/pending.csv")
	viper.SetDefault("generic_cache_file", "./data/generic_cache.json")
	viper.SetDefault("changelog_db_path", "./data/changelog.db")

	viper.SetDefault("reporting.problematic_albums_path", "./data/problematic_albums.csv")
	viper.SetDefault("reporting.min_attempts_for_report", 3)
	viper.SetDefault("reporting.change_display_mode", "summary")

	viper.SetDefault("report_server.enabled", false)
	viper.SetDefault("report_server.host", "localhost")
	viper.SetDefault("report_server.port", "8088")
}

func setScoringDefaults() {
	p := "year_retrieval.scoring."
	defaults := map[string]any{
		"base_score_musicbrainz":        50,
		"base_score_discogs":            45,
		"base_score_lastfm":             35,
		"base_score_itunes":             40,
		"artist_exact_match_bonus":      15,
		"album_exact_match_bonus":       15,
		"perfect_match_bonus":           10,
		"album_variation_bonus":         5,
		"album_substring_penalty":       -10,
		"album_unrelated_penalty":       -30,
		"mb_release_group_match_bonus":  8,
		"type_album_bonus":              10,
		"type_ep_single_penalty":        -8,
		"type_compilation_live_penalty": -15,
		"status_official_bonus":         8,
		"status_bootleg_promo_penalty":  -20,
		"reissue_penalty":               -12,
		"year_diff_scale_penalty_cap":   -20,
		"year_before_activity_penalty":  -15,
		"year_after_activity_penalty":   -10,
		"year_near_begin_bonus":         5,
		"artist_region_match_bonus":     6,
		"major_market_bonus":            4,
		"source_bonus_musicbrainz":      5,
		"source_bonus_discogs":          3,
		"source_bonus_itunes":           2,
		"future_year_penalty":           -25,
		"cross_script_artist_penalty":   -10,
		"soundtrack_compensation":       8,
	}
	for k, v := range defaults {
		viper.SetDefault(p+k, v)
	}
}

func validateRequired() error {
	required := []string{"year_retrieval.enabled"}
	missing := make([]string, 0)
	for _, key := range required {
		if !viper.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}
