package config

import "os"

// DebugFlags bundles the process-wide debug toggles so components take
// them as an explicit dependency instead of reading global state
// directly.
type DebugFlags struct {
	All         bool
	Year        bool
	API         bool
	Cache       bool
	AppleScript bool
	Pipeline    bool
}

// LoadDebugFlags reads DEBUG_ALL/DEBUG_YEAR/DEBUG_API/DEBUG_CACHE/
// DEBUG_APPLESCRIPT/DEBUG_PIPELINE from the environment. A value of
// "1", "true", "yes", or "on" (case-insensitive) is considered set.
func LoadDebugFlags() DebugFlags {
	return DebugFlags{
		All:         envFlag("DEBUG_ALL"),
		Year:        envFlag("DEBUG_YEAR"),
		API:         envFlag("DEBUG_API"),
		Cache:       envFlag("DEBUG_CACHE"),
		AppleScript: envFlag("DEBUG_APPLESCRIPT"),
		Pipeline:    envFlag("DEBUG_PIPELINE"),
	}
}

func envFlag(name string) bool {
	switch os.Getenv(name) {
	case "1", "true", "yes", "on", "TRUE", "YES", "ON", "True", "Yes", "On":
		return true
	default:
		return false
	}
}

// Any reports whether this specific flag or the blanket "all" flag is set.
func (f DebugFlags) Any(specific bool) bool {
	return f.All || specific
}
