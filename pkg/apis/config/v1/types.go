package v1

import "time"

// RadarConfig is the top-level configuration file for prradar.
type RadarConfig struct {
	Analyzer AnalyzerConfig `yaml:"analyzer"`
}

// AnalyzerConfig tunes the risk analysis engine. Zero values fall back to
// the defaults below; the scoring weights themselves are not configurable.
type AnalyzerConfig struct {
	// CriticalPaths are substrings that mark a changed file as touching a
	// critical path.
	CriticalPaths []string `yaml:"criticalPaths,omitempty"`

	// ExternalAPIPatterns are regular expressions matched against patches
	// and PR descriptions to count external dependencies.
	ExternalAPIPatterns []string `yaml:"externalApiPatterns,omitempty"`

	// ConcurrentAnalyses bounds how many PR fetch-groups may be in flight
	// at once across the whole process.
	ConcurrentAnalyses int `yaml:"concurrentAnalyses,omitempty"`

	// ReportTTL is how long a repository report is served from cache
	// before being recomputed.
	ReportTTL time.Duration `yaml:"reportTTL,omitempty"`

	// MaxPRs caps how many PRs a single repository run will analyze when
	// the caller does not say.
	MaxPRs int `yaml:"maxPRs,omitempty"`
}

const (
	DefaultConcurrentAnalyses = 10
	DefaultReportTTL          = time.Hour
	DefaultMaxPRs             = 50
)

// DefaultAnalyzerConfig mirrors the paths and patterns the engine shipped
// with; a config file replaces them wholesale rather than merging.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		CriticalPaths: []string{
			"/auth/", "/security/", "/payment/", "/api/", "/core/",
			"package.json", "requirements.txt", "go.mod", "Dockerfile",
			".github/workflows/",
		},
		ExternalAPIPatterns: []string{
			`https?://[^\s/$.?#].[^\s]*`,
			`api\.[^\s]*\.com`,
			`\.googleapis\.com`,
			`\.amazonaws\.com`,
			`\.azure\.com`,
		},
		ConcurrentAnalyses: DefaultConcurrentAnalyses,
		ReportTTL:          DefaultReportTTL,
		MaxPRs:             DefaultMaxPRs,
	}
}

// WithDefaults fills any unset field from DefaultAnalyzerConfig.
func (c AnalyzerConfig) WithDefaults() AnalyzerConfig {
	defaults := DefaultAnalyzerConfig()
	if len(c.CriticalPaths) == 0 {
		c.CriticalPaths = defaults.CriticalPaths
	}
	if len(c.ExternalAPIPatterns) == 0 {
		c.ExternalAPIPatterns = defaults.ExternalAPIPatterns
	}
	if c.ConcurrentAnalyses <= 0 {
		c.ConcurrentAnalyses = defaults.ConcurrentAnalyses
	}
	if c.ReportTTL <= 0 {
		c.ReportTTL = defaults.ReportTTL
	}
	if c.MaxPRs <= 0 {
		c.MaxPRs = defaults.MaxPRs
	}
	return c
}
