package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Batch     BatchConfig
	Reconcile ReconcileConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Chromium instance and the capture extension.
type BrowserConfig struct {
	Headless     bool   // default: true
	NoSandbox    bool   // default: false (set true inside Lambda/Docker)
	BrowserBin   string // overrides the Chromium binary path
	DefaultProxy string

	// ExtensionCRX is the packed SingleFile extension. When empty the
	// browser runs in direct mode and writes snapshots itself.
	ExtensionCRX string

	// ExtensionDir is where the CRX is unpacked before launch.
	ExtensionDir string // default: /tmp/unpacked_extension

	// ExtensionPage is the extension-relative page that accepts the
	// downloads.saveUrls message.
	ExtensionPage string // default: src/ui/pages/batch-save-urls.html

	// Stealth injects go-rod/stealth into direct-mode pages.
	Stealth bool

	// MaxPages bounds concurrent direct-mode captures.
	MaxPages int // default: 4

	// NavigationTimeout bounds a single direct-mode page load.
	NavigationTimeout time.Duration // default: 30s
}

// BatchConfig controls batch directories and limits.
type BatchConfig struct {
	// DownloadRoot holds one sub-directory per batch.
	DownloadRoot string // default: /tmp/snapshots

	// KeepFiles leaves batch directories on disk after the response.
	KeepFiles bool

	DefaultTimeout time.Duration // default: 300s
	MaxTimeout     time.Duration // default: 600s
	MaxURLs        int           // default: 100
}

// ReconcileConfig tunes the reconciliation loop.
type ReconcileConfig struct {
	PollInterval time.Duration // default: 1s

	// MinSettle is the minimum gap between the two observations that
	// finalize a file.
	MinSettle time.Duration // default: 500ms

	Threshold float64 // default: 0.6
	Margin    float64 // default: 0.1

	// IgnoreExisting excludes files present when the batch starts.
	IgnoreExisting bool // default: true

	PeekBytes    int64 // default: 1 MiB
	MaxFileBytes int64 // default: 64 MiB
	GzipLevel    int   // default: -1 (gzip.DefaultCompression)
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 1
	Burst             int     // default: 2
}

// WebhookConfig controls callback delivery.
type WebhookConfig struct {
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from the optional YAML file named by
// PAGESNAP_CONFIG and from environment variables. Environment variables
// take precedence over the file; both fall back to defaults.
func Load() (*Config, error) {
	src := source{}
	if path := os.Getenv("PAGESNAP_CONFIG"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}
	return src.load(), nil
}

func (s source) load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: s.str("PAGESNAP_HOST", "0.0.0.0"),
			Port: s.int("PAGESNAP_PORT", 8080),
			Mode: s.str("PAGESNAP_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:          s.bool("PAGESNAP_HEADLESS", true),
			NoSandbox:         s.bool("PAGESNAP_NO_SANDBOX", false),
			BrowserBin:        s.str("PAGESNAP_BROWSER_BIN", ""),
			DefaultProxy:      s.str("PAGESNAP_PROXY", ""),
			ExtensionCRX:      s.str("PAGESNAP_EXTENSION_CRX", ""),
			ExtensionDir:      s.str("PAGESNAP_EXTENSION_DIR", "/tmp/unpacked_extension"),
			ExtensionPage:     s.str("PAGESNAP_EXTENSION_PAGE", "src/ui/pages/batch-save-urls.html"),
			Stealth:           s.bool("PAGESNAP_STEALTH", false),
			MaxPages:          s.int("PAGESNAP_MAX_PAGES", 4),
			NavigationTimeout: s.duration("PAGESNAP_NAV_TIMEOUT", 30*time.Second),
		},
		Batch: BatchConfig{
			DownloadRoot:   s.str("PAGESNAP_DOWNLOAD_ROOT", "/tmp/snapshots"),
			KeepFiles:      s.bool("PAGESNAP_KEEP_FILES", false),
			DefaultTimeout: s.duration("PAGESNAP_DEFAULT_TIMEOUT", 300*time.Second),
			MaxTimeout:     s.duration("PAGESNAP_MAX_TIMEOUT", 600*time.Second),
			MaxURLs:        s.int("PAGESNAP_MAX_URLS", 100),
		},
		Reconcile: ReconcileConfig{
			PollInterval:   s.duration("PAGESNAP_POLL_INTERVAL", time.Second),
			MinSettle:      s.duration("PAGESNAP_MIN_SETTLE", 500*time.Millisecond),
			Threshold:      s.float("PAGESNAP_MATCH_THRESHOLD", 0.6),
			Margin:         s.float("PAGESNAP_MATCH_MARGIN", 0.1),
			IgnoreExisting: s.bool("PAGESNAP_IGNORE_EXISTING", true),
			PeekBytes:      int64(s.int("PAGESNAP_PEEK_BYTES", 1<<20)),
			MaxFileBytes:   int64(s.int("PAGESNAP_MAX_FILE_BYTES", 64<<20)),
			GzipLevel:      s.int("PAGESNAP_GZIP_LEVEL", -1),
		},
		Auth: AuthConfig{
			Enabled: s.bool("PAGESNAP_AUTH_ENABLED", false),
			APIKeys: s.slice("PAGESNAP_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: s.float("PAGESNAP_RATE_RPS", 1.0),
			Burst:             s.int("PAGESNAP_RATE_BURST", 2),
		},
		Webhook: WebhookConfig{
			Secret: s.str("PAGESNAP_WEBHOOK_SECRET", ""),
		},
		Log: LogConfig{
			Level:  s.str("PAGESNAP_LOG_LEVEL", "info"),
			Format: s.str("PAGESNAP_LOG_FORMAT", "json"),
		},
	}
}

// readFile parses a flat YAML mapping of the same keys the environment uses.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(tv))
			for _, p := range tv {
				parts = append(parts, fmt.Sprint(p))
			}
			out[k] = strings.Join(parts, ",")
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	return out, nil
}

// --- helper functions ---

// source resolves a key from the environment first, then the file.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) str(key, fallback string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return fallback
}

func (s source) int(key string, fallback int) int {
	if v := s.lookup(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func (s source) bool(key string, fallback bool) bool {
	if v := s.lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func (s source) float(key string, fallback float64) float64 {
	if v := s.lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (s source) duration(key string, fallback time.Duration) time.Duration {
	if v := s.lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func (s source) slice(key string, fallback []string) []string {
	if v := s.lookup(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
