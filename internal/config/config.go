package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the full application configuration. Fields map one to one
// onto the yaml file sections and FITLENS_ env overrides.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	TryOn   TryOnConfig   `mapstructure:"tryon" yaml:"tryon"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	UI      UIConfig      `mapstructure:"ui" yaml:"ui"`
}

// LoggerConfig controls the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls how the agent reaches a page context.
type BrowserConfig struct {
	// RemoteURL attaches to an already-running Chrome (ws:// or http://
	// devtools endpoint). Empty means launch a local instance.
	RemoteURL         string        `mapstructure:"remote_url" yaml:"remote_url"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	TabURLFilter      string        `mapstructure:"tab_url_filter" yaml:"tab_url_filter"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	EvalTimeout       time.Duration `mapstructure:"eval_timeout" yaml:"eval_timeout"`
}

// CaptureConfig tunes the capture session.
type CaptureConfig struct {
	// FrameInterval is the highlight repaint coalescing window; repaints are
	// scheduled at most once per interval.
	FrameInterval time.Duration `mapstructure:"frame_interval" yaml:"frame_interval"`
	ToastDuration time.Duration `mapstructure:"toast_duration" yaml:"toast_duration"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// TryOnConfig configures the generative image call.
type TryOnConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Prompt     string        `mapstructure:"prompt" yaml:"prompt"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
}

// StoreConfig locates the local sqlite store.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// UIConfig configures the local HTTP/WebSocket surface.
type UIConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// DefaultTryOnPrompt instructs the model how to composite the two images.
const DefaultTryOnPrompt = "You are a virtual try-on assistant. The first image is a photo of a person (the user). The second image shows clothing - either a single item or a complete outfit on a model. Your task is to generate a photorealistic image showing the person from the first image wearing the clothing from the second image. CRITICAL INSTRUCTIONS: 1) If the second image shows a complete outfit (multiple clothing items like jacket, shirt, pants, etc. on a model), transfer ALL visible clothing items to the user - replace the user's entire outfit with the complete outfit from the product image. 2) If the second image shows a single clothing item, replace only that corresponding item on the user. 3) Keep the user's face, body shape, pose, and background exactly as they appear in the first image. 4) Do NOT return the original images unchanged - always generate a new composite image. 5) Ensure all clothing fits naturally and realistically on the person's body, maintaining proper proportions and draping."

// SetDefaults registers default values on the supplied viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "fitlens")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.tab_url_filter", "")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.eval_timeout", "10s")

	v.SetDefault("capture.frame_interval", "16ms")
	v.SetDefault("capture.toast_duration", "2200ms")
	v.SetDefault("capture.fetch_timeout", "30s")

	v.SetDefault("tryon.model", "gemini-2.5-flash-image")
	v.SetDefault("tryon.endpoint", "")
	v.SetDefault("tryon.prompt", DefaultTryOnPrompt)
	v.SetDefault("tryon.api_timeout", "2m")

	v.SetDefault("store.path", "fitlens.db")

	v.SetDefault("ui.listen_addr", "127.0.0.1:8787")
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// LoadDotEnv pulls a .env file into the process environment when present,
// so GEMINI_API_KEY can live next to the binary instead of the config file.
// A missing file is not an error.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}
