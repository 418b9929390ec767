package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"gifbot/internal/logging"
	"gifbot/internal/policy"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// LoadConfig prints the startup banner, resolves configuration from the
// optional TOML file and the environment, logs it and prepares the scratch
// directory.
func LoadConfig(configPath string) (*Config, error) {
	printBanner()
	logSystemInfo()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logConfig(cfg)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(cfg.ScratchDir, "scratch"); err != nil {
		return nil, fmt.Errorf("scratch directory error: %w", err)
	}
	if err := testWriteAccess(cfg.ScratchDir); err != nil {
		return nil, fmt.Errorf("scratch directory is not writable: %w", err)
	}
	logging.Info("  [OK] Scratch directory ready: %s", cfg.ScratchDir)

	if err := ensureDirectory(filepath.Dir(cfg.LockFile), "lock"); err != nil {
		return nil, fmt.Errorf("lock directory error: %w", err)
	}

	return cfg, nil
}

func logConfig(cfg *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if cfg.ConfigFile != "" {
		logging.Info("  Config file:       %s", cfg.ConfigFile)
	} else {
		logging.Info("  Config file:       (none, environment only)")
	}
	logging.Info("  Bot token:         %s", MaskToken(cfg.Token))
	if cfg.APIEndpoint != "" {
		logging.Info("  API endpoint:      %s", cfg.APIEndpoint)
	}
	logging.Info("  Scratch dir:       %s", cfg.ScratchDir)
	logging.Info("  Lock file:         %s", cfg.LockFile)
	logging.Info("  Max input:         %s", humanize.IBytes(uint64(cfg.MaxInputBytes)))
	logging.Info("  Max output:        %s", humanize.IBytes(uint64(cfg.MaxOutputBytes)))
	logging.Info("  Max duration:      %v", cfg.MaxDuration)
	logging.Info("  Max width:         %dpx", cfg.MaxWidth)
	logging.Info("  Target FPS:        %d", cfg.TargetFPS)
	logging.Info("  Operation timeout: %v", cfg.OperationTimeout)
	logging.Info("  Max concurrent:    %d", cfg.MaxConcurrent)
	logging.Info("  FFmpeg:            %s", cfg.FFmpegPath)
	logging.Info("  FFprobe:           %s", cfg.FFprobePath)
	logging.Info("  Metrics port:      %s", cfg.MetricsPort)
	logging.Info("  Log level:         %s", logging.GetLevel())
	logging.Info("")
	logging.Info("  Features:")
	logging.Info("    Metrics:         %s", enabledString(cfg.MetricsEnabled))
}

// MaskToken hides all but the bot ID and the last four characters of a
// Telegram bot token.
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	id, secret, found := strings.Cut(token, ":")
	if !found {
		if len(token) <= 4 {
			return "****"
		}
		return "****" + token[len(token)-4:]
	}
	if len(secret) <= 4 {
		return id + ":****"
	}
	return id + ":****" + secret[len(secret)-4:]
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogWorkspaceInit logs the scratch root and the result of the stale sweep
func LogWorkspaceInit(root string, removed, failed int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("WORKSPACE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Scratch root: %s", root)
	if removed > 0 {
		logging.Info("  Removed %d stale workspace(s) from a previous run", removed)
	}
	if failed > 0 {
		logging.Warn("  Failed to remove %d stale workspace(s)", failed)
	}
	logging.Info("  [OK] Workspace manager ready")
}

// LogTranscoderInit logs transcoder initialization and checks the encoder
// binaries. The returned error is non-nil when either binary is unusable.
func LogTranscoderInit(ffmpegPath, ffprobePath string) error {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if err := CheckEncoder(ffmpegPath, ffprobePath); err != nil {
		logging.Warn("  Encoder check failed: %v", err)
		logging.Warn("  Conversions will fail until ffmpeg and ffprobe are installed")
		return err
	}
	logging.Info("  [OK] FFmpeg and FFprobe are available")
	return nil
}

// CheckEncoder verifies that both encoder binaries resolve and run.
func CheckEncoder(ffmpegPath, ffprobePath string) error {
	if err := checkTool(ffmpegPath); err != nil {
		return err
	}
	return checkTool(ffprobePath)
}

// LogBotConnected logs the authenticated bot identity
func LogBotConnected(username string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TELEGRAM CONNECTION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Authorized as @%s", username)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., promhttp handler)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered ops HTTP routes
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("OPS SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	logging.Debug("  Registered routes (%d total):", len(routes))
	logging.Debug("")

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}

	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	for _, group := range groupKeys {
		if group != "" {
			logging.Debug("  [%s]", group)
		} else {
			logging.Debug("  [root]")
		}
		for _, route := range groups[group] {
			methodPadded := fmt.Sprintf("%-6s", route.Method)
			logging.Debug("    %s %s", methodPadded, route.Path)
		}
		logging.Debug("")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the startup-complete log
type ServerConfig struct {
	BotUsername     string
	MetricsPort     string
	MetricsEnabled  bool
	MaxConcurrent   int
	Limits          policy.Policy
	StartupDuration time.Duration
}

// LogServerStarted logs successful start with the ops endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("BOT STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Bot:             @%s", config.BotUsername)
	logging.Info("  Concurrency:     %d conversion(s)", config.MaxConcurrent)
	logging.Info("  Limits:          %s in, %s out, %v, %dpx, %d fps",
		humanize.IBytes(uint64(config.Limits.MaxInputBytes)),
		humanize.IBytes(uint64(config.Limits.MaxOutputBytes)),
		config.Limits.MaxDuration,
		config.Limits.MaxWidth,
		config.Limits.TargetFPS)
	logging.Info("")
	logging.Info("  Endpoints:")
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
		logging.Info("    Health:        http://0.0.0.0:%s/healthz", config.MetricsPort)
	} else {
		logging.Info("    Ops server:    DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the bot")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

var bannerLines = []string{
	"------------------------------------------------------------",
	"        _  __ _           _",
	"   __ _(_)/ _| |__   ___ | |_",
	"  / _` | | |_| '_ \\ / _ \\| __|",
	" | (_| | |  _| |_) | (_) | |_",
	"  \\__, |_|_| |_.__/ \\___/ \\__|",
	"  |___/",
	"",
	"------------------------------------------------------------",
}

func printBanner() {
	fmt.Println()
	fmt.Println(strings.Join(bannerLines, "\n"))
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkTool(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  %s path: %s", filepath.Base(name), path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-version")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", name, err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		logging.Debug("  %s version: %s", filepath.Base(name), strings.TrimSpace(lines[0]))
	}

	return nil
}
