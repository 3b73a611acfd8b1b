// Package config loads the runtime's three configuration layers:
// environment-variable infrastructure knobs, a JSON camera profile, and a
// YAML plugin manifest.
package config

import (
	"github.com/caarlos0/env/v9"
)

// Infrastructure holds the environment-driven knobs every subsystem
// reads at startup.
type Infrastructure struct {
	APIHost  string `env:"API_HOST" envDefault:"0.0.0.0"`
	APIPort  string `env:"API_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	ShmBufferCount int `env:"SHM_BUFFER_COUNT" envDefault:"10"`
	CameraWidth    int `env:"CAMERA_WIDTH" envDefault:"1920"`
	CameraHeight   int `env:"CAMERA_HEIGHT" envDefault:"1200"`
	CameraFPS      int `env:"CAMERA_FPS" envDefault:"90"`

	MathSaltIntervalSeconds  int `env:"MATH_SALT_INTERVAL_SECONDS" envDefault:"30"`
	HeartbeatTimeoutSeconds  int `env:"HEARTBEAT_TIMEOUT_SECONDS" envDefault:"5"`

	ProfilePath        string `env:"PROFILE_PATH" envDefault:"./config/profile.json"`
	PluginManifestPath string `env:"PLUGIN_MANIFEST_PATH" envDefault:"./config/plugins.yaml"`
	RecordingsDir      string `env:"RECORDINGS_DIR" envDefault:"./recordings"`
	CalibrationDir     string `env:"CALIBRATION_DIR" envDefault:"./data/current_calibration"`

	LicenseCheckURL string `env:"LICENSE_CHECK_URL"`
}

// Load parses Infrastructure from the environment.
func Load() (*Infrastructure, error) {
	cfg := &Infrastructure{}
	if err := env.Parse(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
