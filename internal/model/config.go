package model

// CameraConfig is the union of hardware and software parameters applied to
// one camera. Mutations are command-driven; the worker broadcasts the
// current value in heartbeats and embeds it (throttled) in stream payloads.
type CameraConfig struct {
	CameraID int `json:"camera_id"`

	// Hardware (UVC-equivalent) parameters.
	Exposure      *int  `json:"exposure,omitempty"`
	Gain          *int  `json:"gain,omitempty"`
	AutoExposure  *bool `json:"auto_exposure,omitempty"`
	AutoFocus     *bool `json:"auto_focus,omitempty"`
	Focus         *int  `json:"focus,omitempty"`
	WhiteBalance  *int  `json:"white_balance,omitempty"`

	// Software (vision pipeline) parameters.
	Threshold      *int `json:"threshold,omitempty"`
	MinArea        int  `json:"min_area"`
	MaxBlobs       int  `json:"max_blobs"`
	CalibThreshold int  `json:"calib_threshold"`

	IsCalibrationMode bool   `json:"is_calibration_mode"`
	CalibrationCmd    string `json:"calibration_cmd,omitempty"`
	EnableUndistort   bool   `json:"enable_undistort"`
}

// DefaultCameraConfig returns the baseline a worker starts with: min_area
// 15, max_blobs 50, undistort enabled, every other field unset or zero.
func DefaultCameraConfig(cameraID int) CameraConfig {
	return CameraConfig{
		CameraID:        cameraID,
		MinArea:         15,
		MaxBlobs:        50,
		EnableUndistort: true,
	}
}

// Merge overlays every recognised key in patch whose value has the expected
// type (zero values included) onto a copy of cfg, mirroring
// CameraConfig(**{**old.dict(), **args})'s shallow-merge semantics. Unknown
// keys and mistyped values are ignored.
func (cfg CameraConfig) Merge(patch map[string]any) CameraConfig {
	out := cfg
	for k, v := range patch {
		switch k {
		case "exposure":
			if n, ok := toInt(v); ok {
				out.Exposure = &n
			}
		case "gain":
			if n, ok := toInt(v); ok {
				out.Gain = &n
			}
		case "auto_exposure":
			if b, ok := v.(bool); ok {
				out.AutoExposure = &b
			}
		case "auto_focus":
			if b, ok := v.(bool); ok {
				out.AutoFocus = &b
			}
		case "focus":
			if n, ok := toInt(v); ok {
				out.Focus = &n
			}
		case "white_balance":
			if n, ok := toInt(v); ok {
				out.WhiteBalance = &n
			}
		case "threshold":
			if n, ok := toInt(v); ok {
				out.Threshold = &n
			}
		case "min_area":
			if n, ok := toInt(v); ok {
				out.MinArea = n
			}
		case "max_blobs":
			if n, ok := toInt(v); ok {
				out.MaxBlobs = n
			}
		case "calib_threshold":
			if n, ok := toInt(v); ok {
				out.CalibThreshold = n
			}
		case "is_calibration_mode":
			if b, ok := v.(bool); ok {
				out.IsCalibrationMode = b
			}
		case "calibration_cmd":
			if s, ok := v.(string); ok {
				out.CalibrationCmd = s
			}
		case "enable_undistort":
			if b, ok := v.(bool); ok {
				out.EnableUndistort = b
			}
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
