package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// CameraProfile describes one logical camera role as declared in the
// system-wide JSON profile.
type CameraProfile struct {
	RoleID          int    `json:"role_id"`
	RoleName        string `json:"role_name"`
	SerialNumber    string `json:"serial_number"`
	Resolution      [2]int `json:"resolution"` // [width, height]
	CalibrationFile string `json:"calibration_file,omitempty"`
	Enabled         bool   `json:"enabled"`
}

// Profile is the parsed camera list, keyed by role for fast lookup.
type Profile struct {
	Cameras []CameraProfile `json:"cameras"`
}

// ByRoleID returns the profile entry with the given role id, if any.
func (p *Profile) ByRoleID(roleID int) (CameraProfile, bool) {
	for _, c := range p.Cameras {
		if c.RoleID == roleID {
			return c, true
		}
	}
	return CameraProfile{}, false
}

// LoadProfile reads and parses the JSON camera profile named by path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profile %s: %w", path, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse profile %s: %w", path, err)
	}
	return &p, nil
}
