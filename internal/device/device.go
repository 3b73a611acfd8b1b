// Package device allocates physical camera devices to logical roles.
// Real device enumeration (USB/V4L2 specifics) is out of scope per the
// core's contract; Scanner is the seam a platform-specific implementation
// plugs into.
package device

import (
	"github.com/BrunoKrugel/bikefit-vision/internal/config"
	"github.com/BrunoKrugel/bikefit-vision/internal/logging"
)

// Scanner enumerates attached devices, returning a map of unique device
// identifier (serial number) to OS index.
type Scanner interface {
	Scan() (map[string]int, error)
}

// Allocation is the result of binding profiles to OS indices: no index is
// ever assigned to more than one role.
type Allocation struct {
	RoleID  int
	OSIndex int
	Profile config.CameraProfile
}

var log = logging.For("device")

// Allocate binds each enabled profile (in role_id ascending order) to an
// OS device index using serial matching, falling back to index 0 for
// role_id == 0 in development mode when no serial resolves. No role is
// ever double-bound.
func Allocate(profiles []config.CameraProfile, devices map[string]int) []Allocation {
	sorted := append([]config.CameraProfile(nil), profiles...)
	sortByRoleID(sorted)

	used := make(map[int]bool)
	var out []Allocation

	for _, p := range sorted {
		if !p.Enabled {
			continue
		}

		if idx, ok := devices[p.SerialNumber]; ok && p.SerialNumber != "" && !used[idx] {
			used[idx] = true
			out = append(out, Allocation{RoleID: p.RoleID, OSIndex: idx, Profile: p})
			continue
		}

		if p.RoleID == 0 && !used[0] {
			log.Printf("role 0 falling back to device index 0 (development mode)")
			used[0] = true
			out = append(out, Allocation{RoleID: p.RoleID, OSIndex: 0, Profile: p})
			continue
		}

		log.Printf("skipping role %d (%s): no matching device", p.RoleID, p.RoleName)
	}

	return out
}

func sortByRoleID(profiles []config.CameraProfile) {
	for i := 1; i < len(profiles); i++ {
		for j := i; j > 0 && profiles[j-1].RoleID > profiles[j].RoleID; j-- {
			profiles[j-1], profiles[j] = profiles[j], profiles[j-1]
		}
	}
}
