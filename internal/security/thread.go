package security

import (
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/bus"
	"github.com/BrunoKrugel/bikefit-vision/internal/logging"
)

var log = logging.For("security")

// Run drives the periodic license check / salt rotation thread: every
// interval it checks the license, broadcasts SET_SALT with the provider's
// current scalar, and exits (after broadcasting SECURITY_LOCK) the first
// time the check fails. stop is checked between ticks for orderly
// shutdown alongside the rest of the orchestrator.
func Run(b *bus.Bus, provider Provider, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := provider.VerifyLicense()
			if err != nil {
				log.Printf("license check error: %v", err)
			}
			if !ok {
				log.Printf("license check failed, locking down")
				b.PublishBroadcast("SECURITY_LOCK", map[string]any{"reason": "license_check_failed"})
				return
			}
			b.SendCommand("broadcast", "SET_SALT", map[string]any{"salt": provider.MathSalt()})
		}
	}
}
