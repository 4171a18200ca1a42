// +build !linux

package receiver

import "log"

// PinToCore is a no-op outside Linux: there is no portable core-pinning
// API, so core_affinity is accepted but ignored on other platforms.
func PinToCore(coreID int) error {
	log.Printf("core affinity requested (core %d) but not supported on this platform", coreID)
	return nil
}
