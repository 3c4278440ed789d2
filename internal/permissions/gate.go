package permissions

import "wifi-rtt-sync/internal/models"

// CanRange reports whether a ranging cycle may run with the given grants.
// The two platform generations expose different minimum-privilege paths
// to the same hardware capability: modern platforms gate ranging behind
// the nearby-devices grant alone, legacy platforms behind precise
// location. The surrounding workflow must not touch the radio when this
// returns false.
func CanRange(caps models.CapabilitySet, platform models.PlatformClass) bool {
	if platform == models.PlatformModern {
		return caps.NearbyDevices
	}
	return caps.PreciseLocation
}
