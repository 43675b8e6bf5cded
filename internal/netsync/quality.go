package netsync

import (
	"strings"
	"time"
)

// DeviceClass buckets clients by form factor; smaller devices get a
// gentler update cadence.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceTablet  DeviceClass = "tablet"
	DeviceMobile  DeviceClass = "mobile"
)

// DetectDeviceClass classifies a user-agent string.
func DetectDeviceClass(userAgent string) DeviceClass {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return DeviceTablet
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "android") ||
		strings.Contains(ua, "iphone"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// Quality buckets measured connection health.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// classifyQuality buckets a round-trip time and loss fraction.
func classifyQuality(rtt time.Duration, loss float64) Quality {
	switch {
	case rtt < 50*time.Millisecond && loss < 0.01:
		return QualityExcellent
	case rtt < 150*time.Millisecond && loss < 0.05:
		return QualityGood
	case rtt < 300*time.Millisecond && loss < 0.10:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Cadence is the tuned sync behavior for one connection.
type Cadence struct {
	// UpdateInterval batches outgoing state updates.
	UpdateInterval time.Duration
	// FullSyncInterval forces a full-state resync.
	FullSyncInterval time.Duration
	// Compress enables payload compression on constrained links.
	Compress bool
}

var qualityCadence = map[Quality]Cadence{
	QualityExcellent: {UpdateInterval: 100 * time.Millisecond, FullSyncInterval: 10 * time.Second},
	QualityGood:      {UpdateInterval: 200 * time.Millisecond, FullSyncInterval: 15 * time.Second},
	QualityFair:      {UpdateInterval: 500 * time.Millisecond, FullSyncInterval: 20 * time.Second, Compress: true},
	QualityPoor:      {UpdateInterval: time.Second, FullSyncInterval: 30 * time.Second, Compress: true},
}

var deviceFactor = map[DeviceClass]float64{
	DeviceDesktop: 1.0,
	DeviceTablet:  1.25,
	DeviceMobile:  1.5,
}

// cadenceFor combines the quality bucket with the device class.
func cadenceFor(device DeviceClass, q Quality) Cadence {
	c := qualityCadence[q]
	factor, ok := deviceFactor[device]
	if !ok {
		factor = 1.0
	}
	c.UpdateInterval = time.Duration(float64(c.UpdateInterval) * factor)
	c.FullSyncInterval = time.Duration(float64(c.FullSyncInterval) * factor)
	return c
}
