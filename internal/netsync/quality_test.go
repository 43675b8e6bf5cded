package netsync

import (
	"testing"
	"time"
)

func TestClassifyQuality(t *testing.T) {
	cases := []struct {
		rtt  time.Duration
		loss float64
		want Quality
	}{
		{20 * time.Millisecond, 0, QualityExcellent},
		{49 * time.Millisecond, 0.005, QualityExcellent},
		{80 * time.Millisecond, 0, QualityGood},
		{40 * time.Millisecond, 0.03, QualityGood},
		{200 * time.Millisecond, 0.02, QualityFair},
		{100 * time.Millisecond, 0.08, QualityFair},
		{400 * time.Millisecond, 0, QualityPoor},
		{50 * time.Millisecond, 0.5, QualityPoor},
	}
	for _, tc := range cases {
		if got := classifyQuality(tc.rtt, tc.loss); got != tc.want {
			t.Fatalf("classifyQuality(%v, %f): expected %s, got %s", tc.rtt, tc.loss, tc.want, got)
		}
	}
}

func TestCadenceForDevice(t *testing.T) {
	desktop := cadenceFor(DeviceDesktop, QualityExcellent)
	mobile := cadenceFor(DeviceMobile, QualityExcellent)

	if desktop.UpdateInterval != 100*time.Millisecond {
		t.Fatalf("expected 100ms desktop update interval, got %v", desktop.UpdateInterval)
	}
	if mobile.UpdateInterval != 150*time.Millisecond {
		t.Fatalf("expected 150ms mobile update interval, got %v", mobile.UpdateInterval)
	}
	if desktop.Compress || mobile.Compress {
		t.Fatal("expected no compression on an excellent link")
	}

	poor := cadenceFor(DeviceTablet, QualityPoor)
	if !poor.Compress {
		t.Fatal("expected compression on a poor link")
	}
	if poor.UpdateInterval <= desktop.UpdateInterval {
		t.Fatal("expected a poor link to update less often than an excellent one")
	}
}

func TestDetectDeviceClass(t *testing.T) {
	cases := []struct {
		ua   string
		want DeviceClass
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", DeviceDesktop},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", DeviceDesktop},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X)", DeviceMobile},
		{"Mozilla/5.0 (Linux; Android 13; Pixel 7) Mobile", DeviceMobile},
		{"Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", DeviceTablet},
		{"", DeviceDesktop},
	}
	for _, tc := range cases {
		if got := DetectDeviceClass(tc.ua); got != tc.want {
			t.Fatalf("DetectDeviceClass(%q): expected %s, got %s", tc.ua, tc.want, got)
		}
	}
}
