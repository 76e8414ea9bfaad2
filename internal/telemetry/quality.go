package telemetry

// SignalQuality labels a signal strength reading.
func SignalQuality(dbm int) string {
	switch {
	case dbm >= -50:
		return "excellent"
	case dbm >= -60:
		return "very good"
	case dbm >= -70:
		return "good"
	case dbm >= -80:
		return "fair"
	default:
		return "poor"
	}
}

// LatencyQuality labels a round-trip time in milliseconds.
func LatencyQuality(ms float64) string {
	switch {
	case ms < 50:
		return "excellent"
	case ms < 100:
		return "good"
	case ms < 200:
		return "fair"
	case ms < 500:
		return "poor"
	default:
		return "critical"
	}
}
