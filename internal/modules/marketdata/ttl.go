package marketdata

import "time"

// TTL constants per cached kind. They are added to the cache clock when storing.
const (
	// TTLCurrentPrice keeps quotes fresh enough for a refresh sweep to reuse them
	TTLCurrentPrice = 10 * time.Minute
	// TTLCompanyInfo keeps classification data, which rarely changes
	TTLCompanyInfo = 30 * 24 * time.Hour
)
