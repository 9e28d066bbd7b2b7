package config

import "time"

// Application identity.
const (
	AppName         = "tally"
	DBFileName      = "tally.db"
	ConfigFileName  = "config.yaml"
	LicenseFileName = "license.jwt"
	WidgetFileName  = "today.json"
)

// Purchase gating.
const (
	// ProProductID is the single product that lifts the activity limit.
	ProProductID = "tally.pro"

	// FreeActivityLimit is the maximum number of active activities
	// without a Pro license. Archived activities do not count.
	FreeActivityLimit = 3

	// LicenseIssuer is the expected issuer claim on license tokens.
	LicenseIssuer = "tally"

	// ProLicensePublicKey verifies license token signatures (ed25519, hex).
	ProLicensePublicKey = "2f8b9a41d6c3e07512fd98a3b04c66d1e59f7a28c4b31d80e6a5f29c73d04b1e"
)

// Sync.
const (
	DefaultSyncInterval = 5 * time.Minute
	MinSyncInterval     = 30 * time.Second

	// PullSkew widens the pull window to absorb clock drift between the
	// mirror's listing timestamps and record timestamps.
	PullSkew = 5 * time.Minute
)

// Export.
const (
	VaultSchemaVersion = 1
)

// Limits.
const (
	MaxActivityNameLen = 80
	MaxNoteLen         = 500
)

// DefaultColor is assigned when an activity is created without one.
const DefaultColor = "sky"

// Palette lists the accepted activity colors, in display order.
var Palette = []string{"sky", "mint", "amber", "rose", "violet", "slate", "coral", "lime"}

// ValidColor reports whether the color is a palette entry.
func ValidColor(c string) bool {
	for _, p := range Palette {
		if p == c {
			return true
		}
	}
	return false
}
