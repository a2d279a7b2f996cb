package ledger

import "strings"

// AssetNative is the canonical identifier for the platform's native
// currency. Token assets are identified by their uppercase symbol.
const AssetNative = "NATIVE"

// NormalizeAsset canonicalises an asset identifier. An empty string is
// treated as the native currency; token symbols are upper-cased and must
// be short alphanumeric identifiers.
func NormalizeAsset(asset string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(asset))
	if trimmed == "" || trimmed == AssetNative {
		return AssetNative, nil
	}
	if len(trimmed) > 16 {
		return "", ErrInvalidAsset
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", ErrInvalidAsset
		}
	}
	return trimmed, nil
}
