package adapters

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Johanhagos/mijn-api/internal/payment/domain"
	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies carry no minor unit, so provider amounts are whole units.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {},
	"MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {},
	"XOF": {}, "XPF": {},
}

// FromMinorUnits converts an integer amount in minor units (cents) to a
// decimal amount in major units.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	if _, ok := zeroDecimalCurrencies[NormalizeCurrency(currency)]; ok {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

// ParseAmount reads a decimal amount sent as a JSON string or number.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	text = strings.Trim(text, `"`)
	if text == "" || text == "null" {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(text)
	if err != nil || amount.IsNegative() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return amount, nil
}

func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// HMACSHA256 signs data with secret.
func HMACSHA256(secret string, data []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(data)
	return mac.Sum(nil)
}

// VerifyHexSignature compares a hex-encoded HMAC-SHA256 of payload in
// constant time.
func VerifyHexSignature(secret string, payload []byte, signature string) error {
	if strings.TrimSpace(secret) == "" {
		return domain.ErrInvalidConfig
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return domain.ErrInvalidSignature
	}
	if !hmac.Equal(provided, HMACSHA256(secret, payload)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// ReadMetadataValue returns metadata[key] as a trimmed string.
func ReadMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		return strconv.FormatFloat(cast, 'f', -1, 64)
	case json.Number:
		return cast.String()
	}
	return ""
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Timestamp picks the first non-zero unix time, falling back to now.
func Timestamp(now func() time.Time, unix ...int64) time.Time {
	for _, value := range unix {
		if value > 0 {
			return time.Unix(value, 0).UTC()
		}
	}
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}

// ParseTime reads an RFC 3339 timestamp, falling back to now.
func ParseTime(now func() time.Time, raw string) time.Time {
	if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(raw)); err == nil {
		return parsed.UTC()
	}
	return Timestamp(now)
}
