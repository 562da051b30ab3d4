package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var sensitiveKeyParts = []string{"secret", "token", "signature", "password", "api_key", "authorization"}

// SafeAttributes drops attributes whose key suggests a credential.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error suitable for span recording. Messages carrying
// credentials are replaced by a generic one.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if isSensitiveKey(msg) {
		return errors.New("redacted error")
	}
	if len(msg) > 256 {
		return errors.New(msg[:256])
	}
	return err
}

func isSensitiveKey(value string) bool {
	value = strings.ToLower(value)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(value, part) {
			return true
		}
	}
	return false
}
