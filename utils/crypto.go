package utils

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SignHMACSHA512 возвращает hex HMAC-SHA512 тела запроса
func SignHMACSHA512(body []byte, key string) string {
	h := hmac.New(sha512.New, []byte(key))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateHMACSHA512 проверяет подпись за постоянное время
func ValidateHMACSHA512(body []byte, signature, key string) bool {
	if signature == "" || key == "" {
		return false
	}
	expected := SignHMACSHA512(body, key)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// SecureCompare сравнивает секреты за постоянное время
func SecureCompare(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GeneratePaymentReference создает уникальную ссылку на попытку оплаты:
// префикс, первые 8 символов id долга и UUID.
func GeneratePaymentReference(prefix, debtID string) string {
	fragment := strings.ReplaceAll(debtID, "-", "")
	if len(fragment) > 8 {
		fragment = fragment[:8]
	}
	return strings.ToUpper(fmt.Sprintf("%s-%s-%s", prefix, fragment, strings.ReplaceAll(uuid.NewString(), "-", "")))
}
