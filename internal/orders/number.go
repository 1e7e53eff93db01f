package orders

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"
)

// the unpadded alphabet keeps order numbers readable over the phone
var numberEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewOrderNumber builds a customer-facing order number such as
// MKT-20260830-Q7KPX2ZJ. The random tail makes numbers unguessable so
// they can appear in URLs and receipts.
func NewOrderNumber(prefix string, now time.Time) (string, error) {
	if strings.TrimSpace(prefix) == "" {
		prefix = "MKT"
	}
	raw := make([]byte, 5)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	tail := numberEncoding.EncodeToString(raw)
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(prefix), now.UTC().Format("20060102"), tail), nil
}
