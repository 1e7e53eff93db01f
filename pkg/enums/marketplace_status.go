package enums

import "fmt"

// MarketplaceStatus tracks the provisioning lifecycle of a marketplace.
type MarketplaceStatus string

const (
	MarketplaceStatusPending      MarketplaceStatus = "pending"
	MarketplaceStatusProvisioning MarketplaceStatus = "provisioning"
	MarketplaceStatusActive       MarketplaceStatus = "active"
	MarketplaceStatusSuspended    MarketplaceStatus = "suspended"
	MarketplaceStatusFailed       MarketplaceStatus = "failed"
)

var validMarketplaceStatuses = []MarketplaceStatus{
	MarketplaceStatusPending,
	MarketplaceStatusProvisioning,
	MarketplaceStatusActive,
	MarketplaceStatusSuspended,
	MarketplaceStatusFailed,
}

// String implements fmt.Stringer.
func (m MarketplaceStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MarketplaceStatus.
func (m MarketplaceStatus) IsValid() bool {
	for _, candidate := range validMarketplaceStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMarketplaceStatus converts raw input into a MarketplaceStatus.
func ParseMarketplaceStatus(value string) (MarketplaceStatus, error) {
	for _, candidate := range validMarketplaceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid marketplace status %q", value)
}
