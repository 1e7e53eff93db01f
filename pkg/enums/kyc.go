package enums

import "fmt"

// KYCStatus tracks the review lifecycle of an identity submission.
type KYCStatus string

const (
	KYCStatusUnsubmitted KYCStatus = "unsubmitted"
	KYCStatusPending     KYCStatus = "pending"
	KYCStatusApproved    KYCStatus = "approved"
	KYCStatusRejected    KYCStatus = "rejected"
)

var validKYCStatuses = []KYCStatus{
	KYCStatusUnsubmitted,
	KYCStatusPending,
	KYCStatusApproved,
	KYCStatusRejected,
}

// String implements fmt.Stringer.
func (k KYCStatus) String() string {
	return string(k)
}

// IsValid reports whether the value is a known KYCStatus.
func (k KYCStatus) IsValid() bool {
	for _, candidate := range validKYCStatuses {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseKYCStatus converts raw input into a KYCStatus.
func ParseKYCStatus(value string) (KYCStatus, error) {
	for _, candidate := range validKYCStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid kyc status %q", value)
}

// KYCSubject identifies which party a KYC record belongs to.
type KYCSubject string

const (
	KYCSubjectCustomer    KYCSubject = "customer"
	KYCSubjectVendor      KYCSubject = "vendor"
	KYCSubjectMarketplace KYCSubject = "marketplace"
)

var validKYCSubjects = []KYCSubject{
	KYCSubjectCustomer,
	KYCSubjectVendor,
	KYCSubjectMarketplace,
}

// String implements fmt.Stringer.
func (k KYCSubject) String() string {
	return string(k)
}

// IsValid reports whether the value is a known KYCSubject.
func (k KYCSubject) IsValid() bool {
	for _, candidate := range validKYCSubjects {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseKYCSubject converts raw input into a KYCSubject.
func ParseKYCSubject(value string) (KYCSubject, error) {
	for _, candidate := range validKYCSubjects {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid kyc subject %q", value)
}
