package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	MarketplaceID *uuid.UUID
	Role          enums.MemberRole
	KYCStatus     *enums.KYCStatus
	JTI           string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID        uuid.UUID        `json:"user_id"`
	MarketplaceID *uuid.UUID       `json:"marketplace_id,omitempty"`
	Role          enums.MemberRole `json:"role"`
	KYCStatus     *enums.KYCStatus `json:"kyc_status,omitempty"`
	jwt.RegisteredClaims
}
