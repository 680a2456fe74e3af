package domain

import "time"

// Token status values. Same shape as challenge statuses; "consumed" marks a
// genuine redemption, "superseded" a token replaced by a newer issuance.
const (
	TokenStatusActive     = "active"
	TokenStatusConsumed   = "consumed"
	TokenStatusSuperseded = "superseded"
)

// VerificationToken is the single-use bearer credential issued after a
// successful OTP verification and redeemed by the registration step.
// PK: vkey ("email#purpose"), SK: token_id (ULID, creation-ordered).
// Only the hash is stored; the plaintext is returned once at issuance.
type VerificationToken struct {
	VKey       string     `json:"-" dynamodbav:"vkey"`
	TokenID    string     `json:"id" dynamodbav:"token_id"`
	Email      string     `json:"email" dynamodbav:"email"`
	Purpose    string     `json:"purpose" dynamodbav:"purpose"`
	TokenHash  string     `json:"-" dynamodbav:"token_hash"`
	Status     string     `json:"status" dynamodbav:"status"`
	CreatedAt  time.Time  `json:"created" dynamodbav:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty" dynamodbav:"consumed_at"`
}

func (t *VerificationToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
