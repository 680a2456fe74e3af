package dynamo

// DynamoDB attribute names used in update and condition expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldVKey             = "vkey"
	fieldStatus           = "status"
	fieldAttemptCount     = "attempt_count"
	fieldConsumedAt       = "consumed_at"
	fieldEnable           = "enable"
	fieldEmailVerified    = "email_verified"
	fieldDeletedAt        = "deleted_at"
	fieldRefreshToken     = "refresh_token"
	fieldRefreshExpiresAt = "refresh_expires_at"
	fieldUpdatedAt        = "updated_at"
)
