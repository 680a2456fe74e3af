package http

import (
	"github.com/kurbanlink/api/internal/infrastructure/dynamo"
	jwtinfra "github.com/kurbanlink/api/internal/infrastructure/jwt"
	"github.com/kurbanlink/api/internal/infrastructure/smtp"
	"github.com/kurbanlink/api/internal/pkg/clock"
	"github.com/kurbanlink/api/internal/pkg/secret"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo      *dynamo.UserRepo
	SessionRepo   *dynamo.SessionRepo
	ChallengeRepo *dynamo.ChallengeRepo
	TokenRepo     *dynamo.TokenRepo
	Mailer        smtp.Mailer
	JWTProvider   *jwtinfra.Provider
	Hasher        secret.Hasher
	Clock         clock.Clock
}
