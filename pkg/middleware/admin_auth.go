package middleware

import (
	"errors"
	"strings"

	"github.com/NeuralTrust/TrustGuard/pkg/common"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const bearerPrefix = "Bearer "

type adminAuthMiddleware struct {
	logger     *logrus.Logger
	jwtManager jwt.Manager
}

func NewAdminAuthMiddleware(
	logger *logrus.Logger,
	jwtManager jwt.Manager,
) Middleware {
	return &adminAuthMiddleware{
		logger:     logger,
		jwtManager: jwtManager,
	}
}

func (m *adminAuthMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			m.logger.Debug("no authorization header provided")
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "Authorization required"})
		}
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			m.logger.Debug("invalid authorization header format")
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "Invalid authorization format"})
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
		if tokenString == "" {
			m.logger.Debug("empty token provided")
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "Empty token provided"})
		}

		claims, err := m.jwtManager.DecodeToken(tokenString)
		if err == nil && claims.Scope != jwt.AdminScope {
			err = jwt.ErrMissingScope
		}
		if err != nil {
			m.logger.WithError(err).WithField("request_id", RequestID(ctx)).Debug("admin token rejected")
			if errors.Is(err, jwt.ErrMissingScope) {
				return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse{Error: "Insufficient scope"})
			}
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "Invalid token"})
		}

		ctx.Locals(common.AdminSubjectKey, claims.Subject)
		return ctx.Next()
	}
}
