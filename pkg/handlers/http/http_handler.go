package http

import (
	"github.com/NeuralTrust/TrustGuard/pkg/app/protection"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const ErrInvalidJsonPayload = "invalid JSON payload"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

// AdminLocator returns the admin surface of a namespace.
type AdminLocator interface {
	Admin(namespace security.Namespace) (protection.Admin, bool)
}

type HandlerTransport struct {
	// Guards
	CheckReportHandler Handler
	RecordLoginHandler Handler

	// Admin
	GetStatisticsHandler   Handler
	GetIdentityHandler     Handler
	BlockIdentityHandler   Handler
	UnblockIdentityHandler Handler

	// System
	GetVersionHandler Handler
	HealthHandler     Handler
}

func resolveAdmin(c *fiber.Ctx, locator AdminLocator) (protection.Admin, bool) {
	ns := security.Namespace(utils.CopyString(c.Params("namespace")))
	if !ns.Valid() {
		return nil, false
	}
	return locator.Admin(ns)
}

func unknownNamespace(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown namespace"})
}
