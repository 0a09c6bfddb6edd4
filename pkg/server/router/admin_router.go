package router

import (
	"github.com/NeuralTrust/TrustGuard/pkg/common"
	handlers "github.com/NeuralTrust/TrustGuard/pkg/handlers/http"
	"github.com/NeuralTrust/TrustGuard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

type adminRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    *handlers.HandlerTransport
}

func NewAdminRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport *handlers.HandlerTransport,
) ServerRouter {
	return &adminRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
	}
}

func (r *adminRouter) BuildRoutes(router *fiber.App) error {
	h := r.handlerTransport
	if h == nil || h.GetStatisticsHandler == nil || h.RecordLoginHandler == nil {
		return ErrInvalidHandlerTransport
	}
	m := r.middlewareTransport

	router.Use(
		m.AdminMetricsMiddleware.Middleware(),
		m.RequestIDMiddleware.Middleware(),
		m.PanicRecoverMiddleware.Middleware(),
	)

	router.Get(HealthPath, h.HealthHandler.Handle)
	router.Get(VersionPath, h.GetVersionHandler.Handle)

	v1 := router.Group(common.ApiV1Prefix, m.AdminAuthMiddleware.Middleware())
	{
		v1.Post("/intrusion/logins", h.RecordLoginHandler.Handle)

		admin := v1.Group("/admin/:namespace")
		{
			admin.Get("/statistics", h.GetStatisticsHandler.Handle)
			admin.Get("/identities/:id", h.GetIdentityHandler.Handle)
			admin.Post("/identities/:id/block", h.BlockIdentityHandler.Handle)
			admin.Delete("/identities/:id/block", h.UnblockIdentityHandler.Handle)
		}
	}
	return nil
}
