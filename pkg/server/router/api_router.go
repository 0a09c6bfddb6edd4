package router

import (
	"errors"

	"github.com/NeuralTrust/TrustGuard/pkg/common"
	handlers "github.com/NeuralTrust/TrustGuard/pkg/handlers/http"
	"github.com/NeuralTrust/TrustGuard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

var ErrInvalidHandlerTransport = errors.New("invalid handler transport")

type apiRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    *handlers.HandlerTransport
}

func NewAPIRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport *handlers.HandlerTransport,
) ServerRouter {
	return &apiRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
	}
}

func (r *apiRouter) BuildRoutes(router *fiber.App) error {
	h := r.handlerTransport
	if h == nil || h.CheckReportHandler == nil || h.HealthHandler == nil {
		return ErrInvalidHandlerTransport
	}
	m := r.middlewareTransport

	router.Use(
		m.APIMetricsMiddleware.Middleware(),
		m.RequestIDMiddleware.Middleware(),
		m.PanicRecoverMiddleware.Middleware(),
	)

	// Probes stay reachable for blocked addresses.
	router.Get(HealthPath, h.HealthHandler.Handle)

	v1 := router.Group(common.ApiV1Prefix, m.IntrusionMiddleware.Middleware())
	{
		reports := v1.Group("/reports")
		{
			reports.Post("/check", h.CheckReportHandler.Handle)
		}
	}
	return nil
}
