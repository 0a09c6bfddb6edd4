package middleware

import "github.com/gofiber/fiber/v2"

type Middleware interface {
	Middleware() fiber.Handler
}

type Transport struct {
	RequestIDMiddleware    Middleware
	PanicRecoverMiddleware Middleware
	IntrusionMiddleware    Middleware
	AdminAuthMiddleware    Middleware
	APIMetricsMiddleware   Middleware
	AdminMetricsMiddleware Middleware
}
