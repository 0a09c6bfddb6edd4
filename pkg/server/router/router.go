package router

import "github.com/gofiber/fiber/v2"

const (
	HealthPath  = "/health"
	VersionPath = "/version"
)

type ServerRouter interface {
	BuildRoutes(router *fiber.App) error
}
