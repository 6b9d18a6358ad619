package api

import (
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v3"

	"haruki-hca/config"
)

// NewApp creates the fiber application with the HCA routes registered.
func NewApp(cfg *config.Config, h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:     "Haruki HCA " + config.Version,
		BodyLimit:   cfg.BodyLimit(),
		JSONEncoder: sonic.Marshal,
		JSONDecoder: sonic.Unmarshal,
	})
	RegisterRoutes(app, h)
	return app
}
