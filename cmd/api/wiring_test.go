package main

import (
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/proxima/internal/adapters/http"
	"github.com/samirrijal/proxima/internal/core/usecases"
)

func newCORSApp() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(cors.New(corsConfig()))
	http.SetupRoutes(app, &http.Dependencies{
		Sessions:    usecases.NewSessionRegistry(nil),
		MapSessions: http.MapSessionConfig{Viewport: usecases.DefaultViewportConfig()},
	})
	return app
}

func TestCORSConfig_AllowsEveryRouteMethod(t *testing.T) {
	app := newCORSApp()
	allowed := strings.Split(corsConfig().AllowMethods, ",")

	for _, r := range app.GetRoutes(true) {
		if r.Method == fiber.MethodHead {
			continue
		}
		assert.Contains(t, allowed, r.Method, "route %s %s", r.Method, r.Path)
	}
}

func TestCORSConfig_PresencePreflight(t *testing.T) {
	app := newCORSApp()

	req := httptest.NewRequest(nethttp.MethodOptions, "/v1/entities/cpt-001/presence", nil)
	req.Header.Set("Origin", "https://maps.example.com")
	req.Header.Set("Access-Control-Request-Method", nethttp.MethodPut)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), nethttp.MethodPut)
}
