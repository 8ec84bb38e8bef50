package app

import (
	"strings"

	"intuneget/pkg/config"
	"intuneget/pkg/middleware"
	"intuneget/pkg/version"

	"github.com/danielgtaylor/huma/v2"
)

// NewHumaConfig returns the OpenAPI configuration shared by the server and cmd/openapi
func NewHumaConfig(apiPrefix string) huma.Config {
	humaConfig := huma.DefaultConfig("IntuneGet Auto-Update API", version.Version)
	humaConfig.Info.Description = "Auto-update policies and safety rails for Intune app deployments"
	humaConfig.Info.Contact = &huma.Contact{
		Name: "IntuneGet",
		URL:  config.GetFrontendURL(),
	}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
		"cookieAuth": {
			Type: "apiKey",
			In:   "cookie",
			Name: middleware.AuthCookieName,
		},
	}
	humaConfig.Servers = openAPIServers(apiPrefix)
	return humaConfig
}

// openAPIServers builds the servers list from OPENAPI_SERVERS, falling back to the frontend URL
func openAPIServers(apiPrefix string) []*huma.Server {
	if custom := config.GetOpenAPIServers(); custom != nil {
		servers := make([]*huma.Server, len(custom))
		for i, server := range custom {
			serverURL := server.URL
			if apiPrefix != "" && !strings.HasSuffix(serverURL, apiPrefix) {
				serverURL += apiPrefix
			}
			servers[i] = &huma.Server{URL: serverURL, Description: server.Description}
		}
		return servers
	}

	return []*huma.Server{
		{URL: config.GetFrontendURL() + apiPrefix, Description: "Production server"},
		{URL: "http://localhost:" + GetPort("8080") + apiPrefix, Description: "Local development"},
	}
}
