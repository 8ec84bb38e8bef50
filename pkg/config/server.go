package config

import (
	"strings"
)

// OpenAPIServer is an entry of the OpenAPI "servers" list
type OpenAPIServer struct {
	URL         string
	Description string
}

// GetHost returns the interface the HTTP server binds to
func GetHost() string {
	return GetEnv("HOST", "0.0.0.0")
}

// GetAPIPrefix returns the normalized API prefix ("" or "/something" without trailing slash)
func GetAPIPrefix() string {
	prefix := strings.TrimSpace(GetEnv("API_PREFIX", ""))
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}

// GetFrontendURL returns the public URL of the web application
func GetFrontendURL() string {
	return GetEnv("FRONTEND_URL", "https://intuneget.com")
}

// GetOpenAPIServers parses OPENAPI_SERVERS ("url|description,url|description").
// Returns nil when unset so callers fall back to defaults.
func GetOpenAPIServers() []OpenAPIServer {
	entries := GetListEnv("OPENAPI_SERVERS")
	if len(entries) == 0 {
		return nil
	}

	servers := make([]OpenAPIServer, 0, len(entries))
	for _, entry := range entries {
		url, description, _ := strings.Cut(entry, "|")
		servers = append(servers, OpenAPIServer{
			URL:         strings.TrimSpace(url),
			Description: strings.TrimSpace(description),
		})
	}
	return servers
}

// GetJWTSecret returns the HMAC secret used to sign and validate bearer tokens
func GetJWTSecret() []byte {
	return []byte(GetEnv("JWT_SECRET", "change-me-in-production"))
}

// GetAllowedOrigins returns the CORS origin allow-list
func GetAllowedOrigins() []string {
	origins := GetListEnv("CORS_ALLOWED_ORIGINS")
	if len(origins) == 0 {
		return []string{GetFrontendURL()}
	}
	return origins
}
