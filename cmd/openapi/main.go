package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"intuneget/internal/autoupdate/routes"
	"intuneget/pkg/app"
	"intuneget/pkg/config"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
)

func main() {
	output := flag.String("output", "", "write the document to this file instead of stdout")
	format := flag.String("format", "json", "output format: json or yaml")
	flag.Parse()

	data, err := render(buildAPI(config.GetAPIPrefix()), *format)
	if err != nil {
		log.Fatalf("Failed to render OpenAPI document: %v", err)
	}

	if *output == "" {
		os.Stdout.Write(data)
		return
	}

	if dir := filepath.Dir(*output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", *output, err)
	}
	log.Printf("📄 OpenAPI document written to %s", *output)
}

// buildAPI registers every operation on a router that never serves traffic.
// Handlers are not invoked, so the routes need no backing services.
func buildAPI(apiPrefix string) huma.API {
	api := humachi.New(chi.NewRouter(), app.NewHumaConfig(apiPrefix))
	routes.NewRoutes(nil, nil, nil, config.DefaultAutoUpdateConfig().Sweep).RegisterUnifiedRoutes(api, "/auto-update")
	return api
}

func render(api huma.API, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(api.OpenAPI(), "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		return api.OpenAPI().YAML()
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
