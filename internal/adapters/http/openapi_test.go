package http_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"

	handler "github.com/samirrijal/pourzone/internal/adapters/http"
)

// findOpenAPIDocument locates the openapi.yaml file by walking up from the test directory.
func findOpenAPIDocument(t *testing.T) string {
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}

	t.Fatalf("could not find api/openapi.yaml")
	return ""
}

// TestOpenAPIDocument validates the OpenAPI document is valid.
func TestOpenAPIDocument(t *testing.T) {
	docPath := findOpenAPIDocument(t)
	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI document validation failed: %v", err)
	}

	expectedPaths := []string{
		"/v1/health",
		"/v1/ready",
		"/v1/zones",
		"/v1/zones/reload",
		"/v1/zones/coverage",
		"/v1/zones/delivery-quote",
		"/v1/stores/nearby",
		"/v1/geocode",
		"/v1/location/geocode",
		"/v1/reverse-geocode",
		"/v1/autocomplete",
		"/v1/sessions/{id}/location",
		"/v1/sessions/{id}/locate",
		"/v1/sessions/{id}/refresh",
		"/v1/sessions/{id}/selection/store",
		"/v1/sessions/{id}/selection",
		"/graphql",
	}

	for _, path := range expectedPaths {
		if item := doc.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found in doc", path)
		}
	}

	expectedSchemas := []string{
		"Zone",
		"ZoneCoverage",
		"ZoneResolution",
		"DeliveryQuote",
		"Store",
		"StructuredAddress",
		"Prediction",
		"LocationSnapshot",
		"APIError",
		"Pagination",
	}

	for _, schema := range expectedSchemas {
		if doc.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}

	t.Logf("OpenAPI document valid: %d paths, %d schemas", len(doc.Paths.Map()), len(doc.Components.Schemas))
}

// TestOpenAPIInfo verifies document metadata.
func TestOpenAPIInfo(t *testing.T) {
	docPath := findOpenAPIDocument(t)
	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}

	if doc.Info.Title != "pourzone API" {
		t.Errorf("expected title 'pourzone API', got %q", doc.Info.Title)
	}

	if doc.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", doc.Info.Version)
	}

	if doc.Info.Description == "" {
		t.Error("expected non-empty description")
	}

	if len(doc.Servers) == 0 {
		t.Error("expected at least one server")
	}

	t.Logf("OpenAPI Info: %s v%s @ %s", doc.Info.Title, doc.Info.Version, doc.Servers[0].URL)
}

func TestDocsServeOpenAPI(t *testing.T) {
	prev := handler.OpenAPIPath
	handler.OpenAPIPath = findOpenAPIDocument(t)
	t.Cleanup(func() { handler.OpenAPIPath = prev })

	app := newEnv(t).app()
	status, body, hdr := do(t, app, "GET", "/docs/openapi.yaml", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if ct := hdr.Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(string(body), "openapi: 3.0.3") {
		t.Errorf("unexpected body prefix %q", body[:min(len(body), 20)])
	}
}
