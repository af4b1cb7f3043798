package apiv1

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// DocPath is where the OpenAPI document lives relative to the project root.
const DocPath = "public/docs/v1/openapi.yml"

var fiberParam = regexp.MustCompile(`:([A-Za-z0-9_]+)\??`)

// LoadSpec reads the OpenAPI document and validates it.
func LoadSpec(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return doc, nil
}

// TemplatePath turns a fiber route ("/reports/:id") into its OpenAPI form
// ("/reports/{id}").
func TemplatePath(route string) string {
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
	}
	return fiberParam.ReplaceAllString(route, "{$1}")
}

// Documents reports whether doc describes method on the given fiber route.
func Documents(doc *openapi3.T, method, route string) bool {
	if doc == nil || doc.Paths == nil {
		return false
	}
	item := doc.Paths.Find(TemplatePath(route))
	if item == nil {
		return false
	}
	return item.GetOperation(strings.ToUpper(method)) != nil
}
