// Package api embeds the OpenAPI document for the REST surface.
package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI 3.0 document, served at /openapi.yaml and
// used to validate incoming API requests.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
