package app

import _ "embed"

// OpenAPISpec is the API description served by the Swagger UI
//
//go:embed openapi.yaml
var OpenAPISpec []byte
