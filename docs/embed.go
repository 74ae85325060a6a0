package docs

import _ "embed"

//go:embed console-api.openapi.yaml
var embeddedConsoleOpenAPI []byte

//go:embed swagger.html
var embeddedSwaggerHTML []byte

// ConsoleOpenAPI содержит OpenAPI-спецификацию console API.
var ConsoleOpenAPI = embeddedConsoleOpenAPI

// SwaggerHTML содержит HTML-страницу с Swagger UI для ConsoleOpenAPI.
var SwaggerHTML = embeddedSwaggerHTML
