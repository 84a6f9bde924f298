package openapi

import "maps"

// NewComponents creates Components with the shared error schema and the
// error responses every operation can return.
func NewComponents() *Components {
	return &Components{
		Schemas: map[string]*Schema{
			"Error": {
				Type:     "object",
				Required: []string{"error"},
				Properties: map[string]*Schema{
					"error": {Type: "string", Description: "Client-facing error message"},
				},
			},
		},
		Responses: map[string]*Response{
			"BadRequest":      ResponseJSON("Invalid request or image", "Error"),
			"NotFound":        ResponseJSON("Resource not found", "Error"),
			"PayloadTooLarge": ResponseJSON("Upload exceeds the size limit", "Error"),
			"InternalError":   ResponseJSON("Processing failed", "Error"),
		},
	}
}

// AddSchemas merges the given schemas into the component schemas.
func (c *Components) AddSchemas(schemas map[string]*Schema) {
	maps.Copy(c.Schemas, schemas)
}
