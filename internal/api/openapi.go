package api

import (
	"net/http"

	"github.com/JaimeStill/pallor/internal/classify"
	"github.com/JaimeStill/pallor/internal/config"
	"github.com/JaimeStill/pallor/pkg/openapi"
)

func newSpecHandler(cfg *config.Config) (http.HandlerFunc, error) {
	return openapi.Handler(buildSpec(cfg))
}

func buildSpec(cfg *config.Config) *openapi.Spec {
	spec := openapi.NewSpec(&cfg.API.OpenAPI, cfg.Version)
	spec.AddServer(cfg.API.BasePath, "prediction API")

	spec.Components.AddSchemas(map[string]*openapi.Schema{
		"Prediction": {
			Type:     "object",
			Required: []string{"label", "confidence", "boxed_image_url"},
			Properties: map[string]*openapi.Schema{
				"label": {
					Type: "string",
					Enum: []any{classify.Anemic, classify.NonAnemic},
				},
				"confidence": {
					Type:        "number",
					Description: "Confidence in the label as a percentage with two decimals",
					Minimum:     openapi.Float(50),
					Maximum:     openapi.Float(100),
					Example:     82.0,
				},
				"boxed_image_url": {
					Type:        "string",
					Description: "Analyzed image annotated with the selected region",
					Example:     ResultsPath + "/boxed_eye.jpg",
				},
				"heatmap_url": {
					Type:        "string",
					Description: "Saliency overlay; present only when requested and produced",
				},
				"note": {
					Type:        "string",
					Description: "Set when no region was detected and the full image was analyzed",
				},
			},
		},
	})

	spec.Paths["/predict"] = &openapi.PathItem{
		Post: &openapi.Operation{
			Summary:     "Screen an eyelid photograph for anemia risk",
			Description: "Accepts jpg, jpeg, png, or webp up to " + cfg.API.MaxUploadSize + ".",
			Tags:        []string{"predictions"},
			Parameters: []*openapi.Parameter{
				openapi.QueryParam("explain", "boolean", "Generate a saliency heatmap", false),
			},
			RequestBody: openapi.RequestBodyMultipart("file", "Conjunctiva photograph"),
			Responses: map[int]*openapi.Response{
				200: openapi.ResponseJSON("Prediction result", "Prediction"),
				400: openapi.ResponseRef("BadRequest"),
				413: openapi.ResponseRef("PayloadTooLarge"),
				500: openapi.ResponseRef("InternalError"),
			},
		},
	}

	return spec
}
