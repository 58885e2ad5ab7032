package api

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"subscriber/internal/models"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi/openapi.yaml
var openAPISpec []byte

const docsCacheControl = "public, max-age=3600"

// openAPIDoc is the served document, rendered once per Handlers.
type openAPIDoc struct {
	once sync.Once
	body []byte
	etag string
}

// WithPublicURL sets the server URL advertised in the OpenAPI document.
func WithPublicURL(url string) HandlerOption {
	return func(h *Handlers) {
		h.publicURL = url
	}
}

// renderOpenAPI stamps the build version and public URL into the embedded
// document. Untagged builds keep the embedded version. On any YAML error the
// embedded bytes are served unchanged.
func renderOpenAPI(spec []byte, apiVersion, publicURL string) []byte {
	var doc yaml.Node
	if err := yaml.Unmarshal(spec, &doc); err != nil || len(doc.Content) == 0 {
		slog.Warn("Serving embedded OpenAPI document as-is", "error", err)
		return spec
	}
	root := doc.Content[0]

	if apiVersion != "" {
		if info := mappingValue(root, "info"); info != nil {
			if v := mappingValue(info, "version"); v != nil {
				v.Value = apiVersion
			}
		}
	}
	if publicURL != "" {
		if servers := mappingValue(root, "servers"); servers != nil && len(servers.Content) > 0 {
			if u := mappingValue(servers.Content[0], "url"); u != nil {
				u.Value = publicURL
			}
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		slog.Warn("Serving embedded OpenAPI document as-is", "error", err)
		return spec
	}
	enc.Close()
	return buf.Bytes()
}

// mappingValue returns the value node for key in a YAML mapping node.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func (h *Handlers) openAPI() ([]byte, string) {
	h.openapi.once.Do(func() {
		var apiVersion string
		if v, err := h.version.Semver(); err == nil {
			apiVersion = v.String()
		}
		h.openapi.body = renderOpenAPI(openAPISpec, apiVersion, h.publicURL)
		sum := sha256.Sum256(h.openapi.body)
		h.openapi.etag = `"` + hex.EncodeToString(sum[:8]) + `"`
	})
	return h.openapi.body, h.openapi.etag
}

// ServeOpenAPISpec serves the OpenAPI 3.0.3 document as YAML.
// GET /api/v1/openapi.yaml
func (h *Handlers) ServeOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	body, etag := h.openAPI()
	w.Header().Set("Cache-Control", docsCacheControl)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

var swaggerUI = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: {{.SpecURL}},
      dom_id: '#swagger-ui',
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: 'BaseLayout',
      deepLinking: true,
      displayRequestDuration: true
    });
  </script>
</body>
</html>`))

// ServeSwaggerUI serves an interactive Swagger UI for the OpenAPI document.
// GET /api/v1/docs
func (h *Handlers) ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	title := "Subscriber API"
	if h.version.Version != "" {
		title = fmt.Sprintf("Subscriber API %s", h.version.Version)
	}

	var buf bytes.Buffer
	err := swaggerUI.Execute(&buf, struct{ Title, SpecURL string }{title, "/api/v1/openapi.yaml"})
	if err != nil {
		slog.Error("Failed to render API docs", "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to render documentation")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", docsCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
