package nlquery

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/nlquery/internal/platform/auth"
	"github.com/ehr/nlquery/internal/platform/fhir"
)

// Handler exposes the compiler over HTTP.
type Handler struct {
	svc     *Service
	version string
}

// NewHandler creates a new compiler handler.
func NewHandler(svc *Service, version string) *Handler {
	return &Handler{svc: svc, version: version}
}

// RegisterRoutes registers the compile endpoint on root and the vocabulary
// endpoints on api.
func (h *Handler) RegisterRoutes(root *echo.Group, api *echo.Group) {
	root.GET("/", h.Root)
	root.POST("/nlp", h.Compile)

	vocab := api.Group("/vocabulary")
	vocab.GET("", h.ListVocabulary)
	vocab.GET("/lookup", h.LookupCondition)
	vocab.POST("/reload", h.ReloadVocabulary, auth.RequireRole("admin"))
}

type compileRequest struct {
	Query *string `json:"query"`
}

type explainResponse struct {
	CompiledQuery
	Parsed Explanation `json:"parsed"`
}

// Root handles GET /
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Clinical query compiler is running",
		"status":      "healthy",
		"nlp_service": "available",
		"version":     h.version,
	})
}

// Compile handles POST /nlp. Both successful compilations and the
// unsupported-condition outcome are 200 responses; only a malformed request
// is a 400.
func (h *Handler) Compile(c echo.Context) error {
	var req compileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("body", "request body must be a JSON object"))
	}
	if req.Query == nil {
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome("query"))
	}

	ctx := c.Request().Context()
	if rid, ok := c.Get("request_id").(string); ok {
		ctx = WithRequestID(ctx, rid)
	}

	explain, _ := strconv.ParseBool(c.QueryParam("explain"))
	if explain {
		result, parsed := h.svc.Explain(ctx, *req.Query)
		return c.JSON(http.StatusOK, explainResponse{CompiledQuery: result, Parsed: parsed})
	}
	return c.JSON(http.StatusOK, h.svc.Compile(ctx, *req.Query))
}

// ListVocabulary handles GET /api/v1/vocabulary
func (h *Handler) ListVocabulary(c echo.Context) error {
	v := h.svc.Vocabulary()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"source":     h.svc.VocabularySource(),
		"total":      v.Len(),
		"conditions": v.Entries(),
	})
}

// LookupCondition handles GET /api/v1/vocabulary/lookup?term=...
func (h *Handler) LookupCondition(c echo.Context) error {
	term := c.QueryParam("term")
	if term == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'term' is required")
	}
	entry, ok := h.svc.Vocabulary().Lookup(term)
	if !ok {
		return c.JSON(http.StatusNotFound, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeNotFound, "no condition matches '"+term+"'"))
	}
	return c.JSON(http.StatusOK, entry)
}

// ReloadVocabulary handles POST /api/v1/vocabulary/reload
func (h *Handler) ReloadVocabulary(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := h.svc.ReloadVocabulary(ctx)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"source":      h.svc.VocabularySource(),
		"total":       v.Len(),
		"reloaded_by": auth.UserIDFromContext(ctx),
	})
}
