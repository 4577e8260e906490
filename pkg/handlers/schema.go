package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/models"
	"github.com/ekaya-inc/datagenie/pkg/services"
)

// --- Request Types ---

// RefreshSchemaRequest starts a sync pass for one endpoint.
type RefreshSchemaRequest struct {
	EndpointID uuid.UUID `json:"endpoint_id"`
}

// UpdateDescriptionsRequest edits mirror descriptions for a tenant.
type UpdateDescriptionsRequest struct {
	TenantID     uuid.UUID                  `json:"tenant_id"`
	Descriptions []models.DescriptionUpdate `json:"descriptions"`
}

// --- Handler ---

// SchemaHandler serves the schema mirror: refresh, listing and description edits.
type SchemaHandler struct {
	sync   services.SchemaSyncService
	schema services.SchemaService
	logger *zap.Logger
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(sync services.SchemaSyncService, schema services.SchemaService, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{
		sync:   sync,
		schema: schema,
		logger: logger.Named("schema-handler"),
	}
}

// RegisterRoutes registers the schema handler's routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /schema/refresh", h.RefreshSchema)
	mux.HandleFunc("GET /schema", h.GetSchema)
	mux.HandleFunc("POST /schema/descriptions", h.UpdateDescriptions)
}

// RefreshSchema handles POST /schema/refresh.
// Runs one sync pass and returns the per-level counts.
func (h *SchemaHandler) RefreshSchema(w http.ResponseWriter, r *http.Request) {
	var req RefreshSchemaRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.EndpointID == uuid.Nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "endpoint_id is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.sync.Refresh(r.Context(), req.EndpointID)
	if err != nil {
		WriteServiceError(w, err, h.logger.With(zap.String("endpoint_id", req.EndpointID.String())))
		return
	}

	writeData(w, result, h.logger)
}

// GetSchema handles GET /schema?tenant=<uuid>[&format=text].
// format=text returns the prompt text as text/plain.
func (h *SchemaHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := ParseTenantQuery(w, r, h.logger)
	if !ok {
		return
	}

	view, err := h.schema.GetSchema(r.Context(), tenantID)
	if err != nil {
		WriteServiceError(w, err, h.logger.With(zap.String("tenant_id", tenantID.String())))
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(view.Text)); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	writeData(w, view, h.logger)
}

// UpdateDescriptions handles POST /schema/descriptions.
func (h *SchemaHandler) UpdateDescriptions(w http.ResponseWriter, r *http.Request) {
	var req UpdateDescriptionsRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.schema.UpdateDescriptions(r.Context(), req.TenantID, req.Descriptions)
	if err != nil {
		WriteServiceError(w, err, h.logger.With(zap.String("tenant_id", req.TenantID.String())))
		return
	}

	writeData(w, result, h.logger)
}
