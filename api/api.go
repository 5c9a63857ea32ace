// Package api provides HTTP handlers for the certflow API.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/ekansh09/certflow/checkpoint"
	"github.com/ekansh09/certflow/mail"
	"github.com/ekansh09/certflow/pipeline"
)

// API wires all Forge-style HTTP handlers together for certflow.
type API struct {
	runner      *pipeline.Runner
	checkpoints *checkpoint.Store
	transport   mail.Transport
	router      forge.Router
}

// New creates an API over a pipeline Runner, its checkpoint store, and
// the mail transport used for the credentials check.
func New(runner *pipeline.Runner, checkpoints *checkpoint.Store, transport mail.Transport, router forge.Router) *API {
	return &API{runner: runner, checkpoints: checkpoints, transport: transport, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	return a.router.Handler()
}

// RegisterRoutes registers all certflow API routes into the given Forge
// router with full OpenAPI metadata.
func (a *API) RegisterRoutes(router forge.Router) {
	a.registerRunRoutes(router)
	a.registerCheckpointRoutes(router)
}

// registerRunRoutes registers run lifecycle routes.
func (a *API) registerRunRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("runs"))

	_ = g.POST("/runs", a.submitRun,
		forge.WithSummary("Submit run"),
		forge.WithDescription("Validates the job and starts it in the background. At most one run is active at a time."),
		forge.WithOperationID("submitRun"),
		forge.WithRequestSchema(SubmitRunRequest{}),
		forge.WithResponseSchema(http.StatusAccepted, "Run accepted", SubmitRunResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/runs/current", a.runProgress,
		forge.WithSummary("Run progress"),
		forge.WithDescription("Returns the active run's progress snapshot plus log lines queued since the last poll."),
		forge.WithOperationID("runProgress"),
		forge.WithResponseSchema(http.StatusOK, "Progress snapshot", ProgressResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/runs/stop", a.stopRun,
		forge.WithSummary("Stop run"),
		forge.WithDescription("Asks the active run to stop after the record it is currently processing."),
		forge.WithOperationID("stopRun"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/mail/test", a.testConnection,
		forge.WithSummary("Test mail connection"),
		forge.WithDescription("Opens and immediately closes a transport session to verify the configured credentials."),
		forge.WithOperationID("testMailConnection"),
		forge.WithResponseSchema(http.StatusOK, "Connection result", TestConnectionResponse{}),
		forge.WithErrorResponses(),
	)
}

// registerCheckpointRoutes registers checkpoint management routes.
func (a *API) registerCheckpointRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("checkpoints"))

	_ = g.GET("/checkpoints", a.listCheckpoints,
		forge.WithSummary("List checkpoints"),
		forge.WithDescription("Returns checkpoint summaries, newest first."),
		forge.WithOperationID("listCheckpoints"),
		forge.WithRequestSchema(ListCheckpointsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Checkpoint summaries", []checkpoint.Summary{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/checkpoints/:checkpointId", a.getCheckpoint,
		forge.WithSummary("Get checkpoint"),
		forge.WithDescription("Returns the full checkpoint record including its manifest."),
		forge.WithOperationID("getCheckpoint"),
		forge.WithResponseSchema(http.StatusOK, "Checkpoint details", &checkpoint.Checkpoint{}),
		forge.WithErrorResponses(),
	)

	_ = g.PATCH("/checkpoints/:checkpointId", a.updateCheckpoint,
		forge.WithSummary("Update checkpoint"),
		forge.WithDescription("Applies partial edits to a checkpoint's job fields. Unknown fields are ignored."),
		forge.WithOperationID("updateCheckpoint"),
		forge.WithRequestSchema(UpdateCheckpointRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Update result", UpdateCheckpointResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.DELETE("/checkpoints/:checkpointId", a.deleteCheckpoint,
		forge.WithSummary("Delete checkpoint"),
		forge.WithDescription("Permanently removes a checkpoint and its private file copies."),
		forge.WithOperationID("deleteCheckpoint"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}
