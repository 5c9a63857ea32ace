package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/pipeline"
	"github.com/ekansh09/certflow/record"
)

func (a *API) submitRun(ctx forge.Context, req *SubmitRunRequest) (*SubmitRunResponse, error) {
	set, err := record.NewSet(req.Columns, req.Rows)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid records: %v", err))
	}

	id, err := a.runner.Submit(pipeline.Submission{
		Config: certflow.JobConfig{
			Mode:             certflow.Mode(req.Mode),
			Mapping:          req.Mapping,
			DestinationField: req.DestinationField,
			Subject:          req.Subject,
			BodyText:         req.BodyText,
			BodyHTML:         req.BodyHTML,
			NamePattern:      req.NamePattern,
			OutputDir:        req.OutputDir,
			FailedExportPath: req.FailedExportPath,
		},
		Records:      set,
		DataPath:     req.DataPath,
		TemplatePath: req.TemplatePath,
		IdentityUsed: req.IdentityUsed,
		CheckpointID: req.CheckpointID,
	})
	if err != nil {
		return nil, mapRunError(err)
	}

	resp := &SubmitRunResponse{CheckpointID: id}
	return resp, ctx.JSON(http.StatusAccepted, resp)
}

func (a *API) runProgress(ctx forge.Context) error {
	st := a.runner.State()
	resp := ProgressResponse{
		Snapshot: st.Snapshot(),
		Logs:     st.DrainLogs(),
	}
	if resp.Logs == nil {
		resp.Logs = []string{}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (a *API) stopRun(ctx forge.Context) error {
	if err := a.runner.Stop(); err != nil {
		if errors.Is(err, certflow.ErrNothingToStop) {
			return forge.BadRequest(err.Error())
		}
		return forge.InternalError(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (a *API) testConnection(ctx forge.Context) error {
	conn, err := a.transport.Connect(ctx.Context())
	if err != nil {
		return ctx.JSON(http.StatusOK, TestConnectionResponse{OK: false, Error: err.Error()})
	}
	_ = conn.Close()
	return ctx.JSON(http.StatusOK, TestConnectionResponse{OK: true})
}

// mapRunError converts certflow sentinel errors to forge HTTP errors.
func mapRunError(err error) error {
	switch {
	case errors.Is(err, certflow.ErrInvalidConfig):
		return forge.BadRequest(err.Error())
	case errors.Is(err, certflow.ErrRunActive):
		return forge.BadRequest(err.Error())
	case errors.Is(err, certflow.ErrCheckpointNotFound):
		return forge.NotFound(err.Error())
	}
	return err
}
