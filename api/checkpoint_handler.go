package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/checkpoint"
)

func (a *API) listCheckpoints(ctx forge.Context, req *ListCheckpointsRequest) ([]checkpoint.Summary, error) {
	sums, err := a.checkpoints.List(req.Limit)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return sums, ctx.JSON(http.StatusOK, sums)
}

func (a *API) getCheckpoint(ctx forge.Context, _ *GetCheckpointRequest) (*checkpoint.Checkpoint, error) {
	cp, err := a.checkpoints.Get(ctx.Param("checkpointId"))
	if err != nil {
		return nil, mapCheckpointError(err)
	}
	return cp, ctx.JSON(http.StatusOK, cp)
}

func (a *API) updateCheckpoint(ctx forge.Context, req *UpdateCheckpointRequest) (*UpdateCheckpointResponse, error) {
	if len(req.Fields) == 0 {
		return nil, forge.BadRequest("no fields to update")
	}

	changed, err := a.checkpoints.UpdateFields(ctx.Param("checkpointId"), req.Fields)
	if err != nil {
		return nil, mapCheckpointError(err)
	}

	resp := &UpdateCheckpointResponse{Changed: changed}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) deleteCheckpoint(ctx forge.Context, _ *DeleteCheckpointRequest) (*struct{}, error) {
	if err := a.checkpoints.Delete(ctx.Param("checkpointId")); err != nil {
		return nil, mapCheckpointError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

// mapCheckpointError converts store sentinel errors to forge HTTP errors.
func mapCheckpointError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, certflow.ErrCheckpointNotFound) {
		return forge.NotFound(err.Error())
	}
	return err
}
