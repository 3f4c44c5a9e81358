package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/kernsim/internal/sim"
	"github.com/me/kernsim/internal/store"
	"github.com/me/kernsim/internal/workload"
	"github.com/me/kernsim/pkg/model"
)

// maxWorkloadBytes bounds a POSTed workload document.
const maxWorkloadBytes = 1 << 20

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	runs, total, err := s.store.ListReports(r.Context(), opts)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		respondInternal(w, reqID, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*model.RunSummary{}
	}
	respondList(w, reqID, runs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(runs) < total,
	})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	wl, apiErr := readWorkload(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	var override model.Policy
	if v := r.URL.Query().Get("policy"); v != "" {
		p, err := model.ParsePolicy(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error(),
				model.FieldError{Field: "policy", Message: err.Error()}))
			return
		}
		override = p
	}

	if !s.slots.tryAcquire() {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrBusy,
			Message: "all simulation slots are in use, retry later",
		})
		return
	}
	defer s.slots.release()

	cfg := s.config.Sim
	cfg.Policy = sim.EffectivePolicy(cfg, wl, override)

	report, err := s.run(r.Context(), cfg, wl, s.logger)
	if err != nil {
		s.logger.Error("run failed", "workload", wl.Name, "policy", cfg.Policy, "error", err)
		respondInternal(w, reqID, "simulation failed: "+err.Error())
		return
	}
	if err := s.store.SaveReport(r.Context(), report); err != nil {
		s.logger.Error("save run", "id", report.ID, "error", err)
		respondInternal(w, reqID, "failed to store run")
		return
	}

	s.logger.Info("run stored",
		"id", report.ID,
		"workload", report.Workload,
		"policy", report.Policy,
		"ticks", report.Ticks,
		"head_movement", report.Disk.TotalHeadMovement,
	)
	respondCreated(w, reqID, report)
}

// readWorkload takes the workload from ?workload=<builtin> or the YAML body.
func readWorkload(r *http.Request) (*workload.Workload, *model.APIError) {
	if name := r.URL.Query().Get("workload"); name != "" {
		wl, err := workload.Builtin(name)
		if err != nil {
			return nil, model.NewValidationError(err.Error(),
				model.FieldError{Field: "workload", Message: err.Error()})
		}
		return wl, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWorkloadBytes+1))
	if err != nil {
		return nil, model.NewValidationError("failed to read request body")
	}
	if len(body) > maxWorkloadBytes {
		return nil, model.NewValidationError("workload document too large")
	}
	if len(body) == 0 {
		return nil, model.NewValidationError("request body must be a workload document, or use ?workload=<builtin>")
	}
	wl, err := workload.Parse(body)
	if err != nil {
		return nil, model.NewValidationError("invalid workload",
			model.FieldError{Field: "body", Message: err.Error()})
	}
	return wl, nil
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	report, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		s.logger.Error("get run", "id", id, "error", err)
		respondInternal(w, reqID, "failed to load run")
		return
	}
	if report == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return
	}
	respondOK(w, reqID, report)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.store.DeleteReport(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
			return
		}
		s.logger.Error("delete run", "id", id, "error", err)
		respondInternal(w, reqID, "failed to delete run")
		return
	}
	respondOK(w, reqID, map[string]any{"id": id, "deleted": true})
}
