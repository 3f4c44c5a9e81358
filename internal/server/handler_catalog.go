package server

import (
	"net/http"

	"github.com/me/kernsim/internal/workload"
	"github.com/me/kernsim/pkg/model"
)

type policyInfo struct {
	Name        model.Policy `json:"name"`
	Description string       `json:"description"`
	Default     bool         `json:"default"`
}

type workloadInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tasks       int    `json:"tasks"`
	Requests    int    `json:"requests"`
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	out := make([]policyInfo, 0, len(model.Policies))
	for _, p := range model.Policies {
		out = append(out, policyInfo{
			Name:        p,
			Description: p.Describe(),
			Default:     p == s.config.Sim.Policy,
		})
	}
	respondOK(w, reqID, out)
}

func (s *Server) handleListWorkloads(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	names := workload.BuiltinNames()
	out := make([]workloadInfo, 0, len(names))
	for _, name := range names {
		wl, err := workload.Builtin(name)
		if err != nil {
			s.logger.Error("builtin workload", "name", name, "error", err)
			continue
		}
		tasks := 0
		for _, ts := range wl.Tasks {
			tasks += ts.Count
		}
		out = append(out, workloadInfo{
			Name:        wl.Name,
			Description: wl.Description,
			Tasks:       tasks,
			Requests:    wl.Requests(),
		})
	}
	respondOK(w, reqID, out)
}
