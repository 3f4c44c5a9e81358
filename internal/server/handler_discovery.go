package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "kernsim API",
		Version:     "v1",
		Description: "Scheduler and disk-manager simulator: run workloads and browse their reports",
		Endpoints: []endpointInfo{
			{"/api/v1/runs", []string{"GET", "POST"}, "List stored runs (?policy=, ?limit=, ?offset=). POST a workload YAML body or ?workload=<builtin>; ?policy= overrides the disk policy"},
			{"/api/v1/runs/{id}", []string{"GET", "DELETE"}, "Full run report with task metrics and request trace"},
			{"/api/v1/policies", []string{"GET"}, "Disk scheduling policies"},
			{"/api/v1/workloads", []string{"GET"}, "Built-in workloads"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
