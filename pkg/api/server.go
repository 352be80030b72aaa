package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/spirali/hyperqueue/pkg/autoalloc"
	"github.com/spirali/hyperqueue/pkg/core"
	"github.com/spirali/hyperqueue/pkg/graph"
	"github.com/spirali/hyperqueue/pkg/hqerr"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/log"
	"github.com/spirali/hyperqueue/pkg/metrics"
	"github.com/spirali/hyperqueue/pkg/reactor"
)

// Server is the in-process JSON API: cmd/hq's `server` subcommand starts
// one, every other subcommand is a client of one (see pkg/client).
type Server struct {
	core    *core.Core
	reactor *reactor.Reactor
	alloc   *autoalloc.State
	logger  zerolog.Logger
	mux     *http.ServeMux
	workDir string
}

// NewServer wires a Server over the given Core/Reactor/AutoAllocState.
// workDirRoot is where `autoalloc add` creates PBS/SLURM allocation working
// directories (see pkg/config.Server.WorkDirRoot).
func NewServer(c *core.Core, r *reactor.Reactor, alloc *autoalloc.State, workDirRoot string) *Server {
	s := &Server{
		core:    c,
		reactor: r,
		alloc:   alloc,
		logger:  log.WithComponent("api"),
		mux:     http.NewServeMux(),
		workDir: workDirRoot,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/jobs", s.handleSubmit)
	s.mux.HandleFunc("POST /v1/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /v1/status", s.handleStatus)

	s.mux.HandleFunc("GET /v1/autoalloc", s.handleQueueList)
	s.mux.HandleFunc("POST /v1/autoalloc", s.handleQueueAdd)
	s.mux.HandleFunc("GET /v1/autoalloc/{id}", s.handleQueueInfo)
	s.mux.HandleFunc("DELETE /v1/autoalloc/{id}", s.handleQueueRemove)
	s.mux.HandleFunc("GET /v1/autoalloc/{id}/events", s.handleQueueEvents)

	s.mux.HandleFunc("GET /health", metrics.HealthHandler())
	s.mux.HandleFunc("GET /ready", metrics.ReadyHandler())
	s.mux.HandleFunc("GET /live", metrics.LivenessHandler())
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// ServeHTTP lets Server itself be used as an http.Handler, e.g. by
// httptest.NewServer in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case hqerr.Is(err, hqerr.ErrInvalidRequest):
		return http.StatusBadRequest
	case hqerr.Is(err, hqerr.ErrAllocatorFailure), hqerr.Is(err, hqerr.ErrWorkerTransportFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errNotFound = hqerr.Wrap(hqerr.ErrInvalidRequest, "not found")

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	jobId := s.core.NextJobId()
	job := graph.NewJob(jobId, req.Name, req.MaxFails)

	tasks := make([]*graph.Task, 0, len(req.Tasks))
	taskIds := make([]ids.TaskId, 0, len(req.Tasks))
	for _, spec := range req.Tasks {
		domainReq, err := spec.Request.toDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		taskId := s.core.NextTaskId()
		t := graph.NewTask(taskId, jobId, domainReq, spec.Keep, spec.NumOutputs)
		for _, dep := range spec.Deps {
			t.Deps.Insert(dep)
		}
		tasks = append(tasks, t)
		taskIds = append(taskIds, taskId)
	}

	if err := s.reactor.OnNewTasks(job, tasks); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{JobId: jobId, TaskIds: taskIds})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cancelled, err := s.reactor.OnCancelTasks(req.TaskIds)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts := s.core.Graph.CountByState()
	byState := make(map[string]int, len(counts))
	for state, n := range counts {
		byState[string(state)] = n
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		TasksByState: byState,
		Workers:      len(s.core.Workers.All()),
	})
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	descriptors := s.alloc.List()
	out := make([]QueueInfoResponse, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, toQueueInfoResponse(d))
	}
	writeJSON(w, http.StatusOK, QueueListResponse{Queues: out})
}

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req QueueAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	timelimit, err := time.ParseDuration(req.Timelimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Backlog < 1 || req.Backlog > 100 {
		writeError(w, http.StatusBadRequest, hqerr.Wrap(hqerr.ErrInvalidRequest, "backlog %d out of range 1..=100", req.Backlog))
		return
	}

	var manager autoalloc.ManagerType
	var handler autoalloc.QueueHandler
	switch req.Manager {
	case "pbs":
		manager = autoalloc.Pbs
		handler = autoalloc.NewPbsHandler(s.workDirRoot())
	case "slurm":
		manager = autoalloc.Slurm
		handler = autoalloc.NewSlurmHandler(s.workDirRoot())
	default:
		writeError(w, http.StatusBadRequest, hqerr.Wrap(hqerr.ErrInvalidRequest, "unknown manager %q", req.Manager))
		return
	}

	info := autoalloc.QueueInfo{
		Name:            req.Name,
		Queue:           req.Queue,
		Backlog:         req.Backlog,
		WorkersPerAlloc: req.WorkersPerAlloc,
		Timelimit:       timelimit,
		AdditionalArgs:  req.AdditionalArgs,
	}
	id := s.alloc.AddQueue(manager, info, handler)
	s.logger.Info().Uint64("descriptor", uint64(id)).Str("name", req.Name).Msg("queue descriptor added")
	writeJSON(w, http.StatusCreated, QueueAddResponse{Id: id})
}

func (s *Server) handleQueueInfo(w http.ResponseWriter, r *http.Request) {
	d, ok := s.descriptorFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toQueueInfoResponse(d))
}

func (s *Server) handleQueueEvents(w http.ResponseWriter, r *http.Request) {
	d, ok := s.descriptorFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, QueueEventsResponse{Events: d.Events()})
}

func (s *Server) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	id, err := parseDescriptorId(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.alloc.RemoveQueue(id) {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) descriptorFromPath(w http.ResponseWriter, r *http.Request) (*autoalloc.Descriptor, bool) {
	id, err := parseDescriptorId(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	d, ok := s.alloc.Descriptor(id)
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return nil, false
	}
	return d, true
}

func (s *Server) workDirRoot() string {
	// Every handler in this process shares one working-directory root;
	// see pkg/config.Server.WorkDirRoot for where it comes from.
	return s.workDir
}
