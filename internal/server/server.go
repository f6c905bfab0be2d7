// Package server exposes events, runs and notifications over HTTP so a
// long running gala process can take answers and start/stop requests.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/ShayCichocki/gala/internal/errors"
	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/internal/orchestrator"
	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/internal/version"
	"github.com/ShayCichocki/gala/pkg/models"
)

// Config for the HTTP API handler.
type Config struct {
	Store   state.Store
	Manager *orchestrator.Manager
	// JWTSecret enables HS256 bearer auth when set.
	JWTSecret string
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	// BaseContext outlives requests; runs started over HTTP use it.
	BaseContext context.Context
}

type handlers struct {
	store   state.Store
	manager *orchestrator.Manager
	base    context.Context
	log     *logging.Logger
}

// New returns an HTTP handler exposing the gala API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store == nil || cfg.Manager == nil {
		return nil, errors.New("server: store and manager are required")
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	h := &handlers{store: cfg.Store, manager: cfg.Manager, base: cfg.BaseContext, log: logging.Component("server")}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(cfg.JWTSecret, "/health", "/metrics"))
	router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	api := humachi.New(router, huma.DefaultConfig("Gala API", version.Get()))
	registerHealth(api)
	registerEvents(api, h)
	registerRuns(api, h)
	registerNotifications(api, h)
	registerMessages(api, h)
	return router, nil
}

// handleError maps domain errors onto HTTP statuses.
func handleError(err error) huma.StatusError {
	switch {
	case errors.Is(err, state.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, apperrors.ErrGatewayNotConfigured):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}

type idPath struct {
	ID string `path:"id" doc:"Resource id"`
}

type healthOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		out.Body.Version = version.Get()
		return out, nil
	})
}

func registerEvents(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body []models.Event }, error) {
		events, err := h.store.ListEvents()
		if err != nil {
			return nil, handleError(err)
		}
		if events == nil {
			events = []models.Event{}
		}
		return &struct{ Body []models.Event }{Body: events}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{id}",
		Summary:     "Get event",
	}, func(ctx context.Context, in *idPath) (*struct{ Body *models.Event }, error) {
		e, err := h.store.GetEvent(in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body *models.Event }{Body: e}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-event-tasks",
		Method:      http.MethodGet,
		Path:        "/events/{id}/tasks",
		Summary:     "List an event's tasks",
	}, func(ctx context.Context, in *idPath) (*struct{ Body []models.Task }, error) {
		if _, err := h.store.GetEvent(in.ID); err != nil {
			return nil, handleError(err)
		}
		tasks, err := h.store.ListTasksByEvent(in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if tasks == nil {
			tasks = []models.Task{}
		}
		return &struct{ Body []models.Task }{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event-status",
		Method:      http.MethodGet,
		Path:        "/events/{id}/status",
		Summary:     "Orchestrator status for an event",
	}, func(ctx context.Context, in *idPath) (*struct{ Body orchestrator.StatusSnapshot }, error) {
		if _, err := h.store.GetEvent(in.ID); err != nil {
			return nil, handleError(err)
		}
		snap, err := h.manager.Status(in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body orchestrator.StatusSnapshot }{Body: snap}, nil
	})

	type notificationsInput struct {
		ID         string `path:"id"`
		Unresolved bool   `query:"unresolved" doc:"Only open notifications"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-event-notifications",
		Method:      http.MethodGet,
		Path:        "/events/{id}/notifications",
		Summary:     "List an event's notifications",
	}, func(ctx context.Context, in *notificationsInput) (*struct{ Body []models.Notification }, error) {
		if _, err := h.store.GetEvent(in.ID); err != nil {
			return nil, handleError(err)
		}
		notes, err := h.store.ListNotificationsByEvent(in.ID, in.Unresolved)
		if err != nil {
			return nil, handleError(err)
		}
		if notes == nil {
			notes = []models.Notification{}
		}
		return &struct{ Body []models.Notification }{Body: notes}, nil
	})
}

type runOutput struct {
	Body struct {
		EventID string `json:"event_id"`
		Started bool   `json:"started,omitempty"`
		Stopped bool   `json:"stopped,omitempty"`
	}
}

func registerRuns(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-run",
		Method:        http.MethodPost,
		Path:          "/events/{id}/runs",
		Summary:       "Start orchestrating an event",
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, in *idPath) (*runOutput, error) {
		if err := h.manager.StartAsync(h.base, in.ID); err != nil {
			return nil, handleError(err)
		}
		h.log.InfoCtx("run requested", map[string]any{"event_id": in.ID, "by": caller(ctx)})
		out := &runOutput{}
		out.Body.EventID = in.ID
		out.Body.Started = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-run",
		Method:      http.MethodPost,
		Path:        "/events/{id}/stop",
		Summary:     "Stop an event's task loop",
	}, func(ctx context.Context, in *idPath) (*runOutput, error) {
		if _, err := h.store.GetEvent(in.ID); err != nil {
			return nil, handleError(err)
		}
		out := &runOutput{}
		out.Body.EventID = in.ID
		out.Body.Stopped = h.manager.Stop(in.ID)
		h.log.InfoCtx("stop requested", map[string]any{"event_id": in.ID, "by": caller(ctx)})
		return out, nil
	})
}

type respondInput struct {
	ID   string `path:"id"`
	Body struct {
		Response string `json:"response" minLength:"1" doc:"The organizer's answer"`
		Resume   bool   `json:"resume,omitempty" doc:"Start the event's loop if it is not running"`
	}
}

type respondOutput struct {
	Body struct {
		Accepted bool   `json:"accepted"`
		TaskID   string `json:"task_id,omitempty"`
		Resumed  bool   `json:"resumed"`
	}
}

func registerNotifications(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "respond-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/response",
		Summary:     "Answer a notification",
	}, func(ctx context.Context, in *respondInput) (*respondOutput, error) {
		res, err := h.manager.HandleUserResponse(ctx, in.ID, in.Body.Response)
		if err != nil {
			return nil, handleError(err)
		}
		if in.Body.Resume && res.Accepted && !res.Resumed {
			if n, err := h.store.GetNotification(in.ID); err == nil {
				switch err := h.manager.StartAsync(h.base, n.EventID); {
				case err == nil:
					res.Resumed = true
				case errors.Is(err, orchestrator.ErrAlreadyRunning):
				default:
					return nil, handleError(err)
				}
			}
		}
		h.log.InfoCtx("notification answered", map[string]any{"notification_id": in.ID, "accepted": res.Accepted, "by": caller(ctx)})

		out := &respondOutput{}
		out.Body.Accepted = res.Accepted
		out.Body.TaskID = res.TaskID
		out.Body.Resumed = res.Resumed
		return out, nil
	})
}

func registerMessages(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-task-messages",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/messages",
		Summary:     "A task's conversation log",
	}, func(ctx context.Context, in *idPath) (*struct{ Body []models.Message }, error) {
		if _, err := h.store.GetTask(in.ID); err != nil {
			return nil, handleError(err)
		}
		msgs, err := h.store.ListMessagesByTask(in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		return &struct{ Body []models.Message }{Body: msgs}, nil
	})
}

func caller(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Subject
	}
	return "anonymous"
}
