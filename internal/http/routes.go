package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices holds the services the router wires into handlers.
type RouterServices struct {
	Admission JobAdmitter
	Jobs      JobReader
	Ledger    UserLedger
	Costs     CostSource
	// UserHeader names the header carrying the authenticated user id.
	UserHeader string
	Logger     *slog.Logger
}

// NewRouter builds the API mux. Every route except /healthz and /costs requires a user id.
func NewRouter(s RouterServices) *http.ServeMux {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	jobs := &JobHandlers{Admission: s.Admission, Jobs: s.Jobs, Logger: logger}
	users := &UserHandlers{Ledger: s.Ledger, Costs: s.Costs, Logger: logger}
	authed := RequireUser(s.UserHeader)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("GET /costs", users.GetCosts)

	mux.Handle("POST /jobs", authed(http.HandlerFunc(jobs.SubmitJobs)))
	mux.Handle("GET /jobs", authed(http.HandlerFunc(jobs.ListJobs)))
	mux.Handle("GET /jobs/{id}", authed(http.HandlerFunc(jobs.GetJob)))
	mux.Handle("GET /user", authed(http.HandlerFunc(users.GetUser)))
	mux.Handle("PATCH /user", authed(http.HandlerFunc(users.SubmitApplication)))

	return mux
}
