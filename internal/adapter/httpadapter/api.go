package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/weather-hedge-service/internal/adapter/sqlite"
	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/couchcryptid/weather-hedge-service/internal/projection"
	"github.com/couchcryptid/weather-hedge-service/internal/settlement"
	"github.com/shopspring/decimal"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	maxBodyBytes      = 1 << 20
)

// Engine is the settlement surface the API drives. Implemented by
// *settlement.Engine.
type Engine interface {
	Register(ctx context.Context, p domain.Policy, deposited decimal.Decimal) (domain.Policy, []domain.Event, error)
	SetOracleConfig(cfg domain.OracleConfig) error
	OracleConfig() domain.OracleConfig
	RequestWeather(ctx context.Context, beneficiary, query string) (domain.OracleRequest, []domain.Event, error)
	Fulfill(ctx context.Context, requestID string, raw domain.RawReading) (settlement.Fulfillment, []domain.Event, error)
	Policy(id string) (domain.Policy, bool)
	Request(id string) (domain.OracleRequest, bool)
}

// Publisher delivers emitted events to the event sinks.
type Publisher interface {
	LoadBatch(ctx context.Context, events []domain.Event) error
}

// FundReader serves the fund read model.
type FundReader interface {
	Snapshot() projection.FundView
}

// EventLister pages through the event journal.
type EventLister interface {
	List(ctx context.Context, afterSeq int64, limit int, eventType domain.EventType) ([]sqlite.Entry, error)
}

// API serves the policy, oracle and fund endpoints. Journal may be nil, in
// which case GET /v1/events answers 404.
type API struct {
	Engine    Engine
	Publisher Publisher
	Fund      FundReader
	Journal   EventLister
	Logger    *slog.Logger
}

func (a *API) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/policies", a.handleRegister)
	mux.HandleFunc("GET /v1/policies/{id}", a.handleGetPolicy)
	mux.HandleFunc("PUT /v1/oracle/config", a.handleSetOracleConfig)
	mux.HandleFunc("GET /v1/oracle/config", a.handleGetOracleConfig)
	mux.HandleFunc("POST /v1/oracle/requests", a.handleRequestWeather)
	mux.HandleFunc("POST /v1/oracle/fulfillments", a.handleFulfill)
	mux.HandleFunc("GET /v1/requests/{id}", a.handleGetRequest)
	mux.HandleFunc("GET /v1/fund", a.handleFund)
	mux.HandleFunc("GET /v1/events", a.handleEvents)
}

type registerRequest struct {
	ID        string           `json:"id"`
	Holder    string           `json:"holder"`
	Start     int64            `json:"start"`
	Duration  int64            `json:"duration"`
	Amount    decimal.Decimal  `json:"amount"`
	Deposited decimal.Decimal  `json:"deposited"`
	Location  domain.Location  `json:"location"`
	Condition domain.Condition `json:"condition"`
	DailyRate decimal.Decimal  `json:"daily_rate"`
}

type registerResponse struct {
	Policy domain.Policy  `json:"policy"`
	Events []domain.Event `json:"events"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decode(w, r, &req) {
		return
	}
	p := domain.Policy{
		ID:        strings.TrimSpace(req.ID),
		Holder:    strings.TrimSpace(req.Holder),
		Start:     req.Start,
		Duration:  req.Duration,
		Amount:    req.Amount,
		Location:  req.Location,
		Condition: req.Condition,
		DailyRate: req.DailyRate,
	}

	stored, events, err := a.Engine.Register(r.Context(), p, req.Deposited)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.publish(r.Context(), events)
	sharedobs.WriteJSON(w, http.StatusCreated, registerResponse{Policy: stored, Events: events})
}

func (a *API) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := a.Engine.Policy(r.PathValue("id"))
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorBody{Error: "policy not found"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, p)
}

func (a *API) handleSetOracleConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.OracleConfig
	if !a.decode(w, r, &cfg) {
		return
	}
	if err := a.Engine.SetOracleConfig(cfg); err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, a.Engine.OracleConfig())
}

func (a *API) handleGetOracleConfig(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, a.Engine.OracleConfig())
}

type weatherRequest struct {
	Beneficiary string `json:"beneficiary"`
	Query       string `json:"query"`
}

type weatherResponse struct {
	Request domain.OracleRequest `json:"request"`
	Events  []domain.Event       `json:"events"`
}

func (a *API) handleRequestWeather(w http.ResponseWriter, r *http.Request) {
	var req weatherRequest
	if !a.decode(w, r, &req) {
		return
	}
	beneficiary := strings.TrimSpace(req.Beneficiary)
	if beneficiary == "" {
		sharedobs.WriteJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "beneficiary is required", Kind: domain.KindValidation})
		return
	}

	issued, events, err := a.Engine.RequestWeather(r.Context(), beneficiary, req.Query)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.publish(r.Context(), events)
	sharedobs.WriteJSON(w, http.StatusAccepted, weatherResponse{Request: issued, Events: events})
}

type fulfillResponse struct {
	settlement.Fulfillment
	Events []domain.Event `json:"events"`
}

func (a *API) handleFulfill(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}
	msg, err := domain.ParseFulfillment(domain.RawMessage{Value: body})
	if err != nil {
		a.writeError(w, err)
		return
	}

	result, events, err := a.Engine.Fulfill(r.Context(), msg.RequestID, msg.RawReading)
	// Payouts made before a failure are real and must reach the sinks.
	a.publish(r.Context(), events)
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, fulfillResponse{Fulfillment: result, Events: events})
}

func (a *API) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := a.Engine.Request(r.PathValue("id"))
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorBody{Error: "request not found"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, req)
}

func (a *API) handleFund(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, a.Fund.Snapshot())
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.Journal == nil {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorBody{Error: "event journal is disabled"})
		return
	}

	q := r.URL.Query()
	after, err := queryInt(q.Get("after"), 0)
	if err != nil || after < 0 {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "after must be a non-negative integer"})
		return
	}
	limit, err := queryInt(q.Get("limit"), defaultEventLimit)
	if err != nil || limit <= 0 || limit > maxEventLimit {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("limit must be between 1 and %d", maxEventLimit)})
		return
	}

	entries, err := a.Journal.List(r.Context(), int64(after), limit, domain.EventType(q.Get("type")))
	if err != nil {
		a.Logger.Error("list events failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "list events failed", Kind: domain.KindInternal})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"events": entries})
}

// publish hands events to the sinks. The engine has already applied them, so
// a sink failure is logged rather than reported to the caller.
func (a *API) publish(ctx context.Context, events []domain.Event) {
	if len(events) == 0 || a.Publisher == nil {
		return
	}
	if err := a.Publisher.LoadBatch(ctx, events); err != nil {
		a.Logger.Error("publish events failed", "error", err, "count", len(events))
	}
}

func (a *API) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "read request body: " + err.Error()})
		return nil, false
	}
	return body, true
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	kind := domain.ErrorKind(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed", "error", err, "kind", kind)
	}
	sharedobs.WriteJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func statusForKind(kind string) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindCorrelation:
		return http.StatusConflict
	case domain.KindDecoding:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	return n, nil
}
