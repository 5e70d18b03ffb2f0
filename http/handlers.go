package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"churnboard/customer"
	"churnboard/dataset"
	"churnboard/history"
	"churnboard/ml"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	s.handle(mux, "GET /api/health", false, s.handleHealth)
	s.handle(mux, "POST /api/predict", true, s.handleAPIPredict)
	s.handle(mux, "GET /api/history", true, s.handleAPIHistory)
	s.handle(mux, "GET /api/dataset", true, s.handleAPIDataset)
	s.handle(mux, "GET /api/dashboard", true, s.handleAPIDashboard)
	if s.deps.Metrics != nil && s.config.MetricsPath != "" {
		mux.Handle("GET "+s.config.MetricsPath, s.deps.Metrics.Handler())
	}
	if s.deps.Stream != nil {
		s.handle(mux, "GET /ws/history", true, s.deps.Stream.ServeHTTP)
	}
}

type healthResponse struct {
	Status       string    `json:"status"`
	ModelLoaded  bool      `json:"model_loaded"`
	ModelVersion string    `json:"model_version,omitempty"`
	FetchedAt    time.Time `json:"fetched_at,omitzero"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.deps.Models != nil {
		resp.ModelVersion, resp.FetchedAt, resp.ModelLoaded = s.deps.Models.Loaded()
	}
	writeJSON(w, http.StatusOK, resp)
}

type predictRequest struct {
	Model  string         `json:"model"`
	Record map[string]any `json:"record"`
}

func (s *Server) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var req predictRequest
	if err := dec.Decode(&req); err != nil {
		status, body := classify(err)
		if status == http.StatusInternalServerError {
			status, body = http.StatusBadRequest, errorBody{Error: "request body must be a JSON object"}
		}
		writeJSON(w, status, body)
		return
	}
	if req.Model == "" {
		req.Model = string(ml.RandomForestModel)
	}

	model, err := ml.ParseModelID(req.Model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := customer.FromMap(req.Record)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Predictor.Predict(r.Context(), rec, model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type historyResponse struct {
	Columns []string        `json:"columns"`
	Entries []history.Entry `json:"entries"`
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.History.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Columns: history.Header(), Entries: entries})
}

func (s *Server) handleAPIDataset(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Dataset.Preview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err = t.Select(selectedColumns(r.URL.Query()))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type dashboardResponse struct {
	dataset.Summary
	Stats []dataset.Stat `json:"stats"`
}

func (s *Server) handleAPIDashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Dataset.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{Summary: sum, Stats: sum.KPIs.Stats(language.English)})
}

// selectedColumns 支持 ?columns=a,b 和 ?columns=a&columns=b
func selectedColumns(q url.Values) []string {
	var cols []string
	for _, v := range q["columns"] {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
	}
	return cols
}

// writeError 记录并返回错误; 5xx不向客户端暴露细节
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	fields := []zap.Field{
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Info("request rejected", fields...)
	}
	writeJSON(w, status, body)
}

