package http

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"churnboard/auth"
	"churnboard/customer"
	"churnboard/dataset"
	"churnboard/history"
	"churnboard/ml"
	"churnboard/pipeline"
)

//go:embed templates/*.html static/*
var assets embed.FS

var pageNames = []string{"home", "login", "data", "dashboard", "predict", "history", "error"}

type pageSet struct {
	pages map[string]*template.Template
}

var titleCaser = cases.Title(language.English)

func loadPages() (*pageSet, error) {
	funcs := template.FuncMap{
		"title":   titleCaser.String,
		"percent": func(v float64) string { return strconv.FormatFloat(v*100, 'f', 1, 64) + "%" },
		"prob":    func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) },
		"contains": func(list []string, v string) bool {
			for _, s := range list {
				if s == v {
					return true
				}
			}
			return false
		},
	}

	set := &pageSet{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(assets, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		set.pages[name] = t
	}
	return set, nil
}

// pageData 所有页面共用的数据
type pageData struct {
	Title  string
	Active string
	User   *auth.Claims
	Auth   bool
	Body   any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, body any) {
	data := pageData{Title: title, Active: name, User: s.viewer(r), Auth: s.deps.Auth != nil, Body: body}

	var buf bytes.Buffer
	if err := s.pages.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("render page", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// viewer 公开页面也显示登录用户
func (s *Server) viewer(r *http.Request) *auth.Claims {
	if c, ok := auth.ClaimsFromContext(r.Context()); ok {
		return c
	}
	if s.deps.Auth == nil {
		return nil
	}
	c, err := s.deps.Auth.Verify(r)
	if err != nil {
		return nil
	}
	return c
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("page failed", zap.String("request_id", GetRequestID(r.Context())), zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.render(w, r, status, "error", http.StatusText(status), body)
}

func (s *Server) registerPages(mux *http.ServeMux) {
	static, _ := fs.Sub(assets, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	s.handle(mux, "GET /{$}", false, s.handleHome)
	s.handle(mux, "GET /login", false, s.handleLoginPage)
	s.handle(mux, "POST /login", false, s.handleLogin)
	s.handle(mux, "POST /logout", false, s.handleLogout)
	s.handle(mux, "GET /data", true, s.handleData)
	s.handle(mux, "GET /dashboard", true, s.handleDashboard)
	s.handle(mux, "GET /predict", true, s.handlePredictPage)
	s.handle(mux, "POST /predict", true, s.handlePredict)
	s.handle(mux, "GET /history", true, s.handleHistory)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "home", "Customer Churn Prediction", nil)
}

type loginBody struct {
	Next     string
	Username string
	Error    string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil || s.viewer(r) != nil {
		http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login", "Login", loginBody{Next: r.URL.Query().Get("next")})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login", "Login", loginBody{Error: "Malformed login form"})
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	next := r.PostForm.Get("next")

	if _, err := s.deps.Auth.Authenticate(username, r.PostForm.Get("password")); err != nil {
		s.logger.Info("login failed", zap.String("username", username), zap.String("request_id", GetRequestID(r.Context())))
		s.render(w, r, http.StatusUnauthorized, "login", "Login", loginBody{Next: next, Username: username, Error: "Username/password is incorrect"})
		return
	}
	cookie, err := s.deps.Auth.Issue(username)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth != nil {
		http.SetCookie(w, s.deps.Auth.Clear())
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// safeNext 只允许站内跳转
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

type dataBody struct {
	Options      []string
	Selected     []string
	Table        dataset.Table
	Structure    []dataset.ColumnInfo
	Descriptions []dataset.FeatureDescription
	Error        string
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Dataset.Preview(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	selected := selectedColumns(r.URL.Query())
	if len(selected) == 0 {
		selected = []string{dataset.AllColumns}
	}
	body := dataBody{
		Options:      append([]string{dataset.AllColumns}, t.Columns...),
		Selected:     selected,
		Structure:    t.Structure(),
		Descriptions: dataset.Descriptions(),
	}
	body.Table, err = t.Select(selected)
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadRequest
		body.Error = err.Error()
		body.Table = t
	}
	s.render(w, r, status, "data", "Customer Churn Data", body)
}

type chart struct {
	Title   string
	Axis    string
	Buckets []dataset.Bucket
}

type dashboardBody struct {
	Stats  []dataset.Stat
	Charts []chart
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Dataset.Summary(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard", "Churn Insights: Understanding Customer Retention", dashboardBody{
		Stats: sum.KPIs.Stats(language.English),
		Charts: []chart{
			{"Churn by Contract Type", "Contract", sum.ChurnByContract},
			{"Churn by Internet Service", "Internet service", sum.ChurnByInternet},
			{"Churn by Tenure", "Tenure (months)", sum.TenureGroups},
			{"Churn by Payment Method", "Payment method", sum.PaymentMethods},
		},
	})
}

// formField 预测表单的一个输入项
type formField struct {
	customer.Field
	Value   string
	Error   string
	Numeric bool
	Step    string
}

type formSection struct {
	Title  string
	Fields []formField
}

type predictBody struct {
	Models   []ml.ModelID
	Model    ml.ModelID
	Sections []formSection
	Result   *pipeline.Result
	Error    string
}

var formLayout = []struct {
	title  string
	fields []string
}{
	{"Customer Information", []string{customer.SeniorCitizen, customer.Partner, customer.Dependents}},
	{"Service Usage", []string{
		customer.Tenure, customer.InternetService, customer.MultipleLines, customer.OnlineSecurity,
		customer.OnlineBackup, customer.DeviceProtection, customer.TechSupport,
		customer.StreamingTV, customer.StreamingMovies,
	}},
	{"Billing Information", []string{customer.MonthlyCharges, customer.TotalCharges, customer.PaymentMethod, customer.PaperlessBilling}},
	{"Contract Details", []string{customer.Contract}},
}

func buildForm(values map[string]string, errField, errReason string) []formSection {
	sections := make([]formSection, len(formLayout))
	for i, sec := range formLayout {
		sections[i].Title = sec.title
		for _, name := range sec.fields {
			f, _ := customer.Lookup(name)
			ff := formField{Field: f, Value: values[name], Numeric: f.Kind == customer.Numeric, Step: "0.01"}
			if f.Integer {
				ff.Step = "1"
			}
			if ff.Value == "" && !ff.Numeric && len(f.Values) > 0 {
				ff.Value = f.Values[0]
			}
			if ff.Value == "" && ff.Numeric {
				ff.Value = "0"
			}
			if name == errField {
				ff.Error = errReason
			}
			sections[i].Fields = append(sections[i].Fields, ff)
		}
	}
	return sections
}

func (s *Server) handlePredictPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "predict", "Customer Churn Prediction", predictBody{
		Models:   ml.ModelIDs(),
		Model:    ml.RandomForestModel,
		Sections: buildForm(nil, "", ""),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		status, _ := classify(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		s.render(w, r, status, "predict", "Customer Churn Prediction", predictBody{
			Models: ml.ModelIDs(), Model: ml.RandomForestModel, Sections: buildForm(nil, "", ""),
			Error: "The form could not be read.",
		})
		return
	}

	values := make(map[string]string, len(customer.Schema))
	for _, f := range customer.Schema {
		values[f.Name] = r.PostForm.Get(f.Name)
	}
	body := predictBody{Models: ml.ModelIDs(), Model: ml.ModelID(r.PostForm.Get("model"))}

	res, err := s.predictForm(r)
	if err != nil {
		status, eb := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		}
		body.Sections = buildForm(values, eb.Field, eb.Reason)
		body.Error = eb.Error
		if eb.Field != "" {
			body.Error = fmt.Sprintf("%s: %s", eb.Field, eb.Reason)
			if eb.Reason == "" {
				body.Error = fmt.Sprintf("%s: %q was not seen when the model was trained", eb.Field, eb.Value)
			}
		}
		s.render(w, r, status, "predict", "Customer Churn Prediction", body)
		return
	}

	body.Sections = buildForm(values, "", "")
	body.Result = &res
	s.render(w, r, http.StatusOK, "predict", "Customer Churn Prediction", body)
}

func (s *Server) predictForm(r *http.Request) (pipeline.Result, error) {
	model, err := ml.ParseModelID(r.PostForm.Get("model"))
	if err != nil {
		return pipeline.Result{}, err
	}
	rec, err := customer.FromValues(r.PostForm)
	if err != nil {
		return pipeline.Result{}, err
	}
	return s.deps.Predictor.Predict(r.Context(), rec, model)
}

type historyBody struct {
	Columns []string
	Rows    [][]string
	Stream  bool
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.History.List()
	var pe *history.PersistenceError
	if errors.As(err, &pe) {
		s.logger.Warn("history unreadable", zap.Error(err))
		entries = nil
	} else if err != nil {
		s.renderError(w, r, err)
		return
	}

	body := historyBody{Columns: history.Header(), Stream: s.deps.Stream != nil}
	for _, e := range entries {
		body.Rows = append(body.Rows, e.Strings())
	}
	s.render(w, r, http.StatusOK, "history", "Prediction History", body)
}
