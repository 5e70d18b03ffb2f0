// Package customer defines the telecom customer attributes collected by the
// prediction form and the closed domains each attribute may take.
package customer

import (
	"fmt"
	"strconv"
)

// Column names as they appear in the dataset and the trained bundle.
const (
	Tenure           = "tenure"
	MonthlyCharges   = "MonthlyCharges"
	TotalCharges     = "TotalCharges"
	SeniorCitizen    = "SeniorCitizen"
	Partner          = "Partner"
	Dependents       = "Dependents"
	MultipleLines    = "MultipleLines"
	InternetService  = "InternetService"
	OnlineSecurity   = "OnlineSecurity"
	OnlineBackup     = "OnlineBackup"
	DeviceProtection = "DeviceProtection"
	TechSupport      = "TechSupport"
	StreamingTV      = "StreamingTV"
	StreamingMovies  = "StreamingMovies"
	Contract         = "Contract"
	PaperlessBilling = "PaperlessBilling"
	PaymentMethod    = "PaymentMethod"
)

const (
	NoInternetService = "No internet service"
	NoPhoneService    = "No phone service"
)

type Kind int

const (
	Categorical Kind = iota
	Numeric
)

// Field describes one attribute of a Record.
type Field struct {
	Name        string
	Label       string
	Kind        Kind
	Values      []string
	Min         float64
	Max         float64
	Integer     bool
	Description string
}

var (
	yesNo       = []string{"Yes", "No"}
	internetAdd = []string{"Yes", "No", NoInternetService}
)

// Schema lists every field in canonical order.
var Schema = []Field{
	{Name: Tenure, Label: "Tenure (months)", Kind: Numeric, Min: 0, Max: 75, Integer: true,
		Description: "Number of months the customer has stayed with the company"},
	{Name: MonthlyCharges, Label: "Monthly Charges", Kind: Numeric, Min: 0, Max: 200,
		Description: "Amount charged to the customer monthly"},
	{Name: TotalCharges, Label: "Total Charges", Kind: Numeric, Min: 0, Max: 8700,
		Description: "Total amount charged to the customer"},
	{Name: SeniorCitizen, Label: "Senior Citizen", Values: yesNo,
		Description: "Whether the customer is a senior citizen"},
	{Name: Partner, Label: "Partner", Values: yesNo,
		Description: "Whether the customer has a partner"},
	{Name: Dependents, Label: "Dependents", Values: yesNo,
		Description: "Whether the customer has dependents"},
	{Name: MultipleLines, Label: "Multiple Lines", Values: []string{"Yes", "No", NoPhoneService},
		Description: "Whether the customer has multiple phone lines"},
	{Name: InternetService, Label: "Internet Service", Values: []string{"DSL", "Fiber optic", "No"},
		Description: "Customer's internet service provider"},
	{Name: OnlineSecurity, Label: "Online Security", Values: internetAdd,
		Description: "Whether the customer has online security"},
	{Name: OnlineBackup, Label: "Online Backup", Values: internetAdd,
		Description: "Whether the customer has online backup"},
	{Name: DeviceProtection, Label: "Device Protection", Values: internetAdd,
		Description: "Whether the customer has device protection"},
	{Name: TechSupport, Label: "Tech Support", Values: internetAdd,
		Description: "Whether the customer has tech support"},
	{Name: StreamingTV, Label: "Streaming TV", Values: internetAdd,
		Description: "Whether the customer streams TV"},
	{Name: StreamingMovies, Label: "Streaming Movies", Values: internetAdd,
		Description: "Whether the customer streams movies"},
	{Name: Contract, Label: "Contract", Values: []string{"Month-to-month", "One year", "Two year"},
		Description: "The contract term of the customer"},
	{Name: PaperlessBilling, Label: "Paperless Billing", Values: yesNo,
		Description: "Whether the customer has paperless billing"},
	{Name: PaymentMethod, Label: "Payment Method", Values: []string{
		"Electronic check", "Mailed check", "Bank transfer (automatic)", "Credit card (automatic)",
	}, Description: "The customer's payment method"},
}

var schemaIndex = func() map[string]int {
	idx := make(map[string]int, len(Schema))
	for i, f := range Schema {
		idx[f.Name] = i
	}
	return idx
}()

// Lookup returns the field definition for a column name.
func Lookup(name string) (Field, bool) {
	i, ok := schemaIndex[name]
	if !ok {
		return Field{}, false
	}
	return Schema[i], true
}

// Columns returns the canonical column order.
func Columns() []string {
	names := make([]string, len(Schema))
	for i, f := range Schema {
		names[i] = f.Name
	}
	return names
}

// Allows reports whether value is inside the field's closed domain.
func (f Field) Allows(value string) bool {
	for _, v := range f.Values {
		if v == value {
			return true
		}
	}
	return false
}

// InRange reports whether a numeric value is within the field bounds.
func (f Field) InRange(v float64) bool {
	return v >= f.Min && v <= f.Max
}

// Record is one customer's attributes.
type Record struct {
	Tenure           int     `json:"tenure"`
	MonthlyCharges   float64 `json:"MonthlyCharges"`
	TotalCharges     float64 `json:"TotalCharges"`
	SeniorCitizen    string  `json:"SeniorCitizen"`
	Partner          string  `json:"Partner"`
	Dependents       string  `json:"Dependents"`
	MultipleLines    string  `json:"MultipleLines"`
	InternetService  string  `json:"InternetService"`
	OnlineSecurity   string  `json:"OnlineSecurity"`
	OnlineBackup     string  `json:"OnlineBackup"`
	DeviceProtection string  `json:"DeviceProtection"`
	TechSupport      string  `json:"TechSupport"`
	StreamingTV      string  `json:"StreamingTV"`
	StreamingMovies  string  `json:"StreamingMovies"`
	Contract         string  `json:"Contract"`
	PaperlessBilling string  `json:"PaperlessBilling"`
	PaymentMethod    string  `json:"PaymentMethod"`
}

// Cell is a single attribute value. Numeric cells carry Number, categorical
// cells carry Text.
type Cell struct {
	Text    string
	Number  float64
	Numeric bool
}

// String renders the cell the way it is written to history.
func (c Cell) String() string {
	if c.Numeric {
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	}
	return c.Text
}

func num(v float64) Cell { return Cell{Number: v, Numeric: true} }
func text(v string) Cell { return Cell{Text: v} }

// Get returns the value of a column by name.
func (r Record) Get(name string) (Cell, bool) {
	switch name {
	case Tenure:
		return num(float64(r.Tenure)), true
	case MonthlyCharges:
		return num(r.MonthlyCharges), true
	case TotalCharges:
		return num(r.TotalCharges), true
	case SeniorCitizen:
		return text(r.SeniorCitizen), true
	case Partner:
		return text(r.Partner), true
	case Dependents:
		return text(r.Dependents), true
	case MultipleLines:
		return text(r.MultipleLines), true
	case InternetService:
		return text(r.InternetService), true
	case OnlineSecurity:
		return text(r.OnlineSecurity), true
	case OnlineBackup:
		return text(r.OnlineBackup), true
	case DeviceProtection:
		return text(r.DeviceProtection), true
	case TechSupport:
		return text(r.TechSupport), true
	case StreamingTV:
		return text(r.StreamingTV), true
	case StreamingMovies:
		return text(r.StreamingMovies), true
	case Contract:
		return text(r.Contract), true
	case PaperlessBilling:
		return text(r.PaperlessBilling), true
	case PaymentMethod:
		return text(r.PaymentMethod), true
	}
	return Cell{}, false
}

func (r *Record) set(name string, c Cell) {
	switch name {
	case Tenure:
		r.Tenure = int(c.Number)
	case MonthlyCharges:
		r.MonthlyCharges = c.Number
	case TotalCharges:
		r.TotalCharges = c.Number
	case SeniorCitizen:
		r.SeniorCitizen = c.Text
	case Partner:
		r.Partner = c.Text
	case Dependents:
		r.Dependents = c.Text
	case MultipleLines:
		r.MultipleLines = c.Text
	case InternetService:
		r.InternetService = c.Text
	case OnlineSecurity:
		r.OnlineSecurity = c.Text
	case OnlineBackup:
		r.OnlineBackup = c.Text
	case DeviceProtection:
		r.DeviceProtection = c.Text
	case TechSupport:
		r.TechSupport = c.Text
	case StreamingTV:
		r.StreamingTV = c.Text
	case StreamingMovies:
		r.StreamingMovies = c.Text
	case Contract:
		r.Contract = c.Text
	case PaperlessBilling:
		r.PaperlessBilling = c.Text
	case PaymentMethod:
		r.PaymentMethod = c.Text
	}
}

// Strings returns the record values in canonical column order.
func (r Record) Strings() []string {
	out := make([]string, len(Schema))
	for i, f := range Schema {
		c, _ := r.Get(f.Name)
		out[i] = c.String()
	}
	return out
}

// FieldError reports an attribute that is missing or outside its domain.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("field %s: %s (got %q)", e.Field, e.Reason, e.Value)
}

// Validate checks every field against its domain. The first offending field
// is reported.
func (r Record) Validate() error {
	for _, f := range Schema {
		c, _ := r.Get(f.Name)
		if err := f.check(c); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) check(c Cell) error {
	if f.Kind == Numeric {
		if !f.InRange(c.Number) {
			return &FieldError{Field: f.Name, Value: c.String(),
				Reason: fmt.Sprintf("must be between %g and %g", f.Min, f.Max)}
		}
		return nil
	}
	if c.Text == "" {
		return &FieldError{Field: f.Name, Reason: "missing"}
	}
	if !f.Allows(c.Text) {
		return &FieldError{Field: f.Name, Value: c.Text, Reason: "not an allowed value"}
	}
	return nil
}
