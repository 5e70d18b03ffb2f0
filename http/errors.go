package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"churnboard/customer"
	"churnboard/ml"
)

type errorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// classify 把领域错误映射为HTTP状态码和响应体
func classify(err error) (int, errorBody) {
	var (
		fe  *customer.FieldError
		sme *ml.SchemaMismatchError
		uce *ml.UnknownCategoryError
		afe *ml.ArtifactFetchError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity, errorBody{Error: "invalid customer record", Field: fe.Field, Value: fe.Value, Reason: fe.Reason}
	case errors.As(err, &sme):
		return http.StatusUnprocessableEntity, errorBody{Error: "invalid customer record", Field: sme.Field, Value: sme.Value, Reason: sme.Reason}
	case errors.As(err, &uce):
		return http.StatusUnprocessableEntity, errorBody{Error: "value not known to the model", Field: uce.Field, Value: uce.Value}
	case errors.As(err, &afe):
		return http.StatusServiceUnavailable, errorBody{Error: "model is unavailable, try again later"}
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal server error"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
