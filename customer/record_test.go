package customer

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleValues() url.Values {
	return url.Values{
		Tenure:           {"1"},
		MonthlyCharges:   {"70.35"},
		TotalCharges:     {"70.35"},
		SeniorCitizen:    {"No"},
		Partner:          {"No"},
		Dependents:       {"No"},
		InternetService:  {"Fiber optic"},
		MultipleLines:    {"No"},
		OnlineSecurity:   {"No"},
		OnlineBackup:     {"No"},
		DeviceProtection: {"No"},
		TechSupport:      {"No"},
		StreamingTV:      {"No"},
		StreamingMovies:  {"No"},
		Contract:         {"Month-to-month"},
		PaperlessBilling: {"Yes"},
		PaymentMethod:    {"Electronic check"},
	}
}

func TestFromValues(t *testing.T) {
	rec, err := FromValues(sampleValues())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Tenure)
	assert.Equal(t, 70.35, rec.MonthlyCharges)
	assert.Equal(t, "Fiber optic", rec.InternetService)
	assert.Equal(t, "Electronic check", rec.PaymentMethod)
	assert.NoError(t, rec.Validate())
}

func TestFromValuesRejects(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"unknown contract", Contract, "Three year"},
		{"tenure above range", Tenure, "76"},
		{"negative charges", MonthlyCharges, "-1"},
		{"total above range", TotalCharges, "8700.5"},
		{"fractional tenure", Tenure, "1.5"},
		{"not a number", MonthlyCharges, "abc"},
		{"empty categorical", Partner, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := sampleValues()
			values.Set(tt.field, tt.value)

			_, err := FromValues(values)
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "expected FieldError, got %v", err)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestFromValuesMissingField(t *testing.T) {
	values := sampleValues()
	values.Del(PaymentMethod)

	_, err := FromValues(values)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, PaymentMethod, fe.Field)
	assert.Equal(t, "missing", fe.Reason)
}

func TestBoundaries(t *testing.T) {
	values := sampleValues()
	values.Set(Tenure, "0")
	values.Set(MonthlyCharges, "0")
	values.Set(TotalCharges, "0.0")
	_, err := FromValues(values)
	require.NoError(t, err)

	values.Set(Tenure, "75")
	values.Set(MonthlyCharges, "200")
	values.Set(TotalCharges, "8700")
	_, err = FromValues(values)
	require.NoError(t, err)
}

func TestFromMapNumbers(t *testing.T) {
	raw := map[string]any{}
	for k, v := range sampleValues() {
		raw[k] = v[0]
	}
	raw[Tenure] = float64(12)
	raw[MonthlyCharges] = 29.85

	rec, err := FromMap(raw)
	require.NoError(t, err)
	assert.Equal(t, 12, rec.Tenure)
	assert.Equal(t, 29.85, rec.MonthlyCharges)
}

func TestStringsCanonicalOrder(t *testing.T) {
	rec, err := FromValues(sampleValues())
	require.NoError(t, err)

	out := rec.Strings()
	require.Len(t, out, len(Schema))
	assert.Equal(t, "1", out[0])
	assert.Equal(t, "70.35", out[1])
	assert.Equal(t, "Electronic check", out[len(out)-1])
	assert.Equal(t, Columns()[len(out)-1], PaymentMethod)
}

func TestValidateZeroRecord(t *testing.T) {
	err := Record{}.Validate()
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, SeniorCitizen, fe.Field)
}
