package ml

import "fmt"

// SchemaMismatchError reports a customer field that is missing, unknown to
// the bundle, or outside its enumerated domain.
type SchemaMismatchError struct {
	Field  string
	Value  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("schema mismatch on %s: %s (got %q)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("schema mismatch on %s: %s", e.Field, e.Reason)
}

// UnknownCategoryError reports a categorical value the encoder did not see
// at fit time.
type UnknownCategoryError struct {
	Field string
	Value string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q for %s", e.Value, e.Field)
}

// ArtifactFetchError reports a model bundle that could not be downloaded or
// failed validation.
type ArtifactFetchError struct {
	URL string
	Err error
}

func (e *ArtifactFetchError) Error() string {
	return fmt.Sprintf("fetch model bundle %s: %v", e.URL, e.Err)
}

func (e *ArtifactFetchError) Unwrap() error {
	return e.Err
}
