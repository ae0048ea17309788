package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(KindAuth, "test message"),
			want: "[auth] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(KindInternal, "test message", errors.New("underlying")),
			want: "[internal] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(KindInternal, "test", underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestError_WithDetails(t *testing.T) {
	err := Validation("bad input")
	err.WithDetails("field", "title").WithDetails("reason", "empty")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "title" {
		t.Errorf("Details[field] = %v, want title", err.Details["field"])
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindAuth, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		err := New(tt.kind, "x")
		if got := err.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestAsAndKindOf(t *testing.T) {
	err := NotFound("task", "T1")
	wrapped := Wrap(KindInternal, "outer", err)

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find an *Error")
	}
	if got.Kind != KindInternal {
		t.Fatalf("expected outer kind internal, got %s", got.Kind)
	}

	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("expected plain errors to default to KindInternal")
	}
}

func TestRateLimited(t *testing.T) {
	err := RateLimited(850)
	if err.Details["waitTime"] != int64(850) {
		t.Fatalf("expected waitTime detail, got %v", err.Details["waitTime"])
	}
}
