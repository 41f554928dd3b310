package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindInputValidation: http.StatusBadRequest,
		KindVersionMismatch: http.StatusConflict,
		KindInfoNotReceived: http.StatusNotFound,
		KindUserError:       http.StatusUnprocessableEntity,
		KindPlatformUtility: http.StatusBadGateway,
		KindSchemaMismatch:  http.StatusServiceUnavailable,
		KindUnexpected:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestCachesFailureOnlyInputValidation(t *testing.T) {
	if !CachesFailure(InputValidation("bad aoi")) {
		t.Fatal("InputValidationError must cache its failure")
	}
	if CachesFailure(Unexpected(errors.New("boom"))) {
		t.Fatal("non-InputValidationError must not cache its failure")
	}
	if CachesFailure(errors.New("plain error")) {
		t.Fatal("a non-ClimatoologyError must not cache its failure")
	}
}

func TestKindOfUnwrapsPlainErrors(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnexpected {
		t.Fatalf("KindOf(plain) = %s, want %s", got, KindUnexpected)
	}
	if got := KindOf(VersionMismatch("downgrade refused")); got != KindVersionMismatch {
		t.Fatalf("KindOf(VersionMismatch) = %s, want %s", got, KindVersionMismatch)
	}
}

func TestToResponse(t *testing.T) {
	resp := ToResponse(SchemaMismatch("reserved field aoi"))
	if resp.Error != string(KindSchemaMismatch) {
		t.Fatalf("Error = %q, want %q", resp.Error, KindSchemaMismatch)
	}
	if resp.Message != "reserved field aoi" {
		t.Fatalf("Message = %q", resp.Message)
	}

	resp = ToResponse(errors.New("boom"))
	if resp.Error != string(KindUnexpected) {
		t.Fatalf("Error = %q, want %q", resp.Error, KindUnexpected)
	}
}

func TestIsMatchesByKind(t *testing.T) {
	wrapped := Wrap(KindPlatformUtility, "upload failed", errors.New("s3 timeout"))
	if !errors.Is(wrapped, PlatformUtility("", nil)) {
		t.Fatal("errors.Is should match ClimatoologyError by Kind")
	}
	if errors.Is(wrapped, InputValidation("")) {
		t.Fatal("errors.Is must not match a different Kind")
	}
}
