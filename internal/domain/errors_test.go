package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusMessageTable(t *testing.T) {
	cases := map[int]string{
		400: "Bad request",
		401: "Unauthorized",
		403: "Forbidden",
		404: "Department not found",
		500: "Internal server error",
		503: "Service unavailable",
	}
	for code, want := range cases {
		if got := StatusMessage(code); got != want {
			t.Fatalf("код %d: ожидали %q, получили %q", code, want, got)
		}
	}
}

func TestStatusMessageDefault(t *testing.T) {
	want := "Failed to load departments (Status code: 418)"
	if got := StatusMessage(418); got != want {
		t.Fatalf("ожидали %q, получили %q", want, got)
	}
	if got := (&HTTPStatusError{Code: 418}).Error(); got != want {
		t.Fatalf("ошибка должна использовать ту же таблицу, получили %q", got)
	}
}

func TestServerRejectionDefaultMessage(t *testing.T) {
	if got := (&ServerRejectionError{}).Error(); got != DefaultRejectionMessage {
		t.Fatalf("ожидали сообщение по умолчанию, получили %q", got)
	}
	if got := (&ServerRejectionError{Message: "Invalid token"}).Error(); got != "Invalid token" {
		t.Fatalf("ожидали сообщение сервера, получили %q", got)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{ErrNoConnectivity, KindNoConnectivity},
		{fmt.Errorf("запрос: %w", ErrTimeout), KindTimeout},
		{ErrMalformedResponse, KindMalformed},
		{ErrNoRating, KindValidation},
		{ErrSubmissionInFlight, KindValidation},
		{&HTTPStatusError{Code: 500}, KindHTTPStatus},
		{&ServerRejectionError{Message: "nope"}, KindServerRejection},
		{errors.New("что-то ещё"), KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("ошибка %v: ожидали вид %q, получили %q", tc.err, tc.want, got)
		}
	}
}

func TestRecoverable(t *testing.T) {
	if !Recoverable(ErrTimeout) || !Recoverable(fmt.Errorf("отправка: %w", ErrNoConnectivity)) {
		t.Fatalf("сбои связи должны допускать повтор")
	}
	if Recoverable(&ServerRejectionError{}) || Recoverable(ErrNoRating) || Recoverable(nil) {
		t.Fatalf("отказ сервера и валидация не должны допускать повтор")
	}
}
