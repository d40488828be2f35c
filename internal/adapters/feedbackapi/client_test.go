package feedbackapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedback-kiosk/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(srv.URL, srv.URL+"/assets")
	if err != nil {
		t.Fatalf("не ожидали ошибку создания клиента: %v", err)
	}
	return client, srv
}

func TestFetchDepartments(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/departments" {
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
		w.Write([]byte(`{"departments":[
			{"id":1,"name":"Паспортный стол","description":"Документы","logo":"logos/passport.png"},
			{"id":2,"name":"Касса","description":"Оплата","logo":null}
		]}`))
	})

	departments, err := client.FetchDepartments(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(departments) != 2 {
		t.Fatalf("ожидали 2 подразделения, получили %d", len(departments))
	}
	first := departments[0]
	if first.ID != 1 || first.Name != "Паспортный стол" || first.Description != "Документы" {
		t.Fatalf("поля должны переноситься без изменений: %+v", first)
	}
	if first.LogoURL == "" || first.Logo != "logos/passport.png" {
		t.Fatalf("ожидали собранный URL логотипа, получили %+v", first)
	}
	if departments[1].Logo != "" || departments[1].LogoURL != "" {
		t.Fatalf("отсутствующий логотип не должен ломать декодирование: %+v", departments[1])
	}
}

func TestFetchDepartmentsAbsoluteLogo(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"departments":[
			{"id":1,"name":"Касса","description":"Оплата","logo":"https://cdn.example.com/logos/cash.png"}
		]}`))
	})

	departments, err := client.FetchDepartments(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := departments[0].LogoURL; got != "https://cdn.example.com/logos/cash.png" {
		t.Fatalf("абсолютная ссылка должна переноситься как есть, получили %q", got)
	}
}

func TestFetchDepartmentsStatusTable(t *testing.T) {
	cases := map[int]string{
		400: "Bad request",
		401: "Unauthorized",
		403: "Forbidden",
		404: "Department not found",
		500: "Internal server error",
		503: "Service unavailable",
		418: "Failed to load departments (Status code: 418)",
	}
	for code, want := range cases {
		status := code
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		_, err := client.FetchDepartments(context.Background())
		var statusErr *domain.HTTPStatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("код %d: ожидали HTTPStatusError, получили %v", code, err)
		}
		if statusErr.Error() != want {
			t.Fatalf("код %d: ожидали %q, получили %q", code, want, statusErr.Error())
		}
	}
}

func TestFetchDepartmentsMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"departments": [`))
	})
	_, err := client.FetchDepartments(context.Background())
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("ожидали ErrMalformedResponse, получили %v", err)
	}
}

func TestFetchCompletedServicesDefaults(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/departments/7/feedback-tokens" {
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"tokens":[
			{"token_no":"A-042","user":{"name":"Окно 3"},"service":{"name":"Выдача"},"department":{"name":"Касса"}},
			{"token_no":"A-043","service":{"name":"Выдача"}},
			{}
		]}`))
	})

	services, err := client.FetchCompletedServices(context.Background(), 7)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(services) != 3 {
		t.Fatalf("ожидали 3 талона, получили %d", len(services))
	}
	full := services[0]
	if full.TicketNumber != "A-042" || full.CounterName != "Окно 3" || full.ServiceName != "Выдача" || full.DepartmentName != "Касса" {
		t.Fatalf("полный талон должен переноситься без изменений: %+v", full)
	}
	partial := services[1]
	if partial.TicketNumber != "A-043" || partial.ServiceName != "Выдача" {
		t.Fatalf("присутствующие поля не должны затираться: %+v", partial)
	}
	if partial.CounterName != domain.FieldPlaceholder || partial.DepartmentName != domain.FieldPlaceholder {
		t.Fatalf("отсутствующие поля должны заменяться независимо: %+v", partial)
	}
	empty := services[2]
	if empty.TicketNumber != domain.FieldPlaceholder || empty.CounterName != domain.FieldPlaceholder ||
		empty.ServiceName != domain.FieldPlaceholder || empty.DepartmentName != domain.FieldPlaceholder {
		t.Fatalf("пустой талон должен состоять из заглушек: %+v", empty)
	}
}

func TestFetchCompletedServicesEnvelopeFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	})
	_, err := client.FetchCompletedServices(context.Background(), 7)
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("success=false должен давать ошибку, получили %v", err)
	}
}

func TestSubmitFeedbackCreated(t *testing.T) {
	var got feedbackRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feedbacks" || r.Method != http.MethodPost {
			t.Errorf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("ожидали application/json, получили %q", ct)
		}
		if err := jsonDecode(r, &got); err != nil {
			t.Errorf("разбор тела: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true}`))
	})

	err := client.SubmitFeedback(context.Background(), domain.FeedbackSubmission{Rating: 5, TicketNumber: "A-042", Comment: "быстро"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Rate != 5 || got.TokenNumber != "A-042" || got.Comment != "быстро" {
		t.Fatalf("тело запроса собрано неверно: %+v", got)
	}
}

func TestSubmitFeedbackServerRejection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"Invalid token"}`))
	})
	err := client.SubmitFeedback(context.Background(), domain.FeedbackSubmission{Rating: 3, TicketNumber: "A-001"})
	var rejection *domain.ServerRejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("ожидали ServerRejectionError, получили %v", err)
	}
	if rejection.Message != "Invalid token" {
		t.Fatalf("ожидали сообщение сервера, получили %q", rejection.Message)
	}
}

func TestSubmitFeedbackRejectionWithoutMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	err := client.SubmitFeedback(context.Background(), domain.FeedbackSubmission{Rating: 3, TicketNumber: "A-001"})
	var rejection *domain.ServerRejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("ожидали ServerRejectionError, получили %v", err)
	}
	if rejection.Error() != domain.DefaultRejectionMessage {
		t.Fatalf("ожидали сообщение по умолчанию, получили %q", rejection.Error())
	}
}

func TestTimeoutClassification(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	WithTimeout(20 * time.Millisecond)(client)

	_, err := client.FetchCompletedServices(context.Background(), 7)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("ожидали ErrTimeout, получили %v", err)
	}
}

func TestNoConnectivityClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	client, err := New(addr, "")
	if err != nil {
		t.Fatalf("не ожидали ошибку создания клиента: %v", err)
	}
	_, err = client.FetchDepartments(context.Background())
	if !errors.Is(err, domain.ErrNoConnectivity) {
		t.Fatalf("ожидали ErrNoConnectivity, получили %v", err)
	}
}

func jsonDecode(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
