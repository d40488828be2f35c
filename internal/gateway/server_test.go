package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"feedback-kiosk/internal/adapters/feedbackapi"
	"feedback-kiosk/internal/usecase/appstate"
	"feedback-kiosk/internal/usecase/directory"
	"feedback-kiosk/internal/usecase/poller"
	"feedback-kiosk/internal/usecase/submit"
)

// backend имитирует удалённый API обратной связи.
type backend struct {
	mu          sync.Mutex
	submits     int
	lastPayload map[string]any
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/departments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"departments":[{"id":7,"name":"Касса","description":"Оплата","logo":null}]}`)
	})
	mux.HandleFunc("/departments/7/feedback-tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"success":true,"tokens":[{"token_no":"A-001","user":{"name":"Окно 1"},"service":{"name":"Оплата"},"department":{"name":"Касса"}}]}`)
	})
	mux.HandleFunc("/feedbacks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		b.mu.Lock()
		b.submits++
		_ = json.NewDecoder(r.Body).Decode(&b.lastPayload)
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"success":true}`)
	})
	return mux
}

func (b *backend) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits
}

func newStack(t *testing.T) (*httptest.Server, *backend) {
	t.Helper()
	api := &backend{}
	remote := httptest.NewServer(api.handler())
	t.Cleanup(remote.Close)

	client, err := feedbackapi.New(remote.URL, "")
	if err != nil {
		t.Fatalf("не ожидали ошибку создания клиента: %v", err)
	}
	directoryService := directory.NewService(client, nil, time.Minute, zerolog.Nop())
	pollerService := poller.NewService(client, 50*time.Millisecond, zerolog.Nop())
	submitService := submit.NewService(client, pollerService, nil, nil, zerolog.Nop())
	controller := appstate.NewController(directoryService, pollerService, submitService, time.Second, zerolog.Nop())
	t.Cleanup(controller.Close)

	server := NewServer(controller, nil, zerolog.Nop())
	local := httptest.NewServer(server.Router())
	t.Cleanup(local.Close)
	return local, api
}

func getState(t *testing.T, base string) appstate.Snapshot {
	t.Helper()
	resp, err := http.Get(base + "/api/v1/state")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer resp.Body.Close()
	var snap appstate.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("разбор снимка: %v", err)
	}
	return snap
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	resp, err := http.Post(url, "application/json", reader)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return resp
}

func waitForPhase(t *testing.T, base string, phase appstate.Phase) appstate.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := getState(t, base)
		if snap.Phase == phase {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("не дождались фазы %s, текущая %s", phase, getState(t, base).Phase)
	return appstate.Snapshot{}
}

func TestKioskFlow(t *testing.T) {
	local, remote := newStack(t)
	base := local.URL

	resp := post(t, base+"/api/v1/directory/refresh", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ожидали 202, получили %d", resp.StatusCode)
	}
	snap := waitForPhase(t, base, appstate.PhaseDirectoryReady)
	if len(snap.Departments) != 1 || snap.Departments[0].Name != "Касса" {
		t.Fatalf("справочник не дошёл до снимка: %+v", snap.Departments)
	}

	resp = post(t, base+"/api/v1/departments/7/select", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", resp.StatusCode)
	}
	snap = waitForPhase(t, base, appstate.PhaseServiceReady)
	if len(snap.Services) != 1 || snap.Services[0].TicketNumber != "A-001" {
		t.Fatalf("талоны не дошли до снимка: %+v", snap.Services)
	}

	resp = post(t, base+"/api/v1/submission/open", map[string]string{"token_number": "A-001"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", resp.StatusCode)
	}

	resp = post(t, base+"/api/v1/feedback", map[string]any{"rate": 5, "token_number": "A-001", "comment": "быстро"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", resp.StatusCode)
	}
	var submitResp struct {
		Result submit.Result     `json:"result"`
		State  appstate.Snapshot `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if submitResp.Result.Outcome != "accepted" || submitResp.Result.AttemptID == "" {
		t.Fatalf("неожиданный результат отправки: %+v", submitResp.Result)
	}
	if submitResp.State.SubmissionOpen {
		t.Fatalf("после успеха форма должна быть закрыта")
	}
	if submitResp.State.Notice == nil || submitResp.State.Notice.Kind != "success" {
		t.Fatalf("ожидали уведомление об успехе: %+v", submitResp.State.Notice)
	}
	if remote.submitCount() != 1 {
		t.Fatalf("ожидали одну отправку на сервер, получили %d", remote.submitCount())
	}
}

func TestFeedbackWithoutRating(t *testing.T) {
	local, remote := newStack(t)
	base := local.URL

	post(t, base+"/api/v1/directory/refresh", nil).Body.Close()
	waitForPhase(t, base, appstate.PhaseDirectoryReady)
	post(t, base+"/api/v1/departments/7/select", nil).Body.Close()
	waitForPhase(t, base, appstate.PhaseServiceReady)

	resp := post(t, base+"/api/v1/feedback", map[string]any{"rate": 0, "token_number": "A-001"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("ожидали 422, получили %d", resp.StatusCode)
	}
	if remote.submitCount() != 0 {
		t.Fatalf("без оценки сетевых отправок быть не должно")
	}
}

func TestSelectUnknownDepartment(t *testing.T) {
	local, _ := newStack(t)
	base := local.URL

	post(t, base+"/api/v1/directory/refresh", nil).Body.Close()
	waitForPhase(t, base, appstate.PhaseDirectoryReady)

	resp := post(t, base+"/api/v1/departments/99/select", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", resp.StatusCode)
	}
}

func TestBackReturnsToDirectory(t *testing.T) {
	local, _ := newStack(t)
	base := local.URL

	post(t, base+"/api/v1/directory/refresh", nil).Body.Close()
	waitForPhase(t, base, appstate.PhaseDirectoryReady)
	post(t, base+"/api/v1/departments/7/select", nil).Body.Close()
	waitForPhase(t, base, appstate.PhaseServiceReady)

	resp := post(t, base+"/api/v1/session/back", nil)
	resp.Body.Close()
	snap := getState(t, base)
	if snap.Phase != appstate.PhaseDirectoryReady || snap.Selected != nil {
		t.Fatalf("после возврата ожидали экран выбора: %+v", snap)
	}
}

func TestJournalNotConfigured(t *testing.T) {
	local, _ := newStack(t)
	resp, err := http.Get(local.URL + "/api/v1/submissions")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("без журнала ожидали 404, получили %d", resp.StatusCode)
	}
}
