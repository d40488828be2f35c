package appstate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"feedback-kiosk/internal/domain"
	"feedback-kiosk/internal/usecase/poller"
	"feedback-kiosk/internal/usecase/submit"
)

var (
	// ErrClosed — контроллер уже остановлен.
	ErrClosed = errors.New("контроллер остановлен")
	// ErrUnknownDepartment — подразделения нет в загруженном справочнике.
	ErrUnknownDepartment = errors.New("подразделение не найдено")
	// ErrUnknownTicket — талона нет в текущем списке.
	ErrUnknownTicket = errors.New("талон не найден")
	// ErrNoDepartment — операция требует выбранного подразделения.
	ErrNoDepartment = errors.New("подразделение не выбрано")
)

// Phase описывает состояние экрана киоска.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseDirectoryLoading   Phase = "directory_loading"
	PhaseDirectoryReady     Phase = "directory_ready"
	PhaseDirectoryError     Phase = "directory_error"
	PhaseServiceLoading     Phase = "service_loading"
	PhaseServiceReady       Phase = "service_ready"
	PhaseServiceError       Phase = "service_error"
	PhaseSubmissionInFlight Phase = "submission_in_flight"
)

// Notice — временное уведомление для дисплея.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot — атомарный снимок состояния для слоя отображения. Снимок
// самодостаточен: дисплей рисует его целиком, не зная истории переходов.
type Snapshot struct {
	Phase            Phase                     `json:"phase"`
	Departments      []domain.Department       `json:"departments"`
	Selected         *domain.Department        `json:"selected_department,omitempty"`
	Services         []domain.CompletedService `json:"services"`
	LastError        string                    `json:"last_error,omitempty"`
	LastErrorKind    domain.ErrorKind          `json:"last_error_kind,omitempty"`
	Notice           *Notice                   `json:"notice,omitempty"`
	DirectoryLoading bool                      `json:"directory_loading"`
	PollLoading      bool                      `json:"poll_loading"`
	SubmitLoading    bool                      `json:"submit_loading"`
	SubmissionOpen   bool                      `json:"submission_open"`
	ActiveTicket     string                    `json:"active_ticket,omitempty"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// Directory загружает справочник подразделений.
type Directory interface {
	Load(ctx context.Context) ([]domain.Department, error)
	Cached() ([]domain.Department, bool)
}

// Poller управляет циклом опроса талонов.
type Poller interface {
	Start(ctx context.Context, departmentID int64, handler poller.Handler)
	Stop()
	Refresh() bool
	InFlight() bool
}

// Submitter отправляет оценку талона.
type Submitter interface {
	Submit(ctx context.Context, departmentID int64, sub domain.FeedbackSubmission) (submit.Result, error)
}

// Controller владеет выбранным подразделением, кэшированными списками и
// флагами незавершённых операций. Все переходы состояний проходят через
// него; состояние меняется только целиком под одной блокировкой.
type Controller struct {
	directory Directory
	poller    Poller
	submitter Submitter
	noticeTTL time.Duration
	log       zerolog.Logger

	runCtx context.Context
	stop   context.CancelFunc

	mu             sync.Mutex
	snap           Snapshot
	closed         bool
	dirInFlight    bool
	submitInFlight bool
	// session отсекает колбэки поллера и отправки, пережившие выход с
	// экрана или переключение подразделения.
	session uint64
	// noticeGen отсекает таймеры автоскрытия, пережившие своё уведомление.
	noticeGen uint64
}

// NewController создаёт контроллер в состоянии Idle.
func NewController(directory Directory, pollerSvc Poller, submitter Submitter, noticeTTL time.Duration, logger zerolog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		directory: directory,
		poller:    pollerSvc,
		submitter: submitter,
		noticeTTL: noticeTTL,
		log:       logger,
		runCtx:    ctx,
		stop:      cancel,
		snap:      Snapshot{Phase: PhaseIdle, UpdatedAt: time.Now().UTC()},
	}
}

// Snapshot возвращает копию текущего состояния.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := c.snap
	if c.snap.Selected != nil {
		selected := *c.snap.Selected
		snap.Selected = &selected
	}
	if c.snap.Notice != nil {
		notice := *c.snap.Notice
		snap.Notice = &notice
	}
	snap.DirectoryLoading = c.dirInFlight
	snap.SubmitLoading = c.submitInFlight
	c.mu.Unlock()
	snap.PollLoading = c.poller.InFlight()
	return snap
}

// LoadDirectory запускает загрузку справочника в фоне. Возвращает false,
// если загрузка уже идёт или контроллер остановлен. Пока живая загрузка
// не завершилась, показывается список из кэша, если он есть.
func (c *Controller) LoadDirectory() bool {
	c.mu.Lock()
	if c.closed || c.dirInFlight {
		c.mu.Unlock()
		return false
	}
	c.dirInFlight = true
	if len(c.snap.Departments) == 0 {
		if cached, ok := c.directory.Cached(); ok {
			c.snap.Departments = cached
			c.snap.Phase = PhaseDirectoryReady
		} else {
			c.snap.Phase = PhaseDirectoryLoading
		}
	}
	c.touchLocked()
	c.mu.Unlock()

	go c.loadDirectory()
	return true
}

func (c *Controller) loadDirectory() {
	departments, err := c.directory.Load(c.runCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirInFlight = false
	if c.closed {
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("appstate: справочник не загрузился")
		c.snap.LastError = err.Error()
		c.snap.LastErrorKind = domain.KindOf(err)
		// кэшированный список, если он был показан, остаётся на экране
		if len(c.snap.Departments) == 0 && c.snap.Selected == nil {
			c.snap.Phase = PhaseDirectoryError
		}
		c.touchLocked()
		return
	}
	c.snap.Departments = departments
	c.snap.LastError = ""
	c.snap.LastErrorKind = domain.KindNone
	if c.snap.Selected == nil {
		c.snap.Phase = PhaseDirectoryReady
	}
	c.touchLocked()
}

// SelectDepartment переводит киоск на экран талонов и запускает поллер.
func (c *Controller) SelectDepartment(id int64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var selected *domain.Department
	for i := range c.snap.Departments {
		if c.snap.Departments[i].ID == id {
			dep := c.snap.Departments[i]
			selected = &dep
			break
		}
	}
	if selected == nil {
		c.mu.Unlock()
		return ErrUnknownDepartment
	}
	c.session++
	sess := c.session
	c.snap.Selected = selected
	c.snap.Services = nil
	c.snap.SubmissionOpen = false
	c.snap.ActiveTicket = ""
	c.snap.LastError = ""
	c.snap.LastErrorKind = domain.KindNone
	c.snap.Phase = PhaseServiceLoading
	c.touchLocked()
	c.mu.Unlock()

	c.poller.Stop()
	c.poller.Start(c.runCtx, id, func(services []domain.CompletedService, err error) {
		c.onPollResult(sess, services, err)
	})
	c.log.Info().Int64("department", id).Msg("appstate: подразделение выбрано")
	return nil
}

// Back возвращает киоск к экрану выбора и безусловно гасит поллер.
func (c *Controller) Back() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.session++
	c.snap.Selected = nil
	c.snap.Services = nil
	c.snap.SubmissionOpen = false
	c.snap.ActiveTicket = ""
	c.snap.LastError = ""
	c.snap.LastErrorKind = domain.KindNone
	if len(c.snap.Departments) > 0 {
		c.snap.Phase = PhaseDirectoryReady
	} else {
		c.snap.Phase = PhaseIdle
	}
	c.touchLocked()
	c.mu.Unlock()

	c.poller.Stop()
}

// RefreshServices — ручное обновление списка талонов. false означает,
// что триггер отброшен (опрос уже идёт или экран не тот).
func (c *Controller) RefreshServices() bool {
	c.mu.Lock()
	if c.closed || c.snap.Selected == nil {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	return c.poller.Refresh()
}

// OpenSubmission открывает форму оценки для талона из текущего списка.
func (c *Controller) OpenSubmission(ticket string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.snap.Selected == nil {
		return ErrNoDepartment
	}
	var found bool
	for _, service := range c.snap.Services {
		if service.TicketNumber == ticket {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownTicket
	}
	c.snap.SubmissionOpen = true
	c.snap.ActiveTicket = ticket
	c.touchLocked()
	return nil
}

// CloseSubmission закрывает форму оценки без отправки.
func (c *Controller) CloseSubmission() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.snap.SubmissionOpen = false
	c.snap.ActiveTicket = ""
	c.touchLocked()
}

// SubmitFeedback отправляет оценку синхронно и применяет политику формы:
// успех и окончательные отказы закрывают её, сбои связи оставляют
// открытой для повтора.
func (c *Controller) SubmitFeedback(ctx context.Context, sub domain.FeedbackSubmission) (submit.Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return submit.Result{}, ErrClosed
	}
	if c.snap.Selected == nil {
		c.mu.Unlock()
		return submit.Result{}, ErrNoDepartment
	}
	departmentID := c.snap.Selected.ID
	sess := c.session
	c.submitInFlight = true
	c.snap.Phase = PhaseSubmissionInFlight
	c.snap.SubmissionOpen = true
	c.snap.ActiveTicket = sub.TicketNumber
	c.touchLocked()
	c.mu.Unlock()

	result, err := c.submitter.Submit(ctx, departmentID, sub)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitInFlight = false
	if c.closed || sess != c.session {
		return result, err
	}
	if err == nil {
		c.snap.SubmissionOpen = false
		c.snap.ActiveTicket = ""
		c.setNoticeLocked(Notice{Kind: "success", Message: "Спасибо за оценку!"})
		c.snap.Phase = PhaseServiceLoading
		c.touchLocked()
		return result, nil
	}
	keepOpen := domain.Recoverable(err)
	c.snap.SubmissionOpen = keepOpen
	if !keepOpen {
		c.snap.ActiveTicket = ""
	}
	c.setNoticeLocked(Notice{Kind: "error", Message: err.Error()})
	if domain.KindOf(err) == domain.KindValidation {
		// сетевой попытки не было, опрос не дёргался
		c.snap.Phase = c.servicePhaseLocked()
	} else {
		c.snap.Phase = PhaseServiceLoading
	}
	c.touchLocked()
	return result, err
}

// DismissNotice скрывает уведомление вручную, не дожидаясь таймера.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.noticeGen++
	c.snap.Notice = nil
	c.touchLocked()
}

// Close гасит поллер и все отложенные таймеры. Идемпотентен.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.session++
	c.noticeGen++
	c.mu.Unlock()

	c.stop()
	c.poller.Stop()
}

func (c *Controller) onPollResult(sess uint64, services []domain.CompletedService, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || sess != c.session || c.snap.Selected == nil {
		return
	}
	if err != nil {
		c.snap.LastError = err.Error()
		c.snap.LastErrorKind = domain.KindOf(err)
		if !c.submitInFlight {
			c.snap.Phase = PhaseServiceError
		}
		c.touchLocked()
		return
	}
	c.snap.Services = services
	c.snap.LastError = ""
	c.snap.LastErrorKind = domain.KindNone
	if !c.submitInFlight {
		c.snap.Phase = PhaseServiceReady
	}
	// если открытый талон исчез из списка, форма закрывается
	if c.snap.SubmissionOpen && !c.submitInFlight {
		var found bool
		for _, service := range services {
			if service.TicketNumber == c.snap.ActiveTicket {
				found = true
				break
			}
		}
		if !found {
			c.snap.SubmissionOpen = false
			c.snap.ActiveTicket = ""
		}
	}
	c.touchLocked()
}

func (c *Controller) setNoticeLocked(notice Notice) {
	c.noticeGen++
	gen := c.noticeGen
	c.snap.Notice = &notice
	if c.noticeTTL <= 0 {
		return
	}
	time.AfterFunc(c.noticeTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.noticeGen {
			return
		}
		c.snap.Notice = nil
		c.touchLocked()
	})
}

func (c *Controller) servicePhaseLocked() Phase {
	if c.snap.Services != nil {
		return PhaseServiceReady
	}
	return PhaseServiceLoading
}

func (c *Controller) touchLocked() {
	c.snap.UpdatedAt = time.Now().UTC()
}
