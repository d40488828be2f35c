package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"feedback-kiosk/internal/domain"
	"feedback-kiosk/internal/infra/metrics"
)

const defaultInterval = 10 * time.Second

// Handler получает результат каждого завершённого опроса: либо полный
// список талонов, либо классифицированную ошибку.
type Handler func(services []domain.CompletedService, err error)

// Service периодически опрашивает завершённые талоны подразделения.
// Гарантия single-flight: в любой момент не больше одного запроса; тик
// или ручной Refresh во время незавершённого запроса отбрасывается, а не
// ставится в очередь.
type Service struct {
	api      domain.CompletedServiceAPI
	interval time.Duration
	log      zerolog.Logger

	mu           sync.Mutex
	running      bool
	inFlight     bool
	gen          uint64
	cancel       context.CancelFunc
	runCtx       context.Context
	departmentID int64
	handler      Handler
}

// NewService создаёт поллер.
func NewService(api domain.CompletedServiceAPI, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{api: api, interval: interval, log: logger}
}

// Start запускает цикл опроса. Первый запрос уходит сразу, не дожидаясь
// тика. Повторный Start без Stop — no-op.
func (s *Service) Start(ctx context.Context, departmentID int64, handler Handler) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Int64("department", departmentID).Msg("poller: уже запущен")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.gen++
	// запрос прошлого запуска мог пережить Stop; его очистка отсечётся по
	// поколению, поэтому флаг сбрасывается здесь
	s.inFlight = false
	s.runCtx = runCtx
	s.cancel = cancel
	s.departmentID = departmentID
	s.handler = handler
	s.mu.Unlock()

	s.log.Debug().Int64("department", departmentID).Dur("interval", s.interval).Msg("poller: старт")
	go s.loop(runCtx)
}

// Stop останавливает цикл и отменяет незавершённый запрос. Идемпотентен.
// Результат запроса, пережившего Stop, не доставляется.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.handler = nil
	s.mu.Unlock()

	cancel()
	s.log.Debug().Msg("poller: остановлен")
}

// Refresh — ручной триггер того же пути опроса. Возвращает false, если
// триггер отброшен: опрос уже идёт или поллер не запущен.
func (s *Service) Refresh() bool {
	s.mu.Lock()
	ctx := s.runCtx
	running := s.running
	s.mu.Unlock()
	if !running {
		return false
	}
	return s.trigger(ctx)
}

// InFlight сообщает, выполняется ли запрос прямо сейчас.
func (s *Service) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Service) loop(ctx context.Context) {
	s.trigger(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

// trigger захватывает флаг single-flight и запускает один опрос. Сам
// запрос выполняется вне блокировки.
func (s *Service) trigger(ctx context.Context) bool {
	s.mu.Lock()
	if !s.running || ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if s.inFlight {
		s.mu.Unlock()
		metrics.IncPollSkipped()
		s.log.Debug().Msg("poller: триггер отброшен, запрос ещё идёт")
		return false
	}
	s.inFlight = true
	gen := s.gen
	departmentID := s.departmentID
	handler := s.handler
	s.mu.Unlock()

	go s.run(ctx, gen, departmentID, handler)
	return true
}

func (s *Service) run(ctx context.Context, gen uint64, departmentID int64, handler Handler) {
	start := time.Now()
	services, err := s.api.FetchCompletedServices(ctx, departmentID)
	metrics.ObservePollCycle(start)

	s.mu.Lock()
	if s.gen == gen {
		s.inFlight = false
	}
	alive := s.running && s.gen == gen && ctx.Err() == nil
	s.mu.Unlock()

	if !alive {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Int64("department", departmentID).Msg("poller: опрос не удался")
	}
	handler(services, err)
}
