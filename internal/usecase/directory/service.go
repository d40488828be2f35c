package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"feedback-kiosk/internal/domain"
	"feedback-kiosk/internal/infra/metrics"
)

const cacheKey = "directory:v1"

// Service загружает справочник подразделений. Последний удачный список
// держится в TTL-кэше, чтобы киоск после перезапуска показал экран выбора
// сразу, пока живая загрузка идёт в фоне.
type Service struct {
	api   domain.DirectoryAPI
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewService создаёт сервис справочника. cache может быть nil.
func NewService(api domain.DirectoryAPI, cache domain.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{api: api, cache: cache, ttl: ttl, log: logger}
}

// Load выполняет живую загрузку и обновляет кэш. Повторов внутри нет,
// повтор — это новый вызов по действию пользователя.
func (s *Service) Load(ctx context.Context) ([]domain.Department, error) {
	departments, err := s.api.FetchDepartments(ctx)
	if err != nil {
		return nil, err
	}
	s.store(departments)
	return departments, nil
}

// Cached возвращает последний удачный список из кэша.
func (s *Service) Cached() ([]domain.Department, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(cacheKey)
	if err != nil {
		metrics.IncDirectoryCache("miss")
		return nil, false
	}
	var departments []domain.Department
	if err := json.Unmarshal(data, &departments); err != nil {
		s.log.Warn().Err(err).Msg("directory: кэш не разобрался, игнорируем")
		metrics.IncDirectoryCache("decode_error")
		return nil, false
	}
	metrics.IncDirectoryCache("hit")
	return departments, true
}

func (s *Service) store(departments []domain.Department) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(departments)
	if err != nil {
		return
	}
	if err := s.cache.Set(cacheKey, data, s.ttl); err != nil {
		s.log.Warn().Err(err).Msg("directory: не удалось обновить кэш")
		metrics.IncDirectoryCache("store_error")
	}
}
