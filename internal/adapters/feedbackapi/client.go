package feedbackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"feedback-kiosk/internal/domain"
	"feedback-kiosk/internal/infra/metrics"
)

const defaultTimeout = 10 * time.Second

// Client ходит в удалённый API обратной связи. Состояния между вызовами
// не хранит, безопасен для конкурентного использования.
type Client struct {
	baseURL      *url.URL
	assetBaseURL *url.URL
	httpClient   *http.Client
}

// Option настраивает клиент.
type Option func(*Client)

// WithHTTPClient подменяет транспорт (используется в тестах).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout задаёт клиентский таймаут запросов.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// New создаёт клиент. assetBaseURL нужен только для сборки абсолютных
// ссылок на логотипы; при пустом значении используется baseURL.
func New(baseURL, assetBaseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	assets := parsed
	if assetBaseURL != "" {
		assets, err = url.Parse(assetBaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse asset base url: %w", err)
		}
		if assets.Scheme == "" {
			assets.Scheme = parsed.Scheme
		}
	}
	client := &Client{
		baseURL:      parsed,
		assetBaseURL: assets,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type departmentDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Logo        *string `json:"logo"`
}

type directoryResponse struct {
	Departments []departmentDTO `json:"departments"`
}

type namedDTO struct {
	Name *string `json:"name"`
}

type tokenDTO struct {
	TokenNo    *string  `json:"token_no"`
	User       namedDTO `json:"user"`
	Service    namedDTO `json:"service"`
	Department namedDTO `json:"department"`
}

type tokensResponse struct {
	Success bool       `json:"success"`
	Tokens  []tokenDTO `json:"tokens"`
}

type feedbackRequest struct {
	Rate        int    `json:"rate"`
	TokenNumber string `json:"token_number"`
	Comment     string `json:"comment"`
}

type feedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FetchDepartments возвращает список подразделений.
func (c *Client) FetchDepartments(ctx context.Context) ([]domain.Department, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/departments", nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("feedbackapi", "fetch_departments", "departments", start, err)
	if err != nil {
		return nil, fmt.Errorf("загрузка подразделений: %w", classifyTransportError(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return nil, &domain.HTTPStatusError{Code: resp.StatusCode}
	}
	var body directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("разбор списка подразделений: %w", domain.ErrMalformedResponse)
	}
	departments := make([]domain.Department, 0, len(body.Departments))
	for _, dto := range body.Departments {
		dep := domain.Department{
			ID:          dto.ID,
			Name:        dto.Name,
			Description: dto.Description,
		}
		if dto.Logo != nil {
			dep.Logo = *dto.Logo
			dep.LogoURL = c.resolveAsset(*dto.Logo)
		}
		departments = append(departments, dep)
	}
	return departments, nil
}

// FetchCompletedServices возвращает завершённые талоны подразделения.
// Отсутствующие вложенные поля талона заменяются заглушкой независимо
// друг от друга, запись целиком не бракуется.
func (c *Client) FetchCompletedServices(ctx context.Context, departmentID int64) ([]domain.CompletedService, error) {
	endpoint := fmt.Sprintf("/departments/%d/feedback-tokens", departmentID)
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("feedbackapi", "fetch_tokens", "feedback-tokens", start, err)
	if err != nil {
		return nil, fmt.Errorf("загрузка талонов: %w", classifyTransportError(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return nil, &domain.HTTPStatusError{Code: resp.StatusCode}
	}
	var body tokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("разбор списка талонов: %w", domain.ErrMalformedResponse)
	}
	if !body.Success {
		return nil, fmt.Errorf("загрузка талонов: %w", domain.ErrMalformedResponse)
	}
	services := make([]domain.CompletedService, 0, len(body.Tokens))
	for _, token := range body.Tokens {
		services = append(services, domain.CompletedService{
			TicketNumber:   orPlaceholder(token.TokenNo),
			CounterName:    orPlaceholder(token.User.Name),
			ServiceName:    orPlaceholder(token.Service.Name),
			DepartmentName: orPlaceholder(token.Department.Name),
		})
	}
	return services, nil
}

// SubmitFeedback отправляет оценку. Попытка ровно одна, повторов нет.
func (c *Client) SubmitFeedback(ctx context.Context, submission domain.FeedbackSubmission) error {
	payload := feedbackRequest{
		Rate:        submission.Rating,
		TokenNumber: submission.TicketNumber,
		Comment:     submission.Comment,
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/feedbacks", payload)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("feedbackapi", "submit_feedback", "feedbacks", start, err)
	if err != nil {
		return fmt.Errorf("отправка отзыва: %w", classifyTransportError(err))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("чтение ответа: %w", domain.ErrMalformedResponse)
	}
	var body feedbackResponse
	decodeErr := json.Unmarshal(data, &body)
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if decodeErr != nil {
			return fmt.Errorf("разбор ответа: %w", domain.ErrMalformedResponse)
		}
		if body.Success {
			return nil
		}
	}
	return &domain.ServerRejectionError{Message: body.Message}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	resolved := *c.baseURL
	basePath := strings.TrimSuffix(c.baseURL.Path, "/")
	resolved.Path = path.Clean(basePath + endpoint)
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) resolveAsset(logo string) string {
	ref, err := url.Parse(strings.TrimPrefix(logo, "/"))
	if err != nil {
		return ""
	}
	// уже абсолютная ссылка не пересобирается
	if ref.Scheme != "" || ref.Host != "" {
		return logo
	}
	resolved := *c.assetBaseURL
	resolved.Path = strings.TrimSuffix(resolved.Path, "/") + "/" + ref.Path
	resolved.RawQuery = ref.RawQuery
	return resolved.String()
}

// classifyTransportError сводит транспортные ошибки http.Client к видам
// доменной таксономии. Наружу они не выходят в сыром виде.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.ErrNoConnectivity
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.ErrNoConnectivity
	}
	return err
}

func orPlaceholder(value *string) string {
	if value == nil || *value == "" {
		return domain.FieldPlaceholder
	}
	return *value
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, body)
}

var _ domain.DirectoryAPI = (*Client)(nil)
var _ domain.CompletedServiceAPI = (*Client)(nil)
var _ domain.FeedbackSubmitAPI = (*Client)(nil)
