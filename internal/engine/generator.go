package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
	"github.com/ferrychris/policyweb-sub000/internal/connectors"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mode: способ получения текста политики.
type Mode string

const (
	ModeTemplate Mode = "template" // статический шаблон, без внешних вызовов
	ModeLLM      Mode = "llm"      // один запрос к сервису генерации
)

// Request: входные данные одной генерации.
type Request struct {
	UserID     string
	PolicyType domain.PolicyType
	Details    domain.OrganizationDetails
}

type Result struct {
	Content    string
	References []string
	Mode       Mode
	Prompt     string // пустой для ModeTemplate
}

// Config: параметры генерации.
type Config struct {
	Mode        Mode
	MaxTokens   int
	Temperature float64
}

// Generator: ядро генерации. Валидирует анкету до любых внешних вызовов,
// выбирает режим и пишет результат в журнал активности.
type Generator struct {
	cfg       Config
	llm       connectors.TextGenerator // обычно ReliabilityWrapper
	templates *TemplateRenderer
	auditor   audit.Auditor
	metrics   *Metrics
	switches  Suspensions
	logger    *zap.Logger
	now       func() time.Time
}

// Suspensions: стоп-кран по типам (KillSwitchManager).
type Suspensions interface {
	IsBlocked(typeID string) bool
}

func NewGenerator(cfg Config, llm connectors.TextGenerator, auditor audit.Auditor, metrics *Metrics, logger *zap.Logger) (*Generator, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeTemplate
	}
	if cfg.Mode == ModeLLM && llm == nil {
		return nil, fmt.Errorf("engine: llm mode requires a text generator")
	}
	if cfg.Mode != ModeLLM && cfg.Mode != ModeTemplate {
		return nil, fmt.Errorf("engine: unknown generation mode %q", cfg.Mode)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	tpl, err := NewTemplateRenderer()
	if err != nil {
		return nil, err
	}
	return &Generator{
		cfg:       cfg,
		llm:       llm,
		templates: tpl,
		auditor:   auditor,
		metrics:   metrics,
		logger:    logger.Named("generator"),
		now:       time.Now,
	}, nil
}

// WithKillSwitch подключает стоп-кран. Приостановленный тип не доходит
// ни до шаблона, ни до провайдера.
func (g *Generator) WithKillSwitch(s Suspensions) *Generator {
	g.switches = s
	return g
}

func (g *Generator) Mode() Mode { return g.cfg.Mode }

// Metrics отдаются визарду для счетчика устаревших ответов.
func (g *Generator) Metrics() *Metrics { return g.metrics }

// Generate возвращает очищенный Markdown. Ошибки:
//   - *domain.ValidationError, если не заполнены обязательные поля (внешних вызовов нет);
//   - *connectors.APIError после исчерпания повторов или для auth/bad request;
//   - ErrProviderUnavailable, когда разомкнут предохранитель.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	mode := g.cfg.Mode
	typeID := req.PolicyType.ID
	g.metrics.GenerationsTotal.WithLabelValues(string(mode), typeID).Inc()
	start := time.Now()

	event := audit.Event{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceID(ctx),
		UserID:     req.UserID,
		Action:     audit.ActionGenerate,
		PolicyType: typeID,
		Mode:       string(mode),
		Timestamp:  start,
		Details: map[string]interface{}{
			"template": req.Details.Template,
			"company":  req.Details.CompanyName,
		},
	}

	res, err := g.generate(ctx, mode, req)

	event.DurationMs = time.Since(start).Milliseconds()
	switch {
	case err == nil:
		event.Status = audit.StatusSuccess
	case isValidation(err):
		event.Status = audit.StatusRejected
		event.Error = err.Error()
	default:
		event.Status = audit.StatusFailed
		event.Error = err.Error()
	}
	if err != nil {
		g.metrics.ErrorTotal.WithLabelValues(errorType(err)).Inc()
	}
	g.metrics.GenerationDuration.WithLabelValues(string(mode), typeID, event.Status).Observe(time.Since(start).Seconds())

	if g.auditor != nil {
		g.auditor.Log(event)
	}
	if err != nil {
		g.logger.Warn("generation failed",
			zap.String("policy_type", typeID), zap.String("mode", string(mode)),
			zap.String("trace_id", event.TraceID), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (g *Generator) generate(ctx context.Context, mode Mode, req Request) (*Result, error) {
	if req.PolicyType.ID == "" {
		v := &domain.ValidationError{}
		v.Add("policy_type", "is required")
		return nil, v
	}
	if g.switches != nil && g.switches.IsBlocked(req.PolicyType.ID) {
		return nil, fmt.Errorf("%w: %s", ErrGenerationSuspended, req.PolicyType.ID)
	}
	if err := ValidateDetails(req.Details); err != nil {
		return nil, err
	}
	details := req.Details.WithDefaults(g.now())

	var raw, prompt string
	var err error

	if mode == ModeTemplate {
		raw, err = g.templates.Render(req.PolicyType, details)
	} else {
		prompt = BuildUserPrompt(req.PolicyType, details)
		raw, err = g.llm.Generate(ctx, connectors.Prompt{
			System:      SystemPrompt,
			User:        prompt,
			MaxTokens:   g.cfg.MaxTokens,
			Temperature: g.cfg.Temperature,
		})
	}
	if err != nil {
		return nil, err
	}

	content := Sanitize(raw)
	if content == "" {
		return nil, &connectors.APIError{Provider: string(mode), Kind: connectors.KindEmpty, Message: "generated document is empty"}
	}
	return &Result{
		Content:    content,
		References: ExtractReferences(content),
		Mode:       mode,
		Prompt:     prompt,
	}, nil
}

func isValidation(err error) bool {
	_, ok := domain.IsValidation(err)
	return ok
}

func errorType(err error) string {
	var apiErr *connectors.APIError
	switch {
	case isValidation(err):
		return "validation"
	case errors.As(err, &apiErr):
		return string(apiErr.Kind)
	case errors.Is(err, ErrProviderUnavailable):
		return "circuit_open"
	case errors.Is(err, ErrGenerationSuspended):
		return "suspended"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "internal"
}
