package wizard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/engine"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ContentGenerator: движок генерации (engine.Generator).
type ContentGenerator interface {
	Generate(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// PolicyStore: куда сохраняется опубликованный документ.
type PolicyStore interface {
	Create(ctx context.Context, userID string, p domain.NewPolicy) (*domain.GeneratedPolicy, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// Rules: доступ к типам и лимит количества политик.
type Rules interface {
	Entitlements
	CheckLimit(key domain.PackageKey, current int) error
}

// Actor: кто выполняет операцию и с каким действующим пакетом.
type Actor struct {
	UserID  string
	Package domain.PackageKey
}

type Deps struct {
	Types     TypeCatalog
	Rules     Rules
	Generator ContentGenerator
	Store     PolicyStore
	Auditor   audit.Auditor      // опционально
	Stale     prometheus.Counter // опционально
	Logger    *zap.Logger
}

type entry struct {
	mu      sync.Mutex
	s       *Session
	touched time.Time
}

// Manager хранит сессии мастера в памяти. Мьютекс сессии держится только
// на время перехода состояния, но не во время вызова генерации.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	deps   Deps
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewManager(deps Deps, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Manager{
		sessions: make(map[string]*entry),
		deps:     deps,
		ttl:      ttl,
		now:      time.Now,
		logger:   deps.Logger.Named("wizard"),
	}
}

// Start открывает новую сессию на шаге select.
func (m *Manager) Start(_ context.Context, a Actor) (Session, error) {
	if a.UserID == "" {
		return Session{}, domain.ErrForbidden
	}
	now := m.now()
	s := NewSession(uuid.New().String(), a.UserID, a.Package, m.deps.Types, m.deps.Rules, now)

	m.mu.Lock()
	m.sessions[s.ID] = &entry{s: s, touched: now}
	m.mu.Unlock()

	m.logger.Debug("wizard session started", zap.String("session_id", s.ID), zap.String("user_id", a.UserID))
	return s.Snapshot(), nil
}

// Get возвращает снимок сессии владельца.
func (m *Manager) Get(_ context.Context, a Actor, id string) (Session, error) {
	e, err := m.lookup(a, id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Snapshot(), nil
}

// List: незавершенные и опубликованные сессии пользователя, свежие первыми.
func (m *Manager) List(_ context.Context, a Actor) []Session {
	m.mu.Lock()
	entries := make([]*entry, 0)
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]Session, 0)
	for _, e := range entries {
		e.mu.Lock()
		if e.s.UserID == a.UserID {
			out = append(out, e.s.Snapshot())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (m *Manager) SelectType(_ context.Context, a Actor, id, typeID string) (Session, error) {
	return m.mutate(a, id, func(s *Session) error { return s.PickPolicyType(typeID) })
}

func (m *Manager) Cancel(_ context.Context, a Actor, id string) (Session, error) {
	return m.mutate(a, id, func(s *Session) error { return s.Cancel() })
}

func (m *Manager) SubmitDetails(_ context.Context, a Actor, id string, d domain.OrganizationDetails) (Session, error) {
	return m.mutate(a, id, func(s *Session) error { return s.SubmitDetails(d) })
}

func (m *Manager) UpdateDetails(_ context.Context, a Actor, id string, d domain.OrganizationDetails) (Session, error) {
	return m.mutate(a, id, func(s *Session) error { return s.UpdateDetails(d) })
}

func (m *Manager) ToggleEdit(_ context.Context, a Actor, id string) (Session, error) {
	return m.mutate(a, id, func(s *Session) error { return s.ToggleEdit() })
}

func (m *Manager) SaveEdit(_ context.Context, a Actor, id, content string) (Session, error) {
	return m.mutate(a, id, func(s *Session) error { return s.SaveEdit(content, m.now()) })
}

func (m *Manager) RestoreVersion(_ context.Context, a Actor, id string, index int) (Session, error) {
	return m.mutate(a, id, func(s *Session) error { return s.RestoreVersion(index, m.now()) })
}

func (m *Manager) Back(_ context.Context, a Actor, id string) (Session, error) {
	return m.mutate(a, id, func(s *Session) error { return s.Back() })
}

// Confirm переводит в review и выполняет первую генерацию.
func (m *Manager) Confirm(ctx context.Context, a Actor, id string) (Session, error) {
	return m.generate(ctx, a, id, (*Session).Confirm)
}

// Regenerate: новая версия черновика, история растет на одну запись.
func (m *Manager) Regenerate(ctx context.Context, a Actor, id string) (Session, error) {
	return m.generate(ctx, a, id, (*Session).Regenerate)
}

// Retry повторяет упавшую генерацию.
func (m *Manager) Retry(ctx context.Context, a Actor, id string) (Session, error) {
	return m.generate(ctx, a, id, (*Session).Retry)
}

func (m *Manager) generate(ctx context.Context, a Actor, id string, begin func(*Session) (Ticket, error)) (Session, error) {
	e, err := m.lookup(a, id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	e.s.Package = a.Package
	ticket, err := begin(e.s)
	if err != nil {
		snap := e.s.Snapshot()
		e.mu.Unlock()
		return snap, err
	}
	req := e.s.Request()
	e.mu.Unlock()

	// Без блокировки: генерация может занять десятки секунд
	res, genErr := m.deps.Generator.Generate(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = m.now()

	if err := e.s.Complete(ticket, res, genErr, m.now()); err != nil {
		if m.deps.Stale != nil {
			m.deps.Stale.Inc()
		}
		m.logger.Info("stale generation discarded",
			zap.String("session_id", id), zap.Uint64("seq", ticket.Seq),
			zap.String("trace_id", infra.TraceID(ctx)))
		return e.s.Snapshot(), err
	}
	return e.s.Snapshot(), genErr
}

// Publish сохраняет черновик как политику пользователя и закрывает сессию.
func (m *Manager) Publish(ctx context.Context, a Actor, id string) (*domain.GeneratedPolicy, Session, error) {
	e, err := m.lookup(a, id)
	if err != nil {
		return nil, Session{}, err
	}

	// Держим мьютекс сессии на время записи: двойной publish невозможен
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.Package = a.Package
	if err := e.s.CanPublish(); err != nil {
		return nil, e.s.Snapshot(), err
	}

	count, err := m.deps.Store.CountByUser(ctx, a.UserID)
	if err != nil {
		return nil, e.s.Snapshot(), fmt.Errorf("wizard: count policies: %w", err)
	}
	if err := m.deps.Rules.CheckLimit(a.Package, count); err != nil {
		return nil, e.s.Snapshot(), err
	}

	now := m.now()
	start := time.Now()
	policy, err := m.deps.Store.Create(ctx, a.UserID, e.s.NewPolicy(now))
	m.audit(ctx, a, e.s, policy, err, start)
	if err != nil {
		return nil, e.s.Snapshot(), fmt.Errorf("wizard: publish: %w", err)
	}

	e.s.MarkPublished(policy.ID, now)
	e.touched = now
	m.logger.Info("policy published",
		zap.String("session_id", id), zap.String("policy_id", policy.ID), zap.String("type", policy.Type))
	return policy, e.s.Snapshot(), nil
}

func (m *Manager) audit(ctx context.Context, a Actor, s *Session, p *domain.GeneratedPolicy, err error, start time.Time) {
	if m.deps.Auditor == nil {
		return
	}
	ev := audit.Event{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceID(ctx),
		UserID:     a.UserID,
		Action:     audit.ActionPublish,
		PolicyType: s.PolicyType.ID,
		Status:     audit.StatusSuccess,
		Timestamp:  m.now(),
		DurationMs: time.Since(start).Milliseconds(),
		Details:    map[string]interface{}{"session_id": s.ID, "versions": len(s.History)},
	}
	if p != nil {
		ev.PolicyID = p.ID
	}
	if err != nil {
		ev.Status = audit.StatusFailed
		ev.Error = err.Error()
	}
	m.deps.Auditor.Log(ev)
}

// Discard удаляет сессию пользователя.
func (m *Manager) Discard(_ context.Context, a Actor, id string) error {
	if _, err := m.lookup(a, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *Manager) mutate(a Actor, id string, op func(*Session) error) (Session, error) {
	e, err := m.lookup(a, id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.Package = a.Package
	err = op(e.s)
	if err == nil {
		e.s.UpdatedAt = m.now()
	}
	e.touched = m.now()
	return e.s.Snapshot(), err
}

// lookup: чужая или истекшая сессия неотличима от несуществующей.
func (m *Manager) lookup(a Actor, id string) (*entry, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: wizard session %s", domain.ErrNotFound, id)
	}

	e.mu.Lock()
	owner, touched := e.s.UserID, e.touched
	e.mu.Unlock()

	if owner != a.UserID {
		return nil, fmt.Errorf("%w: wizard session %s", domain.ErrNotFound, id)
	}
	if m.now().Sub(touched) > m.ttl {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: wizard session %s expired", domain.ErrNotFound, id)
	}
	return e, nil
}

// Evict удаляет сессии, простаивающие дольше ttl. Возвращает количество удаленных.
func (m *Manager) Evict() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.sessions {
		e.mu.Lock()
		idle := now.Sub(e.touched)
		e.mu.Unlock()
		if idle > m.ttl {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// StartJanitor периодически вызывает Evict до отмены ctx.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Evict(); n > 0 {
				m.logger.Info("expired wizard sessions evicted", zap.Int("count", n))
			}
		}
	}
}
