package audit

import "time"

// Действия, которые попадают в журнал активности
const (
	ActionGenerate     = "policy.generate"
	ActionPublish      = "policy.publish"
	ActionUpdate       = "policy.update"
	ActionDelete       = "policy.delete"
	ActionExport       = "policy.export"
	ActionSubscription = "subscription.purchase"
)

// Статусы результата
const (
	StatusSuccess  = "SUCCESS"
	StatusFailed   = "FAILED"
	StatusRejected = "REJECTED" // валидация или entitlement
)

type Event struct {
	ID         string `json:"id"`       // UUID события
	TraceID    string `json:"trace_id"` // Сквозной ID запроса
	UserID     string `json:"user_id"`  // Кто делал
	Action     string `json:"action"`   // Что делал
	PolicyType string `json:"policy_type,omitempty"`
	PolicyID   string `json:"policy_id,omitempty"`

	// Контекст исполнения
	Mode    string                 `json:"mode,omitempty"` // "template" или "llm"
	Details map[string]interface{} `json:"details,omitempty"`

	// Результат
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Filter: выборка журнала. Пустые поля не фильтруют.
type Filter struct {
	UserID string
	Action string
	Limit  int
}
