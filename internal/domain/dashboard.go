package domain

import "time"

// Dashboard: сводка для личного кабинета пользователя.
type Dashboard struct {
	Package      PackageKey     `json:"package,omitempty"`
	Subscription *Subscription  `json:"subscription,omitempty"`
	Usage        UsageStats     `json:"usage"`
	QuickActions []PolicyType   `json:"quick_actions"`
	Recent       []PolicyDigest `json:"recent"`
}

type UsageStats struct {
	Policies  int            `json:"policies"`
	Limit     int            `json:"limit"`     // -1 без ограничения
	Remaining int            `json:"remaining"` // -1 без ограничения
	ByType    map[string]int `json:"by_type"`
}

// PolicyDigest: краткая карточка политики без текста.
type PolicyDigest struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
