package connectors

import (
	"context"
	"fmt"
	"math/rand/v2" // Используем v2 для Go 1.25
	"strings"
	"time"
)

// MockGenerator имитирует провайдера для локального запуска без ключей.
// Отвечает детерминированным Markdown после случайной задержки.
type MockGenerator struct {
	MinLatency time.Duration
	MaxLatency time.Duration
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{MinLatency: 50 * time.Millisecond, MaxLatency: 300 * time.Millisecond}
}

func (m *MockGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	latency := m.MinLatency
	if spread := m.MaxLatency - m.MinLatency; spread > 0 {
		latency += time.Duration(rand.Int64N(int64(spread)))
	}

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if strings.TrimSpace(p.User) == "" {
		return "", &APIError{Provider: "mock", Kind: KindBadRequest, StatusCode: 400, Message: "empty prompt"}
	}

	title := "AI Governance Policy"
	for _, line := range strings.Split(p.User, "\n") {
		if v, ok := strings.CutPrefix(line, "Policy: "); ok {
			title = strings.TrimSpace(v)
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString("## 1. Purpose\n\nThis policy sets the rules for responsible use of artificial intelligence.\n\n")
	b.WriteString("## 2. Scope\n\nApplies to all employees, contractors and AI systems operated by the organization.\n\n")
	b.WriteString("## 3. Procedures\n\n")
	b.WriteString("- GOV-PROC-001 (AI System Inventory)\n")
	b.WriteString("- GOV-PROC-002 (Incident Reporting)\n\n")
	b.WriteString("## 4. Request Context\n\n")
	b.WriteString(p.User)
	b.WriteString("\n")
	return b.String(), nil
}
