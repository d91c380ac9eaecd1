// Package connectors содержит клиентов внешних сервисов генерации текста.
package connectors

import "context"

// Prompt: один запрос на генерацию.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// TextGenerator: коллаборатор генерации. Возвращает сырой текст модели
// либо *APIError.
type TextGenerator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeneratorFunc позволяет использовать функцию как TextGenerator.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}
