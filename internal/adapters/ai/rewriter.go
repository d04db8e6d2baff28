package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	infraai "tg-post-planner/internal/infra/ai"
)

type completionClient interface {
	Complete(ctx context.Context, req infraai.CompletionRequest) (string, error)
	ModelURI(model string) string
}

// Rewriter переписывает текст поста через внешний сервис генерации.
// Вызовы без состояния; любая ошибка поднимается оператору.
type Rewriter struct {
	client  completionClient
	timeout time.Duration
}

// NewRewriter создаёт провайдер переписывания.
func NewRewriter(client completionClient, timeout time.Duration) *Rewriter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Rewriter{client: client, timeout: timeout}
}

// Shorten сокращает текст, сохраняя факты.
func (r *Rewriter) Shorten(ctx context.Context, text string) (string, error) {
	return r.complete(ctx,
		"Ты редактор телеграм-канала. Сокращай текст, не теряя фактов и ссылок.",
		fmt.Sprintf("Сократи текст поста примерно вдвое, верни только сам текст:\n%s", text))
}

// Restyle переписывает текст в заданном стиле.
func (r *Rewriter) Restyle(ctx context.Context, text, style string) (string, error) {
	return r.complete(ctx,
		"Ты редактор телеграм-канала. Меняй стиль, сохраняя смысл.",
		fmt.Sprintf("Перепиши текст поста в стиле «%s», верни только сам текст:\n%s", style, text))
}

// SuggestTags предлагает метки для текста поста.
func (r *Rewriter) SuggestTags(ctx context.Context, text string) ([]string, error) {
	raw, err := r.complete(ctx,
		"Ты редактор телеграм-канала. Предлагай короткие метки на русском языке.",
		fmt.Sprintf("Предложи до пяти меток для поста, через запятую, без решёток:\n%s", text))
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		tag := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "#"))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

func (r *Rewriter) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := infraai.CompletionRequest{
		ModelURI: r.client.ModelURI(""),
		Messages: []infraai.Message{
			{Role: infraai.RoleSystem, Text: system},
			{Role: infraai.RoleUser, Text: user},
		},
	}
	req.Options.Temperature = 0.3
	req.Options.MaxTokens = 2000

	out, err := r.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("переписывание текста: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("сервис генерации вернул пустой текст")
	}
	return strings.TrimSpace(out), nil
}
