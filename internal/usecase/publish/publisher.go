package publish

import (
	"context"

	"github.com/rs/zerolog"

	"tg-post-planner/internal/domain"
	"tg-post-planner/internal/infra/metrics"
)

// Publisher отправляет снимок одного поста в набор целевых каналов
// и собирает поканальные результаты.
type Publisher struct {
	gateway domain.Gateway
	log     zerolog.Logger
}

// NewPublisher создаёт публикатор.
func NewPublisher(gateway domain.Gateway, logger zerolog.Logger) *Publisher {
	return &Publisher{gateway: gateway, log: logger}
}

// Publish отправляет пост в каждый канал из списка. Результат каждого канала
// независим; ошибка одного канала не прерывает остальные.
func (p *Publisher) Publish(ctx context.Context, post domain.Post, targets []domain.Channel) []domain.PublishOutcome {
	outcomes := make([]domain.PublishOutcome, 0, len(targets))
	for _, target := range targets {
		msgID, err := p.publishOne(ctx, post, target)
		outcome := domain.PublishOutcome{ChannelID: target.ID, TGMessageID: msgID, Err: err}
		if err != nil {
			metrics.ObservePublish("error")
			p.log.Warn().Err(err).Int64("post", post.ID).Int64("channel", target.ID).
				Msg("публикация в канал не удалась")
		} else {
			metrics.ObservePublish("success")
			p.log.Info().Int64("post", post.ID).Int64("channel", target.ID).
				Int64("message", msgID).Msg("пост опубликован")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// FirstSuccess возвращает идентификатор сообщения первого успешного канала.
func FirstSuccess(outcomes []domain.PublishOutcome) (int64, bool) {
	for _, o := range outcomes {
		if o.Err == nil {
			return o.TGMessageID, true
		}
	}
	return 0, false
}

func (p *Publisher) publishOne(ctx context.Context, post domain.Post, target domain.Channel) (int64, error) {
	switch {
	case post.Poll != nil:
		return p.gateway.SendPoll(ctx, target.TGChannelID, *post.Poll)
	case post.Media != nil:
		return p.gateway.SendMedia(ctx, target.TGChannelID, *post.Media, post.Body, post.Ranges)
	default:
		return p.gateway.SendText(ctx, target.TGChannelID, post.Body, post.Ranges)
	}
}
