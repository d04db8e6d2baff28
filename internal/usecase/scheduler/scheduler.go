package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-post-planner/internal/domain"
	"tg-post-planner/internal/infra/metrics"
)

// Lifecycle — операции жизненного цикла поста, нужные планировщику.
type Lifecycle interface {
	ClaimDue(ctx context.Context, now time.Time, cutoff time.Duration, limit int) ([]domain.Post, error)
	MarkPublished(ctx context.Context, id, tgMessageID int64) error
	MarkFailed(ctx context.Context, id int64, cause error) error
	MarkStaleScheduled(ctx context.Context, cutoff time.Duration) (int64, error)
}

// Publisher отправляет пост в целевые каналы.
type Publisher interface {
	Publish(ctx context.Context, post domain.Post, targets []domain.Channel) []domain.PublishOutcome
}

// Options настраивают планировщик.
type Options struct {
	Tick            time.Duration
	StalenessCutoff time.Duration
	ClaimLimit      int
}

// Scheduler — периодический публикатор назревших постов. Один тик:
// захват назревших, публикация вне транзакции, запись результата,
// зачистка просроченных. Тик сериализован сам с собой.
type Scheduler struct {
	posts     Lifecycle
	publisher Publisher
	channels  domain.ChannelRepo
	log       zerolog.Logger
	opts      Options
}

// New создаёт планировщик.
func New(posts Lifecycle, publisher Publisher, channels domain.ChannelRepo, logger zerolog.Logger, opts Options) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	if opts.StalenessCutoff <= 0 {
		opts.StalenessCutoff = 24 * time.Hour
	}
	if opts.ClaimLimit <= 0 {
		opts.ClaimLimit = 100
	}
	return &Scheduler{posts: posts, publisher: publisher, channels: channels, log: logger, opts: opts}
}

// Run крутит тики до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick выполняет один проход планировщика.
func (s *Scheduler) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()
	tickLog := s.log.With().Str("tick", uuid.NewString()[:8]).Logger()

	claimed, err := s.posts.ClaimDue(ctx, start, s.opts.StalenessCutoff, s.opts.ClaimLimit)
	if err != nil {
		tickLog.Error().Err(err).Msg("не удалось захватить назревшие посты")
		return
	}
	if len(claimed) > 0 {
		metrics.DuePostsClaimed.Add(float64(len(claimed)))
		tickLog.Info().Int("claimed", len(claimed)).Msg("захвачены посты к публикации")
	}

	for _, post := range claimed {
		s.publishAndSettle(ctx, tickLog, post)
	}

	swept, err := s.posts.MarkStaleScheduled(ctx, s.opts.StalenessCutoff)
	if err != nil {
		tickLog.Error().Err(err).Msg("зачистка просроченных постов не удалась")
		return
	}
	if swept > 0 {
		metrics.StalePostsSwept.Add(float64(swept))
		tickLog.Warn().Int64("swept", swept).Msg("просроченные посты помечены failed")
	}
}

// publishAndSettle публикует один пост и записывает результат в короткой
// транзакции. Сетевой вызов выполняется между транзакциями БД, не внутри.
func (s *Scheduler) publishAndSettle(ctx context.Context, tickLog zerolog.Logger, post domain.Post) {
	channel, err := s.channels.GetChannel(ctx, post.ChannelID)
	if err != nil {
		tickLog.Error().Err(err).Int64("post", post.ID).Msg("канал поста недоступен")
		return
	}
	if !channel.Enabled {
		cause := &domain.PlatformError{Class: domain.ErrClassPermanentTarget, Message: "канал отключён"}
		if err := s.posts.MarkFailed(ctx, post.ID, cause); err != nil {
			tickLog.Error().Err(err).Int64("post", post.ID).Msg("не удалось пометить пост failed")
		}
		return
	}

	outcomes := s.publisher.Publish(ctx, post, []domain.Channel{channel})
	if len(outcomes) == 0 {
		return
	}
	outcome := outcomes[0]

	switch {
	case outcome.Err == nil:
		if err := s.posts.MarkPublished(ctx, post.ID, outcome.TGMessageID); err != nil {
			tickLog.Error().Err(err).Int64("post", post.ID).Msg("не удалось записать публикацию")
		}
	case domain.ClassifyPlatformError(outcome.Err) == domain.ErrClassTransient:
		// Пост остаётся scheduled и будет повторён следующим тиком,
		// пока не выпадет из окна актуальности.
		tickLog.Warn().Err(outcome.Err).Int64("post", post.ID).Msg("временная ошибка, повтор на следующем тике")
	default:
		if err := s.posts.MarkFailed(ctx, post.ID, outcome.Err); err != nil {
			tickLog.Error().Err(err).Int64("post", post.ID).Msg("не удалось пометить пост failed")
		}
		// Бот выкинут из канала или канал удалён: выводим канал из ротации,
		// чтобы следующие тики не били в заведомо мёртвую цель.
		if domain.ClassifyPlatformError(outcome.Err) == domain.ErrClassPermanentTarget {
			if err := s.channels.DisableChannel(ctx, channel.ID); err != nil {
				tickLog.Error().Err(err).Int64("channel", channel.ID).Msg("не удалось отключить канал")
			} else {
				tickLog.Warn().Int64("channel", channel.ID).Msg("канал отключён после постоянной ошибки цели")
			}
		}
	}
}
