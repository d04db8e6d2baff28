package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-post-planner/internal/domain"
)

// Service реализует жизненный цикл поста: создание, валидацию и переходы статусов.
type Service struct {
	repo     domain.PostRepo
	channels domain.ChannelRepo
	gateway  domain.Gateway
	log      zerolog.Logger

	maxPostLength   int
	minTagsRequired int
}

// NewService создаёт сервис постов.
func NewService(repo domain.PostRepo, channels domain.ChannelRepo, gateway domain.Gateway, logger zerolog.Logger, maxPostLength, minTagsRequired int) *Service {
	if maxPostLength <= 0 {
		maxPostLength = 4096
	}
	return &Service{
		repo:            repo,
		channels:        channels,
		gateway:         gateway,
		log:             logger,
		maxPostLength:   maxPostLength,
		minTagsRequired: minTagsRequired,
	}
}

// Create проверяет и сохраняет новый пост. Пост с scheduled_at сразу попадает
// в состояние scheduled, без — остаётся черновиком.
func (s *Service) Create(ctx context.Context, np domain.NewPost) (domain.Post, error) {
	channel, err := s.channels.GetChannel(ctx, np.ChannelID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("получение канала: %w", err)
	}
	if !channel.Enabled {
		return domain.Post{}, domain.Validationf("канал «%s» отключён", channel.Title)
	}

	if err := s.validateContent(np); err != nil {
		return domain.Post{}, err
	}
	if np.ScheduledAt != nil && !np.ScheduledAt.After(time.Now()) {
		return domain.Post{}, domain.Validationf("время публикации должно быть в будущем")
	}

	post, err := s.repo.CreatePost(ctx, np)
	if err != nil {
		return domain.Post{}, fmt.Errorf("сохранение поста: %w", err)
	}
	s.log.Info().Int64("post", post.ID).Int64("channel", post.ChannelID).
		Str("status", string(post.Status)).Msg("пост создан")
	return post, nil
}

func (s *Service) validateContent(np domain.NewPost) error {
	if np.Poll != nil {
		if np.Body != "" || np.Media != nil {
			return domain.Validationf("опрос не совмещается с текстом или медиа")
		}
		if np.Poll.Question == "" || len(np.Poll.Options) < 2 {
			return domain.Validationf("опросу нужен вопрос и минимум два варианта")
		}
		return nil
	}
	if np.Body == "" && np.Media == nil {
		return domain.Validationf("пост пуст: нужен текст или медиа")
	}
	if n := domain.UTF16Len(np.Body); n > s.maxPostLength {
		return domain.Validationf("текст длиннее лимита: %d > %d", n, s.maxPostLength)
	}
	if err := domain.ValidateRanges(np.Body, np.Ranges); err != nil {
		return err
	}
	if len(np.TagIDs) < s.minTagsRequired {
		return domain.Validationf("нужно выбрать минимум %d меток", s.minTagsRequired)
	}
	return nil
}

// Get возвращает пост целиком.
func (s *Service) Get(ctx context.Context, id int64) (domain.Post, error) {
	return s.repo.GetPost(ctx, id)
}

// ListByCreator возвращает страницу постов оператора.
func (s *Service) ListByCreator(ctx context.Context, createdBy int64, page, size int) ([]domain.Post, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 10
	}
	return s.repo.ListPostsByCreator(ctx, createdBy, size, (page-1)*size)
}

// ClaimDue оборачивает захват назревших постов для планировщика.
func (s *Service) ClaimDue(ctx context.Context, now time.Time, cutoff time.Duration, limit int) ([]domain.Post, error) {
	return s.repo.ClaimDue(ctx, now, cutoff, limit)
}

// MarkPublished записывает успешную публикацию.
func (s *Service) MarkPublished(ctx context.Context, id, tgMessageID int64) error {
	return s.repo.MarkPublished(ctx, id, tgMessageID, time.Now())
}

// MarkFailed записывает постоянную ошибку публикации.
func (s *Service) MarkFailed(ctx context.Context, id int64, cause error) error {
	reason := cause.Error()
	var pe *domain.PlatformError
	if errors.As(cause, &pe) {
		reason = fmt.Sprintf("%s: %s", pe.Class, pe.Message)
	}
	return s.repo.MarkFailed(ctx, id, reason)
}

// MarkStaleScheduled помечает просроченные посты; возвращает их количество.
func (s *Service) MarkStaleScheduled(ctx context.Context, cutoff time.Duration) (int64, error) {
	return s.repo.MarkStaleScheduled(ctx, time.Now().Add(-cutoff))
}

// Reschedule назначает новое время публикации; разрешено из scheduled и failed.
func (s *Service) Reschedule(ctx context.Context, id int64, at time.Time) error {
	if !at.After(time.Now()) {
		return domain.Validationf("новое время публикации должно быть в будущем")
	}
	ok, err := s.repo.UpdateSchedule(ctx, id, at, []domain.PostStatus{domain.StatusScheduled, domain.StatusFailed})
	if err != nil {
		return fmt.Errorf("перенос поста: %w", err)
	}
	if !ok {
		return s.transitionError(ctx, id)
	}
	return nil
}

// Cancel отменяет запланированный пост. Отмена уже отменённого — no-op.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	ok, err := s.repo.CancelPost(ctx, id)
	if err != nil {
		return fmt.Errorf("отмена поста: %w", err)
	}
	if ok {
		return nil
	}
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.Status == domain.StatusCancelled {
		return nil
	}
	return fmt.Errorf("%w: отмена из статуса %s", domain.ErrIllegalTransition, post.Status)
}

// Retry возвращает failed-пост в расписание. Прежнее время сохраняется, если
// оно ещё в будущем; иначе вызывающий обязан передать новое.
func (s *Service) Retry(ctx context.Context, id int64, newTime *time.Time) error {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.Status != domain.StatusFailed {
		return fmt.Errorf("%w: повтор из статуса %s", domain.ErrIllegalTransition, post.Status)
	}

	var at time.Time
	switch {
	case post.ScheduledAt != nil && post.ScheduledAt.After(time.Now()):
		at = *post.ScheduledAt
	case newTime != nil && newTime.After(time.Now()):
		at = *newTime
	default:
		return domain.Validationf("прежнее время уже прошло, укажите новое")
	}

	ok, err := s.repo.UpdateSchedule(ctx, id, at, []domain.PostStatus{domain.StatusFailed})
	if err != nil {
		return fmt.Errorf("повтор поста: %w", err)
	}
	if !ok {
		return s.transitionError(ctx, id)
	}
	return nil
}

// SoftDelete помечает пост удалённым. Если сообщение дошло до платформы,
// оно удаляется из канала по возможности; неудача не блокирует переход в БД.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.TGMessageID != nil {
		channel, chErr := s.channels.GetChannel(ctx, post.ChannelID)
		if chErr == nil {
			if delErr := s.gateway.DeleteMessage(ctx, channel.TGChannelID, *post.TGMessageID); delErr != nil {
				s.log.Warn().Err(delErr).Int64("post", id).Msg("не удалось удалить сообщение из канала")
			}
		}
	}
	ok, err := s.repo.SoftDeletePost(ctx, id)
	if err != nil {
		return fmt.Errorf("удаление поста: %w", err)
	}
	if !ok {
		// Уже удалён — считаем операцию выполненной.
		return nil
	}
	return nil
}

func (s *Service) transitionError(ctx context.Context, id int64) error {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: текущий статус %s", domain.ErrIllegalTransition, post.Status)
}
