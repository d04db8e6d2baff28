package posts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-post-planner/internal/domain"
)

type stubPostRepo struct {
	post       domain.Post
	getErr     error
	created    *domain.NewPost
	seriesNext int

	updateOK      bool
	updateCalled  bool
	updateAt      time.Time
	updateAllowed []domain.PostStatus

	cancelOK bool
	deleteOK bool
}

func (s *stubPostRepo) CreatePost(_ context.Context, np domain.NewPost) (domain.Post, error) {
	s.created = &np
	post := s.post
	post.ID = 1
	post.ChannelID = np.ChannelID
	post.ScheduledAt = np.ScheduledAt
	if np.ScheduledAt != nil {
		post.Status = domain.StatusScheduled
	} else {
		post.Status = domain.StatusDraft
	}
	// Счётчик серии как в хранилище: следующий номер без пропусков.
	if np.SeriesID != nil {
		s.seriesNext++
		num := s.seriesNext
		post.SeriesID = np.SeriesID
		post.SeriesNumber = &num
	}
	return post, nil
}

func (s *stubPostRepo) GetPost(context.Context, int64) (domain.Post, error) {
	return s.post, s.getErr
}

func (s *stubPostRepo) ListPostsByCreator(context.Context, int64, int, int) ([]domain.Post, error) {
	return nil, nil
}

func (s *stubPostRepo) ClaimDue(context.Context, time.Time, time.Duration, int) ([]domain.Post, error) {
	return nil, nil
}

func (s *stubPostRepo) MarkPublished(context.Context, int64, int64, time.Time) error { return nil }

// MarkFailed повторяет гард хранилища: failed пишется из scheduled и draft,
// терминальные статусы не трогаются.
func (s *stubPostRepo) MarkFailed(_ context.Context, _ int64, reason string) error {
	if s.post.Status == domain.StatusScheduled || s.post.Status == domain.StatusDraft {
		s.post.Status = domain.StatusFailed
		s.post.FailReason = reason
	}
	return nil
}

func (s *stubPostRepo) MarkStaleScheduled(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *stubPostRepo) UpdateSchedule(_ context.Context, _ int64, at time.Time, allowed []domain.PostStatus) (bool, error) {
	s.updateCalled = true
	s.updateAt = at
	s.updateAllowed = allowed
	return s.updateOK, nil
}

func (s *stubPostRepo) CancelPost(context.Context, int64) (bool, error)     { return s.cancelOK, nil }
func (s *stubPostRepo) SoftDeletePost(context.Context, int64) (bool, error) { return s.deleteOK, nil }

type stubChannelRepo struct {
	channel domain.Channel
	err     error
}

func (s *stubChannelRepo) UpsertChannel(context.Context, int64, string) (domain.Channel, error) {
	return s.channel, nil
}
func (s *stubChannelRepo) GetChannel(context.Context, int64) (domain.Channel, error) {
	return s.channel, s.err
}
func (s *stubChannelRepo) ListChannels(context.Context, bool) ([]domain.Channel, error) {
	return []domain.Channel{s.channel}, nil
}
func (s *stubChannelRepo) DisableChannel(context.Context, int64) error { return nil }

type stubGateway struct {
	deleted []int64
	delErr  error
}

func (s *stubGateway) SendText(context.Context, int64, string, []domain.FormattingRange) (int64, error) {
	return 0, nil
}
func (s *stubGateway) SendMedia(context.Context, int64, domain.MediaDescriptor, string, []domain.FormattingRange) (int64, error) {
	return 0, nil
}
func (s *stubGateway) SendPoll(context.Context, int64, domain.PollPayload) (int64, error) {
	return 0, nil
}
func (s *stubGateway) CopyMessage(context.Context, int64, int64, int64) (int64, error) {
	return 0, nil
}
func (s *stubGateway) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	s.deleted = append(s.deleted, messageID)
	return s.delErr
}

func newTestService(repo *stubPostRepo, channels *stubChannelRepo, gw *stubGateway) *Service {
	return NewService(repo, channels, gw, zerolog.Nop(), 4096, 1)
}

func enabledChannel() *stubChannelRepo {
	return &stubChannelRepo{channel: domain.Channel{ID: 1, TGChannelID: -100500, Title: "канал", Enabled: true}}
}

func TestCreateScheduled(t *testing.T) {
	repo := &stubPostRepo{}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})
	at := time.Now().Add(time.Second)
	post, err := svc.Create(context.Background(), domain.NewPost{
		ChannelID:   1,
		Body:        "привет",
		TagIDs:      []int64{1},
		ScheduledAt: &at,
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.StatusScheduled {
		t.Fatalf("ожидали scheduled, получили %s", post.Status)
	}
}

func TestCreateDraftWithoutSchedule(t *testing.T) {
	repo := &stubPostRepo{}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})
	post, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, Body: "черновик", TagIDs: []int64{1}})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.StatusDraft {
		t.Fatalf("ожидали draft, получили %s", post.Status)
	}
}

func TestCreateRejectsPastSchedule(t *testing.T) {
	svc := newTestService(&stubPostRepo{}, enabledChannel(), &stubGateway{})
	at := time.Now().Add(-time.Minute)
	_, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, Body: "текст", TagIDs: []int64{1}, ScheduledAt: &at})
	if !domain.IsValidation(err) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}
}

func TestCreateBodyLengthBoundary(t *testing.T) {
	svc := newTestService(&stubPostRepo{}, enabledChannel(), &stubGateway{})

	exact := strings.Repeat("a", 4096)
	if _, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, Body: exact, TagIDs: []int64{1}}); err != nil {
		t.Fatalf("текст ровно в лимит должен проходить: %v", err)
	}

	over := strings.Repeat("a", 4097)
	if _, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, Body: over, TagIDs: []int64{1}}); !domain.IsValidation(err) {
		t.Fatalf("ожидали ошибку валидации для лишнего символа, получили %v", err)
	}

	// Лимит считается в UTF-16: 2048 эмодзи по 2 единицы проходят, ещё один — нет.
	emoji := strings.Repeat("🔥", 2048)
	if _, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, Body: emoji, TagIDs: []int64{1}}); err != nil {
		t.Fatalf("2048 эмодзи должны проходить: %v", err)
	}
	if _, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, Body: emoji + "🔥", TagIDs: []int64{1}}); !domain.IsValidation(err) {
		t.Fatalf("ожидали ошибку для 2049 эмодзи")
	}
}

// Серия и метки доходят до хранилища как есть; номера серии выдаются
// подряд, без пропусков и дублей.
func TestCreateSeriesNumbering(t *testing.T) {
	repo := &stubPostRepo{}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})
	seriesID := int64(5)

	var numbers []int
	for i := 0; i < 3; i++ {
		post, err := svc.Create(context.Background(), domain.NewPost{
			ChannelID: 1,
			Body:      "выпуск",
			TagIDs:    []int64{1, 2},
			SeriesID:  &seriesID,
		})
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if post.SeriesID == nil || *post.SeriesID != seriesID {
			t.Fatalf("серия потерялась: %+v", post.SeriesID)
		}
		if post.SeriesNumber == nil {
			t.Fatalf("номер серии не выдан")
		}
		numbers = append(numbers, *post.SeriesNumber)
	}
	for i, n := range numbers {
		if n != i+1 {
			t.Fatalf("ожидали номера 1,2,3 без пропусков, получили %v", numbers)
		}
	}

	if repo.created == nil || repo.created.SeriesID == nil || *repo.created.SeriesID != seriesID {
		t.Fatalf("хранилище не получило серию: %+v", repo.created)
	}
	if len(repo.created.TagIDs) != 2 {
		t.Fatalf("хранилище не получило метки: %+v", repo.created.TagIDs)
	}
}

func TestCreateRejectsDisabledChannel(t *testing.T) {
	channels := &stubChannelRepo{channel: domain.Channel{ID: 1, Title: "канал", Enabled: false}}
	svc := newTestService(&stubPostRepo{}, channels, &stubGateway{})
	_, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, Body: "текст", TagIDs: []int64{1}})
	if !domain.IsValidation(err) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}
}

func TestCreateRejectsEmptyPost(t *testing.T) {
	svc := newTestService(&stubPostRepo{}, enabledChannel(), &stubGateway{})
	_, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, TagIDs: []int64{1}})
	if !domain.IsValidation(err) {
		t.Fatalf("ожидали ошибку валидации для пустого поста, получили %v", err)
	}
}

func TestCreatePollExcludesBody(t *testing.T) {
	svc := newTestService(&stubPostRepo{}, enabledChannel(), &stubGateway{})
	poll := &domain.PollPayload{Question: "вопрос", Options: []string{"да", "нет"}}

	if _, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, Poll: poll}); err != nil {
		t.Fatalf("опрос без текста должен проходить: %v", err)
	}
	_, err := svc.Create(context.Background(), domain.NewPost{ChannelID: 1, Poll: poll, Body: "текст"})
	if !domain.IsValidation(err) {
		t.Fatalf("ожидали ошибку для опроса с текстом, получили %v", err)
	}
}

// Немедленная публикация из мастера идёт минуя scheduled: черновик при
// ошибке отправки должен становиться failed, а не оставаться draft.
func TestMarkFailedFromDraft(t *testing.T) {
	repo := &stubPostRepo{post: domain.Post{ID: 1, Status: domain.StatusDraft}}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})

	cause := &domain.PlatformError{Class: domain.ErrClassPermanentInput, Code: 400, Message: "bad entities"}
	if err := svc.MarkFailed(context.Background(), 1, cause); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if repo.post.Status != domain.StatusFailed {
		t.Fatalf("ожидали failed, получили %s", repo.post.Status)
	}
	if repo.post.FailReason == "" {
		t.Fatalf("ожидали записанную причину")
	}
}

func TestMarkFailedSkipsCancelled(t *testing.T) {
	repo := &stubPostRepo{post: domain.Post{ID: 1, Status: domain.StatusCancelled}}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})

	if err := svc.MarkFailed(context.Background(), 1, errors.New("поздняя ошибка")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if repo.post.Status != domain.StatusCancelled {
		t.Fatalf("отменённый пост не должен перетираться, получили %s", repo.post.Status)
	}
}

// Пост, упавший при немедленной публикации, не имеет scheduled_at; оператор
// возвращает его в очередь, указав новое время.
func TestRetryFailedWithoutSchedule(t *testing.T) {
	repo := &stubPostRepo{updateOK: true, post: domain.Post{ID: 1, Status: domain.StatusFailed}}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})

	if err := svc.Retry(context.Background(), 1, nil); !domain.IsValidation(err) {
		t.Fatalf("без нового времени ожидали ошибку валидации, получили %v", err)
	}

	newTime := time.Now().Add(time.Hour)
	if err := svc.Retry(context.Background(), 1, &newTime); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !repo.updateAt.Equal(newTime) {
		t.Fatalf("ожидали новое время %v, получили %v", newTime, repo.updateAt)
	}
}

func TestCancelIdempotent(t *testing.T) {
	repo := &stubPostRepo{cancelOK: false, post: domain.Post{ID: 1, Status: domain.StatusCancelled}}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})
	if err := svc.Cancel(context.Background(), 1); err != nil {
		t.Fatalf("повторная отмена должна быть no-op: %v", err)
	}
}

func TestCancelFromPublishedFails(t *testing.T) {
	repo := &stubPostRepo{cancelOK: false, post: domain.Post{ID: 1, Status: domain.StatusPublished}}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})
	err := svc.Cancel(context.Background(), 1)
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("ожидали ErrIllegalTransition, получили %v", err)
	}
}

func TestRescheduleRejectsPast(t *testing.T) {
	repo := &stubPostRepo{updateOK: true}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})
	err := svc.Reschedule(context.Background(), 1, time.Now().Add(-time.Second))
	if !domain.IsValidation(err) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}
	if repo.updateCalled {
		t.Fatalf("не ожидали обращения к репозиторию")
	}
}

func TestRetryKeepsFutureTime(t *testing.T) {
	future := time.Now().Add(2 * time.Hour)
	repo := &stubPostRepo{
		updateOK: true,
		post:     domain.Post{ID: 1, Status: domain.StatusFailed, ScheduledAt: &future},
	}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})
	if err := svc.Retry(context.Background(), 1, nil); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !repo.updateAt.Equal(future) {
		t.Fatalf("ожидали прежнее время %v, получили %v", future, repo.updateAt)
	}
}

func TestRetryPastTimeNeedsNew(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	repo := &stubPostRepo{updateOK: true, post: domain.Post{ID: 1, Status: domain.StatusFailed, ScheduledAt: &past}}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})

	if err := svc.Retry(context.Background(), 1, nil); !domain.IsValidation(err) {
		t.Fatalf("ожидали ошибку валидации без нового времени, получили %v", err)
	}

	newTime := time.Now().Add(time.Hour)
	if err := svc.Retry(context.Background(), 1, &newTime); err != nil {
		t.Fatalf("не ожидали ошибку с новым временем: %v", err)
	}
	if !repo.updateAt.Equal(newTime) {
		t.Fatalf("ожидали новое время %v, получили %v", newTime, repo.updateAt)
	}
}

func TestRetryFromScheduledFails(t *testing.T) {
	repo := &stubPostRepo{post: domain.Post{ID: 1, Status: domain.StatusScheduled}}
	svc := newTestService(repo, enabledChannel(), &stubGateway{})
	err := svc.Retry(context.Background(), 1, nil)
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("ожидали ErrIllegalTransition, получили %v", err)
	}
}

func TestSoftDeleteRemovesChannelMessage(t *testing.T) {
	msgID := int64(777)
	repo := &stubPostRepo{deleteOK: true, post: domain.Post{ID: 1, ChannelID: 1, Status: domain.StatusPublished, TGMessageID: &msgID}}
	gw := &stubGateway{}
	svc := newTestService(repo, enabledChannel(), gw)
	if err := svc.SoftDelete(context.Background(), 1); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(gw.deleted) != 1 || gw.deleted[0] != msgID {
		t.Fatalf("ожидали удаление сообщения %d, получили %v", msgID, gw.deleted)
	}
}

func TestSoftDeleteSurvivesGatewayError(t *testing.T) {
	msgID := int64(777)
	repo := &stubPostRepo{deleteOK: true, post: domain.Post{ID: 1, ChannelID: 1, Status: domain.StatusPublished, TGMessageID: &msgID}}
	gw := &stubGateway{delErr: errors.New("сеть недоступна")}
	svc := newTestService(repo, enabledChannel(), gw)
	if err := svc.SoftDelete(context.Background(), 1); err != nil {
		t.Fatalf("ошибка шлюза не должна блокировать удаление: %v", err)
	}
}
