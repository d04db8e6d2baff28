package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-post-planner/internal/domain"
)

type stubLifecycle struct {
	due []domain.Post

	published map[int64]int64
	failed    map[int64]string
	swept     int64
}

func newStubLifecycle(due ...domain.Post) *stubLifecycle {
	return &stubLifecycle{
		due:       due,
		published: make(map[int64]int64),
		failed:    make(map[int64]string),
	}
}

func (s *stubLifecycle) ClaimDue(context.Context, time.Time, time.Duration, int) ([]domain.Post, error) {
	due := s.due
	s.due = nil
	return due, nil
}

func (s *stubLifecycle) MarkPublished(_ context.Context, id, tgMessageID int64) error {
	s.published[id] = tgMessageID
	return nil
}

func (s *stubLifecycle) MarkFailed(_ context.Context, id int64, cause error) error {
	s.failed[id] = cause.Error()
	return nil
}

func (s *stubLifecycle) MarkStaleScheduled(context.Context, time.Duration) (int64, error) {
	return s.swept, nil
}

type stubPublisher struct {
	outcome domain.PublishOutcome
	calls   int
}

func (s *stubPublisher) Publish(_ context.Context, post domain.Post, targets []domain.Channel) []domain.PublishOutcome {
	s.calls++
	out := s.outcome
	out.ChannelID = targets[0].ID
	return []domain.PublishOutcome{out}
}

type stubChannels struct {
	channel  domain.Channel
	disabled []int64
}

func (s *stubChannels) UpsertChannel(context.Context, int64, string) (domain.Channel, error) {
	return s.channel, nil
}
func (s *stubChannels) GetChannel(context.Context, int64) (domain.Channel, error) {
	return s.channel, nil
}
func (s *stubChannels) ListChannels(context.Context, bool) ([]domain.Channel, error) {
	return []domain.Channel{s.channel}, nil
}
func (s *stubChannels) DisableChannel(_ context.Context, id int64) error {
	s.disabled = append(s.disabled, id)
	return nil
}

func duePost(id int64) domain.Post {
	at := time.Now().Add(-time.Minute)
	return domain.Post{ID: id, ChannelID: 1, Body: "текст", Status: domain.StatusScheduled, ScheduledAt: &at}
}

func newTestScheduler(life *stubLifecycle, pub *stubPublisher, ch *stubChannels) *Scheduler {
	return New(life, pub, ch, zerolog.Nop(), Options{})
}

func TestTickPublishesDue(t *testing.T) {
	life := newStubLifecycle(duePost(1))
	pub := &stubPublisher{outcome: domain.PublishOutcome{TGMessageID: 42}}
	channels := &stubChannels{channel: domain.Channel{ID: 1, TGChannelID: -100500, Enabled: true}}

	newTestScheduler(life, pub, channels).Tick(context.Background())

	if pub.calls != 1 {
		t.Fatalf("ожидали 1 публикацию, получили %d", pub.calls)
	}
	if life.published[1] != 42 {
		t.Fatalf("ожидали message id 42, получили %d", life.published[1])
	}
	if len(life.failed) != 0 {
		t.Fatalf("не ожидали failed: %v", life.failed)
	}
}

func TestTickTransientErrorLeavesScheduled(t *testing.T) {
	life := newStubLifecycle(duePost(1))
	pub := &stubPublisher{outcome: domain.PublishOutcome{
		Err: &domain.PlatformError{Class: domain.ErrClassTransient, Code: 429, Message: "too many requests"},
	}}
	channels := &stubChannels{channel: domain.Channel{ID: 1, Enabled: true}}

	newTestScheduler(life, pub, channels).Tick(context.Background())

	if len(life.published) != 0 {
		t.Fatalf("не ожидали публикаций: %v", life.published)
	}
	if len(life.failed) != 0 {
		t.Fatalf("временная ошибка не должна помечать failed: %v", life.failed)
	}
}

// Временная ошибка на первом тике, успех на втором: ровно две попытки
// отправки и одна запись published.
func TestTransientRetrySucceedsNextTick(t *testing.T) {
	life := newStubLifecycle(duePost(1))
	pub := &stubPublisher{outcome: domain.PublishOutcome{
		Err: &domain.PlatformError{Class: domain.ErrClassTransient, Code: 500, Message: "internal"},
	}}
	channels := &stubChannels{channel: domain.Channel{ID: 1, TGChannelID: -100500, Enabled: true}}
	s := newTestScheduler(life, pub, channels)

	s.Tick(context.Background())

	// Пост остался scheduled и на следующем тике захватывается снова.
	life.due = []domain.Post{duePost(1)}
	pub.outcome = domain.PublishOutcome{TGMessageID: 42}
	s.Tick(context.Background())

	if pub.calls != 2 {
		t.Fatalf("ожидали 2 попытки отправки, получили %d", pub.calls)
	}
	if life.published[1] != 42 {
		t.Fatalf("ожидали публикацию после повтора, получили %v", life.published)
	}
	if len(life.failed) != 0 {
		t.Fatalf("не ожидали failed: %v", life.failed)
	}
}

func TestTickPermanentErrorMarksFailed(t *testing.T) {
	life := newStubLifecycle(duePost(1))
	pub := &stubPublisher{outcome: domain.PublishOutcome{
		Err: &domain.PlatformError{Class: domain.ErrClassPermanentInput, Code: 400, Message: "bad entities"},
	}}
	channels := &stubChannels{channel: domain.Channel{ID: 1, Enabled: true}}

	newTestScheduler(life, pub, channels).Tick(context.Background())

	if len(life.failed) != 1 {
		t.Fatalf("ожидали 1 failed, получили %v", life.failed)
	}
}

// Постоянная ошибка цели (бот выкинут, канал удалён) выводит канал из
// ротации; ошибка входных данных канал не трогает — виноват пост, не цель.
func TestTickPermanentTargetDisablesChannel(t *testing.T) {
	life := newStubLifecycle(duePost(1))
	pub := &stubPublisher{outcome: domain.PublishOutcome{
		Err: &domain.PlatformError{Class: domain.ErrClassPermanentTarget, Code: 403, Message: "bot was kicked"},
	}}
	channels := &stubChannels{channel: domain.Channel{ID: 1, Enabled: true}}

	newTestScheduler(life, pub, channels).Tick(context.Background())

	if len(life.failed) != 1 {
		t.Fatalf("ожидали один failed, получили %v", life.failed)
	}
	if len(channels.disabled) != 1 || channels.disabled[0] != 1 {
		t.Fatalf("ожидали отключение канала 1, получили %v", channels.disabled)
	}
}

func TestTickPermanentInputKeepsChannelEnabled(t *testing.T) {
	life := newStubLifecycle(duePost(1))
	pub := &stubPublisher{outcome: domain.PublishOutcome{
		Err: &domain.PlatformError{Class: domain.ErrClassPermanentInput, Code: 400, Message: "bad entities"},
	}}
	channels := &stubChannels{channel: domain.Channel{ID: 1, Enabled: true}}

	newTestScheduler(life, pub, channels).Tick(context.Background())

	if len(channels.disabled) != 0 {
		t.Fatalf("канал не должен отключаться из-за плохого поста: %v", channels.disabled)
	}
}

func TestTickDisabledChannelSkipsPublish(t *testing.T) {
	life := newStubLifecycle(duePost(1))
	pub := &stubPublisher{outcome: domain.PublishOutcome{TGMessageID: 42}}
	channels := &stubChannels{channel: domain.Channel{ID: 1, Enabled: false}}

	newTestScheduler(life, pub, channels).Tick(context.Background())

	if pub.calls != 0 {
		t.Fatalf("отключённый канал не должен получать публикаций")
	}
	if len(life.failed) != 1 {
		t.Fatalf("ожидали пометку failed, получили %v", life.failed)
	}
}

func TestTickEmptyQueueNoWrites(t *testing.T) {
	life := newStubLifecycle()
	pub := &stubPublisher{}
	channels := &stubChannels{channel: domain.Channel{ID: 1, Enabled: true}}

	newTestScheduler(life, pub, channels).Tick(context.Background())

	if pub.calls != 0 || len(life.published) != 0 || len(life.failed) != 0 {
		t.Fatalf("пустой тик не должен ничего менять")
	}
}
