package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-post-planner/internal/domain"
	"tg-post-planner/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertChannel сохраняет канал, повторная привязка обновляет название
// и включает канал обратно.
func (p *Postgres) UpsertChannel(ctx context.Context, tgChannelID int64, title string) (domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var ch domain.Channel
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO channels (tg_channel_id, title, enabled)
VALUES ($1, $2, true)
ON CONFLICT (tg_channel_id) DO UPDATE SET title = EXCLUDED.title, enabled = true
RETURNING id, tg_channel_id, title, enabled, created_at
`, tgChannelID, title).Scan(&ch.ID, &ch.TGChannelID, &ch.Title, &ch.Enabled, &ch.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "channels_upsert", "channels", start, err)
	return ch, err
}

// GetChannel возвращает канал по внутреннему идентификатору.
func (p *Postgres) GetChannel(ctx context.Context, id int64) (domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var ch domain.Channel
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, tg_channel_id, title, enabled, created_at FROM channels WHERE id = $1
`, id).Scan(&ch.ID, &ch.TGChannelID, &ch.Title, &ch.Enabled, &ch.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "channels_get", "channels", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Channel{}, domain.ErrNotFound
	}
	return ch, err
}

// ListChannels возвращает каналы; onlyEnabled отфильтровывает отключённые.
func (p *Postgres) ListChannels(ctx context.Context, onlyEnabled bool) ([]domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query := `SELECT id, tg_channel_id, title, enabled, created_at FROM channels ORDER BY created_at`
	if onlyEnabled {
		query = `SELECT id, tg_channel_id, title, enabled, created_at FROM channels WHERE enabled ORDER BY created_at`
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, query)
	metrics.ObserveNetworkRequest("postgres", "channels_list", "channels", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.TGChannelID, &ch.Title, &ch.Enabled, &ch.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// DisableChannel выключает канал; записи каналов никогда не удаляются.
func (p *Postgres) DisableChannel(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE channels SET enabled = false WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "channels_disable", "channels", start, err)
	return err
}

// EnsureTag возвращает метку канала, создавая её при необходимости.
func (p *Postgres) EnsureTag(ctx context.Context, channelID int64, name string) (domain.Tag, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var tag domain.Tag
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO tags (channel_id, name)
VALUES ($1, $2)
ON CONFLICT (channel_id, name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, channel_id, name, created_at
`, channelID, name).Scan(&tag.ID, &tag.ChannelID, &tag.Name, &tag.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "tags_ensure", "tags", start, err)
	return tag, err
}

// ListChannelTags возвращает метки канала.
func (p *Postgres) ListChannelTags(ctx context.Context, channelID int64) ([]domain.Tag, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, channel_id, name, created_at FROM tags WHERE channel_id = $1 ORDER BY name
`, channelID)
	metrics.ObserveNetworkRequest("postgres", "tags_list", "tags", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []domain.Tag
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.ChannelID, &tag.Name, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// EnsureSeries возвращает серию канала, создавая её при необходимости.
func (p *Postgres) EnsureSeries(ctx context.Context, channelID int64, code, title string) (domain.Series, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var s domain.Series
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO series (channel_id, code, title)
VALUES ($1, $2, $3)
ON CONFLICT (channel_id, code) DO UPDATE SET title = EXCLUDED.title
RETURNING id, channel_id, code, title, next_number, created_at
`, channelID, code, title).Scan(&s.ID, &s.ChannelID, &s.Code, &s.Title, &s.NextNumber, &s.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "series_ensure", "series", start, err)
	return s, err
}

// ListChannelSeries возвращает серии канала.
func (p *Postgres) ListChannelSeries(ctx context.Context, channelID int64) ([]domain.Series, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, channel_id, code, title, next_number, created_at FROM series WHERE channel_id = $1 ORDER BY code
`, channelID)
	metrics.ObserveNetworkRequest("postgres", "series_list", "series", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []domain.Series
	for rows.Next() {
		var s domain.Series
		if err := rows.Scan(&s.ID, &s.ChannelID, &s.Code, &s.Title, &s.NextNumber, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListReminders возвращает включённые напоминания.
func (p *Postgres) ListReminders(ctx context.Context) ([]domain.Reminder, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, chat_id, slot, enabled, created_at FROM reminders WHERE enabled ORDER BY id
`)
	metrics.ObserveNetworkRequest("postgres", "reminders_list", "reminders", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reminders []domain.Reminder
	for rows.Next() {
		var r domain.Reminder
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Slot, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// UpsertReminder сохраняет напоминание для чата и слота.
func (p *Postgres) UpsertReminder(ctx context.Context, chatID int64, slot string) (domain.Reminder, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var r domain.Reminder
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO reminders (chat_id, slot, enabled)
VALUES ($1, $2, true)
ON CONFLICT (chat_id, slot) DO UPDATE SET enabled = true
RETURNING id, chat_id, slot, enabled, created_at
`, chatID, slot).Scan(&r.ID, &r.ChatID, &r.Slot, &r.Enabled, &r.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "reminders_upsert", "reminders", start, err)
	return r, err
}

// AcquireReminderSlot вставляет запись о срабатывании и возвращает true,
// если слот на эту дату ещё не был занят.
func (p *Postgres) AcquireReminderSlot(ctx context.Context, reminderID int64, date time.Time) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
INSERT INTO reminder_fires (reminder_id, fired_on)
VALUES ($1, $2)
ON CONFLICT (reminder_id, fired_on) DO NOTHING
`, reminderID, date)
	metrics.ObserveNetworkRequest("postgres", "reminder_fires_acquire", "reminder_fires", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}
