package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tg-post-planner/internal/domain"
	"tg-post-planner/internal/infra/metrics"
)

const postColumns = `id, channel_id, body, poll, status, scheduled_at, published_at, tg_message_id,
series_id, series_number, tags_cache, fail_reason, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (domain.Post, error) {
	var (
		post         domain.Post
		poll         []byte
		scheduledAt  sql.NullTime
		publishedAt  sql.NullTime
		tgMessageID  sql.NullInt64
		seriesID     sql.NullInt64
		seriesNumber sql.NullInt32
	)
	err := row.Scan(&post.ID, &post.ChannelID, &post.Body, &poll, &post.Status,
		&scheduledAt, &publishedAt, &tgMessageID, &seriesID, &seriesNumber,
		&post.Tags, &post.FailReason, &post.CreatedBy, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return domain.Post{}, err
	}
	if len(poll) > 0 {
		var payload domain.PollPayload
		if err := json.Unmarshal(poll, &payload); err != nil {
			return domain.Post{}, err
		}
		post.Poll = &payload
	}
	if scheduledAt.Valid {
		ts := scheduledAt.Time
		post.ScheduledAt = &ts
	}
	if publishedAt.Valid {
		ts := publishedAt.Time
		post.PublishedAt = &ts
	}
	if tgMessageID.Valid {
		id := tgMessageID.Int64
		post.TGMessageID = &id
	}
	if seriesID.Valid {
		id := seriesID.Int64
		post.SeriesID = &id
	}
	if seriesNumber.Valid {
		n := int(seriesNumber.Int32)
		post.SeriesNumber = &n
	}
	return post, nil
}

// CreatePost создаёт пост вместе с диапазонами форматирования, медиа и метками
// в одной транзакции; номер серии выдаётся атомарно под блокировкой строки серии.
func (p *Postgres) CreatePost(ctx context.Context, np domain.NewPost) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}
	defer tx.Rollback(ctx)

	var seriesNumber any
	if np.SeriesID != nil {
		var assigned int
		start = time.Now()
		err = tx.QueryRow(ctx, `
UPDATE series SET next_number = next_number + 1
WHERE id = $1 AND channel_id = $2
RETURNING next_number - 1
`, *np.SeriesID, np.ChannelID).Scan(&assigned)
		metrics.ObserveNetworkRequest("postgres", "series_bump", "series", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Post{}, domain.ErrNotFound
		}
		if err != nil {
			return domain.Post{}, err
		}
		seriesNumber = assigned
	}

	tagsCache := []string{}
	if len(np.TagIDs) > 0 {
		start = time.Now()
		rows, qErr := tx.Query(ctx, `
SELECT name FROM tags WHERE id = ANY($1) AND channel_id = $2 ORDER BY name
`, np.TagIDs, np.ChannelID)
		metrics.ObserveNetworkRequest("postgres", "tags_names", "tags", start, qErr)
		if qErr != nil {
			return domain.Post{}, qErr
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return domain.Post{}, err
			}
			tagsCache = append(tagsCache, name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return domain.Post{}, err
		}
		if len(tagsCache) != len(np.TagIDs) {
			return domain.Post{}, domain.Validationf("метка не принадлежит каналу поста")
		}
	}

	status := domain.StatusDraft
	var scheduledAt any
	if np.ScheduledAt != nil {
		status = domain.StatusScheduled
		scheduledAt = np.ScheduledAt.UTC()
	}

	var poll any
	if np.Poll != nil {
		payload, mErr := json.Marshal(np.Poll)
		if mErr != nil {
			return domain.Post{}, mErr
		}
		poll = payload
	}

	start = time.Now()
	row := tx.QueryRow(ctx, `
INSERT INTO posts (channel_id, body, poll, status, scheduled_at, series_id, series_number, tags_cache, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+postColumns,
		np.ChannelID, np.Body, poll, status, scheduledAt, np.SeriesID, seriesNumber, tagsCache, np.CreatedBy)
	post, err := scanPost(row)
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}

	for _, r := range np.Ranges {
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO post_formatting_ranges (post_id, kind, offset_utf16, length_utf16, url, language)
VALUES ($1, $2, $3, $4, $5, $6)
`, post.ID, r.Kind, r.Offset, r.Length, r.URL, r.Language)
		metrics.ObserveNetworkRequest("postgres", "ranges_insert", "post_formatting_ranges", start, err)
		if err != nil {
			return domain.Post{}, err
		}
	}

	if np.Media != nil {
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO post_media (post_id, type, file_id, width, height, duration, mime_type, file_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, post.ID, np.Media.Type, np.Media.FileID, np.Media.Width, np.Media.Height,
			np.Media.Duration, np.Media.MimeType, np.Media.FileName)
		metrics.ObserveNetworkRequest("postgres", "media_insert", "post_media", start, err)
		if err != nil {
			return domain.Post{}, err
		}
	}

	for _, tagID := range np.TagIDs {
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO post_tags (post_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
`, post.ID, tagID)
		metrics.ObserveNetworkRequest("postgres", "post_tags_insert", "post_tags", start, err)
		if err != nil {
			return domain.Post{}, err
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}

	post.Ranges = np.Ranges
	post.Media = np.Media
	return post, nil
}

// GetPost возвращает пост с диапазонами форматирования и медиа.
func (p *Postgres) GetPost(ctx context.Context, id int64) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	post, err := scanPost(row)
	metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Post{}, err
	}
	if err := p.attachDetails(ctx, []*domain.Post{&post}); err != nil {
		return domain.Post{}, err
	}
	return post, nil
}

// ListPostsByCreator возвращает страницу постов оператора, новые первыми.
func (p *Postgres) ListPostsByCreator(ctx context.Context, createdBy int64, limit, offset int) ([]domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+postColumns+` FROM posts
WHERE created_by = $1 AND status <> 'deleted'
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, createdBy, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "posts_list_by_creator", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	refs := make([]*domain.Post, len(posts))
	for i := range posts {
		refs[i] = &posts[i]
	}
	if err := p.attachDetails(ctx, refs); err != nil {
		return nil, err
	}
	return posts, nil
}

// ClaimDue выбирает посты к публикации: scheduled, время в окне актуальности,
// старые первыми, не более limit. FOR UPDATE SKIP LOCKED не даёт второму
// параллельному тику увидеть те же строки до фиксации захвата.
func (p *Postgres) ClaimDue(ctx context.Context, now time.Time, cutoff time.Duration, limit int) ([]domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	rows, err := tx.Query(ctx, `
SELECT `+postColumns+` FROM posts
WHERE status = 'scheduled' AND scheduled_at <= $1 AND scheduled_at > $2
ORDER BY scheduled_at, id
LIMIT $3
FOR UPDATE SKIP LOCKED
`, now.UTC(), now.UTC().Add(-cutoff), limit)
	metrics.ObserveNetworkRequest("postgres", "posts_claim_due", "posts", start, err)
	if err != nil {
		return nil, err
	}
	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		posts = append(posts, post)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "posts", start, err)
	if err != nil {
		return nil, err
	}

	refs := make([]*domain.Post, len(posts))
	for i := range posts {
		refs[i] = &posts[i]
	}
	if err := p.attachDetails(ctx, refs); err != nil {
		return nil, err
	}
	return posts, nil
}

// MarkPublished записывает терминальное состояние публикации. Запись не
// ограничена статусом: при гонке с отменой побеждает последний писатель,
// а сообщение в канале уже существует.
func (p *Postgres) MarkPublished(ctx context.Context, id, tgMessageID int64, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE posts
SET status = 'published', published_at = $3, tg_message_id = $2, fail_reason = '', updated_at = now()
WHERE id = $1
`, id, tgMessageID, at.UTC())
	metrics.ObserveNetworkRequest("postgres", "posts_mark_published", "posts", start, err)
	return err
}

// MarkFailed переводит пост в failed с причиной. Разрешено из scheduled
// (тик планировщика) и из draft (немедленная публикация из мастера); гард
// не даёт перетирать отменённые и уже опубликованные посты.
func (p *Postgres) MarkFailed(ctx context.Context, id int64, reason string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE posts SET status = 'failed', fail_reason = $2, updated_at = now()
WHERE id = $1 AND status IN ('scheduled', 'draft')
`, id, reason)
	metrics.ObserveNetworkRequest("postgres", "posts_mark_failed", "posts", start, err)
	return err
}

// MarkStaleScheduled помечает просроченные scheduled-посты как failed/stale.
func (p *Postgres) MarkStaleScheduled(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE posts SET status = 'failed', fail_reason = $2, updated_at = now()
WHERE status = 'scheduled' AND scheduled_at <= $1
`, before.UTC(), domain.FailReasonStale)
	metrics.ObserveNetworkRequest("postgres", "posts_mark_stale", "posts", start, err)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// UpdateSchedule переводит пост в scheduled с новым временем; гард по текущему
// статусу выполняется в SQL, чтобы переход был атомарным.
func (p *Postgres) UpdateSchedule(ctx context.Context, id int64, at time.Time, allowed []domain.PostStatus) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	statuses := make([]string, len(allowed))
	for i, s := range allowed {
		statuses[i] = string(s)
	}

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE posts
SET status = 'scheduled', scheduled_at = $2, fail_reason = '', updated_at = now()
WHERE id = $1 AND status = ANY($3::post_status[])
`, id, at.UTC(), statuses)
	metrics.ObserveNetworkRequest("postgres", "posts_update_schedule", "posts", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// CancelPost отменяет scheduled-пост; время расписания очищается.
func (p *Postgres) CancelPost(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE posts SET status = 'cancelled', scheduled_at = NULL, updated_at = now()
WHERE id = $1 AND status = 'scheduled'
`, id)
	metrics.ObserveNetworkRequest("postgres", "posts_cancel", "posts", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// SoftDeletePost помечает пост удалённым; идентификатор сообщения очищается,
// удаление из канала выполняет сервис до вызова.
func (p *Postgres) SoftDeletePost(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE posts
SET status = 'deleted', tg_message_id = NULL, scheduled_at = NULL, updated_at = now()
WHERE id = $1 AND status <> 'deleted'
`, id)
	metrics.ObserveNetworkRequest("postgres", "posts_soft_delete", "posts", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// attachDetails подгружает диапазоны форматирования и медиа для набора постов.
func (p *Postgres) attachDetails(ctx context.Context, posts []*domain.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]int64, len(posts))
	byID := make(map[int64]*domain.Post, len(posts))
	for i, post := range posts {
		ids[i] = post.ID
		byID[post.ID] = post
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT post_id, kind, offset_utf16, length_utf16, url, language
FROM post_formatting_ranges WHERE post_id = ANY($1)
ORDER BY post_id, offset_utf16, id
`, ids)
	metrics.ObserveNetworkRequest("postgres", "ranges_list", "post_formatting_ranges", start, err)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			postID int64
			r      domain.FormattingRange
		)
		if err := rows.Scan(&postID, &r.Kind, &r.Offset, &r.Length, &r.URL, &r.Language); err != nil {
			rows.Close()
			return err
		}
		if post := byID[postID]; post != nil {
			post.Ranges = append(post.Ranges, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	start = time.Now()
	rows, err = p.pool.Query(ctx, `
SELECT post_id, type, file_id, width, height, duration, mime_type, file_name
FROM post_media WHERE post_id = ANY($1)
`, ids)
	metrics.ObserveNetworkRequest("postgres", "media_list", "post_media", start, err)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			postID int64
			m      domain.MediaDescriptor
		)
		if err := rows.Scan(&postID, &m.Type, &m.FileID, &m.Width, &m.Height, &m.Duration, &m.MimeType, &m.FileName); err != nil {
			return err
		}
		if post := byID[postID]; post != nil {
			media := m
			post.Media = &media
		}
	}
	return rows.Err()
}
