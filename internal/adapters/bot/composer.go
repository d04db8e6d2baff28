package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-post-planner/internal/adapters/telegram"
	"tg-post-planner/internal/domain"
	"tg-post-planner/internal/usecase/publish"
)

// Шаги мастера создания поста. Сессия живёт в памяти, по одному черновику
// на оператора; рестарт процесса сбрасывает незавершённые черновики.
type composerStep int

const (
	stepChannel composerStep = iota + 1
	stepText
	stepTags
	stepSeries
	stepSchedule
	stepEnterTime
	stepConfirm
)

type session struct {
	Step        composerStep
	ChannelID   int64
	FanOut      bool
	Body        string
	Ranges      []domain.FormattingRange
	Media       *domain.MediaDescriptor
	Poll        *domain.PollPayload
	TagNames    []string
	SeriesID    *int64
	PublishNow  bool
	ScheduledAt *time.Time

	// ReschedulePostID != 0 — сессия ждёт ввод нового времени для
	// существующего поста, а не для черновика.
	ReschedulePostID int64
}

// startComposer начинает мастер: выбор целевого канала.
func (h *Handler) startComposer(ctx context.Context, chatID int64) {
	channels, err := h.channels.ListChannels(ctx, true)
	if err != nil {
		h.log.Error().Err(err).Msg("composer: не удалось получить каналы")
		h.reply(chatID, "Не удалось получить список каналов, попробуйте позже.")
		return
	}
	if len(channels) == 0 {
		h.reply(chatID, "Нет привязанных каналов. Перешлите мне любое сообщение из канала, чтобы привязать его.")
		return
	}

	h.mu.Lock()
	h.sessions[chatID] = &session{Step: stepChannel}
	h.mu.Unlock()

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, ch := range channels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ch.Title, encodeChannel(ch.ID)),
		))
	}
	if len(channels) > 1 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📣 Во все каналы", cbDataFanOutAll),
		))
	}
	rows = append(rows, abortRow())

	msg := tgbotapi.NewMessage(chatID, "Куда публикуем?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(msg)
}

// composerCallback обрабатывает нажатия кнопок внутри мастера.
// Возвращает false, если активной сессии нет или команда не для мастера.
func (h *Handler) composerCallback(ctx context.Context, chatID int64, cb Callback) bool {
	h.mu.Lock()
	s, ok := h.sessions[chatID]
	h.mu.Unlock()
	if !ok {
		return false
	}

	switch c := cb.(type) {
	case cbAbort:
		h.dropSession(chatID)
		h.reply(chatID, "Черновик отменён.")
	case cbChooseChannel:
		if s.Step != stepChannel {
			return true
		}
		s.ChannelID = c.ChannelID
		s.Step = stepText
		h.reply(chatID, "Пришлите текст поста, медиа с подписью или опрос. Форматирование сохранится.")
	case cbFanOutAll:
		if s.Step != stepChannel {
			return true
		}
		s.FanOut = true
		s.Step = stepText
		h.reply(chatID, "Буду публиковать во все каналы. Пришлите текст поста, медиа с подписью или опрос.")
	case cbAIShorten:
		h.aiShorten(ctx, chatID, s)
	case cbAISuggestTags:
		h.aiSuggestTags(ctx, chatID, s)
	case cbTagsDone:
		if s.Step != stepTags {
			return true
		}
		if len(s.TagNames) < h.minTags {
			h.reply(chatID, fmt.Sprintf("Нужна минимум %d метка. Пришлите метки через запятую.", h.minTags))
			return true
		}
		s.Step = stepSeries
		h.promptSeries(ctx, chatID, s)
	case cbSeriesChoose:
		if s.Step != stepSeries {
			return true
		}
		id := c.SeriesID
		s.SeriesID = &id
		s.Step = stepSchedule
		h.promptSchedule(chatID)
	case cbSeriesSkip:
		if s.Step != stepSeries {
			return true
		}
		s.Step = stepSchedule
		h.promptSchedule(chatID)
	case cbScheduleIn:
		if s.Step != stepSchedule {
			return true
		}
		at := time.Now().Add(time.Duration(c.Hours) * time.Hour).UTC()
		s.ScheduledAt = &at
		s.Step = stepConfirm
		h.promptConfirm(ctx, chatID, s)
	case cbScheduleEnter:
		if s.Step != stepSchedule {
			return true
		}
		s.Step = stepEnterTime
		h.reply(chatID, "Введите время: ЧЧ:ММ, «завтра ЧЧ:ММ» или ДД.ММ.ГГГГ ЧЧ:ММ.")
	case cbPublishNow:
		if s.Step != stepSchedule {
			return true
		}
		s.PublishNow = true
		s.ScheduledAt = nil
		s.Step = stepConfirm
		h.promptConfirm(ctx, chatID, s)
	case cbConfirm:
		if s.Step != stepConfirm {
			return true
		}
		h.finalizeDraft(ctx, chatID, s)
	default:
		return false
	}
	return true
}

// composerMessage обрабатывает текст и вложения внутри мастера.
func (h *Handler) composerMessage(ctx context.Context, msg *tgbotapi.Message) bool {
	chatID := msg.Chat.ID
	h.mu.Lock()
	s, ok := h.sessions[chatID]
	h.mu.Unlock()
	if !ok {
		return false
	}

	switch s.Step {
	case stepText:
		if !h.captureContent(chatID, s, msg) {
			return true
		}
		s.Step = stepTags
		h.promptTags(ctx, chatID, s)
	case stepTags:
		for _, raw := range strings.Split(msg.Text, ",") {
			name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
			if name != "" {
				s.TagNames = appendUnique(s.TagNames, strings.ToLower(name))
			}
		}
		h.reply(chatID, "Метки: "+formatTags(s.TagNames)+"\nДобавьте ещё или нажмите «Готово».")
	case stepSeries:
		code, title, _ := strings.Cut(strings.TrimSpace(msg.Text), " ")
		if code == "" {
			h.reply(chatID, "Пришлите код серии (и название через пробел) или нажмите «Пропустить».")
			return true
		}
		if title == "" {
			title = code
		}
		ser, err := h.series.EnsureSeries(ctx, s.ChannelID, strings.ToLower(code), title)
		if err != nil {
			h.log.Error().Err(err).Msg("composer: не удалось создать серию")
			h.reply(chatID, "Не удалось создать серию, попробуйте ещё раз.")
			return true
		}
		s.SeriesID = &ser.ID
		s.Step = stepSchedule
		h.promptSchedule(chatID)
	case stepEnterTime:
		at, err := ParseSchedule(msg.Text, time.Now(), h.loc)
		if err != nil {
			h.reply(chatID, err.Error())
			return true
		}
		if s.ReschedulePostID != 0 {
			h.dropSession(chatID)
			if err := h.posts.Reschedule(ctx, s.ReschedulePostID, at); err != nil {
				h.reply(chatID, "Не удалось перенести: "+userError(err))
				return true
			}
			h.reply(chatID, "Пост перенесён на "+at.In(h.loc).Format("02.01.2006 15:04")+".")
			return true
		}
		s.ScheduledAt = &at
		s.Step = stepConfirm
		h.promptConfirm(ctx, chatID, s)
	default:
		return false
	}
	return true
}

// captureContent забирает из сообщения оператора тело, форматирование,
// медиа или опрос. Возвращает false, если содержимое не распознано.
func (h *Handler) captureContent(chatID int64, s *session, msg *tgbotapi.Message) bool {
	switch {
	case msg.Poll != nil:
		p := msg.Poll
		opts := make([]string, 0, len(p.Options))
		for _, o := range p.Options {
			opts = append(opts, o.Text)
		}
		s.Poll = &domain.PollPayload{
			Question:       p.Question,
			Options:        opts,
			Anonymous:      p.IsAnonymous,
			MultipleChoice: p.AllowsMultipleAnswers,
			Quiz:           p.Type == "quiz",
		}
		return true
	case len(msg.Photo) > 0:
		ph := msg.Photo[len(msg.Photo)-1]
		s.Media = &domain.MediaDescriptor{Type: domain.MediaPhoto, FileID: ph.FileID, Width: ph.Width, Height: ph.Height}
		s.Body = msg.Caption
		s.Ranges = telegram.FromMessageEntities(msg.CaptionEntities)
		return true
	case msg.Video != nil:
		v := msg.Video
		s.Media = &domain.MediaDescriptor{Type: domain.MediaVideo, FileID: v.FileID, Width: v.Width, Height: v.Height, Duration: v.Duration, MimeType: v.MimeType}
		s.Body = msg.Caption
		s.Ranges = telegram.FromMessageEntities(msg.CaptionEntities)
		return true
	case msg.Document != nil:
		d := msg.Document
		s.Media = &domain.MediaDescriptor{Type: domain.MediaDocument, FileID: d.FileID, MimeType: d.MimeType, FileName: d.FileName}
		s.Body = msg.Caption
		s.Ranges = telegram.FromMessageEntities(msg.CaptionEntities)
		return true
	case msg.Voice != nil:
		s.Media = &domain.MediaDescriptor{Type: domain.MediaVoice, FileID: msg.Voice.FileID, Duration: msg.Voice.Duration, MimeType: msg.Voice.MimeType}
		s.Body = msg.Caption
		s.Ranges = telegram.FromMessageEntities(msg.CaptionEntities)
		return true
	case msg.Audio != nil:
		a := msg.Audio
		s.Media = &domain.MediaDescriptor{Type: domain.MediaAudio, FileID: a.FileID, Duration: a.Duration, MimeType: a.MimeType, FileName: a.FileName}
		s.Body = msg.Caption
		s.Ranges = telegram.FromMessageEntities(msg.CaptionEntities)
		return true
	case msg.VideoNote != nil:
		vn := msg.VideoNote
		s.Media = &domain.MediaDescriptor{Type: domain.MediaVideoNote, FileID: vn.FileID, Width: vn.Length, Duration: vn.Duration}
		return true
	case msg.Text != "":
		s.Body = msg.Text
		s.Ranges = telegram.FromMessageEntities(msg.Entities)
		return true
	}
	h.reply(chatID, "Не понял содержимое. Пришлите текст, фото, видео, документ, голосовое или опрос.")
	return false
}

func (h *Handler) promptTags(ctx context.Context, chatID int64, s *session) {
	var b strings.Builder
	b.WriteString("Черновик принят. Теперь метки: пришлите их через запятую.")
	if existing, err := h.tags.ListChannelTags(ctx, s.ChannelID); err == nil && len(existing) > 0 {
		names := make([]string, 0, len(existing))
		for _, t := range existing {
			names = append(names, t.Name)
		}
		b.WriteString("\nУже есть в канале: " + strings.Join(names, ", "))
	}

	msg := tgbotapi.NewMessage(chatID, b.String())
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✂️ Сократить текст", cbDataAIShorten),
			tgbotapi.NewInlineKeyboardButtonData("🏷 Метки от ИИ", cbDataAITags),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Готово", cbDataTagsDone),
		),
		abortRow(),
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(msg)
}

func (h *Handler) promptSeries(ctx context.Context, chatID int64, s *session) {
	var rows [][]tgbotapi.InlineKeyboardButton
	if existing, err := h.series.ListChannelSeries(ctx, s.ChannelID); err == nil {
		for _, ser := range existing {
			label := fmt.Sprintf("%s (#%d)", ser.Title, ser.NextNumber)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(label, encodeSeries(ser.ID)),
			))
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⏭ Пропустить", cbDataSeriesSkip),
	))
	rows = append(rows, abortRow())

	msg := tgbotapi.NewMessage(chatID, "Серия поста: выберите существующую, пришлите «код название» для новой или пропустите.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(msg)
}

func (h *Handler) promptSchedule(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Когда публикуем?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Через час", encodeScheduleIn(1)),
			tgbotapi.NewInlineKeyboardButtonData("Через 3 часа", encodeScheduleIn(3)),
			tgbotapi.NewInlineKeyboardButtonData("Через сутки", encodeScheduleIn(24)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Сейчас", cbDataPublishNow),
			tgbotapi.NewInlineKeyboardButtonData("⌨️ Ввести время", cbDataScheduleEnter),
		),
		abortRow(),
	)
	h.send(msg)
}

func (h *Handler) promptConfirm(ctx context.Context, chatID int64, s *session) {
	msg := tgbotapi.NewMessage(chatID, h.renderSummary(ctx, s))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", cbDataConfirm),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", cbDataAbort),
		),
	)
	h.send(msg)
}

func (h *Handler) renderSummary(ctx context.Context, s *session) string {
	var b strings.Builder
	b.WriteString("Проверьте черновик:\n")

	if s.FanOut {
		b.WriteString("Каналы: все привязанные\n")
	} else if ch, err := h.channels.GetChannel(ctx, s.ChannelID); err == nil {
		b.WriteString("Канал: " + ch.Title + "\n")
	}
	switch {
	case s.Poll != nil:
		b.WriteString("Опрос: " + s.Poll.Question + "\n")
	case s.Media != nil:
		b.WriteString("Медиа: " + string(s.Media.Type) + "\n")
	}
	if s.Body != "" {
		preview := []rune(s.Body)
		if len(preview) > 200 {
			preview = append(preview[:200], '…')
		}
		b.WriteString("Текст: " + string(preview) + "\n")
	}
	if len(s.TagNames) > 0 {
		b.WriteString("Метки: " + formatTags(s.TagNames) + "\n")
	}
	if s.SeriesID != nil {
		b.WriteString("Серия: да\n")
	}
	if s.PublishNow {
		b.WriteString("Время: сразу после подтверждения\n")
	} else if s.ScheduledAt != nil {
		b.WriteString("Время: " + s.ScheduledAt.In(h.loc).Format("02.01.2006 15:04") + "\n")
	}
	return b.String()
}

// finalizeDraft создаёт пост (или посты-близнецы при публикации во все каналы)
// и при «Сейчас» немедленно отправляет их.
func (h *Handler) finalizeDraft(ctx context.Context, chatID int64, s *session) {
	h.dropSession(chatID)

	var targets []domain.Channel
	if s.FanOut {
		all, err := h.channels.ListChannels(ctx, true)
		if err != nil {
			h.reply(chatID, "Не удалось получить каналы: "+userError(err))
			return
		}
		targets = all
	} else {
		ch, err := h.channels.GetChannel(ctx, s.ChannelID)
		if err != nil {
			h.reply(chatID, "Канал недоступен: "+userError(err))
			return
		}
		targets = []domain.Channel{ch}
	}
	if len(targets) == 0 {
		h.reply(chatID, "Нет каналов для публикации.")
		return
	}

	var lines []string
	for _, target := range targets {
		tagIDs, err := h.ensureTags(ctx, target.ID, s.TagNames)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s: метки не сохранены (%s)", target.Title, userError(err)))
			continue
		}
		np := domain.NewPost{
			ChannelID:   target.ID,
			Body:        s.Body,
			Ranges:      s.Ranges,
			Media:       s.Media,
			Poll:        s.Poll,
			TagIDs:      tagIDs,
			ScheduledAt: s.ScheduledAt,
			CreatedBy:   chatID,
		}
		// Серия принадлежит каналу, на близнецов в другие каналы не переносится.
		if s.SeriesID != nil && target.ID == s.ChannelID {
			np.SeriesID = s.SeriesID
		}
		post, err := h.posts.Create(ctx, np)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s: %s", target.Title, userError(err)))
			continue
		}
		if s.PublishNow {
			lines = append(lines, h.publishNow(ctx, post, target))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: пост #%d запланирован на %s",
			target.Title, post.ID, post.ScheduledAt.In(h.loc).Format("02.01.2006 15:04")))
	}
	h.reply(chatID, strings.Join(lines, "\n"))
}

func (h *Handler) publishNow(ctx context.Context, post domain.Post, target domain.Channel) string {
	outcomes := h.publisher.Publish(ctx, post, []domain.Channel{target})
	msgID, ok := publish.FirstSuccess(outcomes)
	if !ok {
		err := outcomes[0].Err
		if markErr := h.posts.MarkFailed(ctx, post.ID, err); markErr != nil {
			h.log.Error().Err(markErr).Int64("post_id", post.ID).Msg("composer: не удалось отметить ошибку")
		}
		return fmt.Sprintf("%s: ошибка публикации (%s)", target.Title, userError(err))
	}
	if err := h.posts.MarkPublished(ctx, post.ID, msgID); err != nil {
		h.log.Error().Err(err).Int64("post_id", post.ID).Msg("composer: пост отправлен, но не отмечен published")
	}
	return fmt.Sprintf("%s: опубликовано, пост #%d", target.Title, post.ID)
}

func (h *Handler) ensureTags(ctx context.Context, channelID int64, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		tag, err := h.tags.EnsureTag(ctx, channelID, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

func (h *Handler) aiShorten(ctx context.Context, chatID int64, s *session) {
	if h.rewriter == nil {
		h.reply(chatID, "ИИ-функции не настроены.")
		return
	}
	if s.Body == "" {
		h.reply(chatID, "В черновике нет текста.")
		return
	}
	short, err := h.rewriter.Shorten(ctx, s.Body)
	if err != nil {
		h.log.Error().Err(err).Msg("composer: ошибка сокращения текста")
		h.reply(chatID, "Не удалось сократить текст, попробуйте позже.")
		return
	}
	s.Body = short
	// Смещения исходного форматирования после переписывания недействительны.
	s.Ranges = nil
	h.reply(chatID, "Сокращённый вариант (форматирование сброшено):\n\n"+short)
}

func (h *Handler) aiSuggestTags(ctx context.Context, chatID int64, s *session) {
	if h.rewriter == nil {
		h.reply(chatID, "ИИ-функции не настроены.")
		return
	}
	if s.Body == "" {
		h.reply(chatID, "В черновике нет текста.")
		return
	}
	suggested, err := h.rewriter.SuggestTags(ctx, s.Body)
	if err != nil {
		h.log.Error().Err(err).Msg("composer: ошибка подбора меток")
		h.reply(chatID, "Не удалось подобрать метки, попробуйте позже.")
		return
	}
	for _, name := range suggested {
		s.TagNames = appendUnique(s.TagNames, strings.ToLower(name))
	}
	h.reply(chatID, "Метки: "+formatTags(s.TagNames)+"\nДобавьте свои или нажмите «Готово».")
}

func (h *Handler) dropSession(chatID int64) {
	h.mu.Lock()
	delete(h.sessions, chatID)
	h.mu.Unlock()
}

func abortRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🚫 Отмена", cbDataAbort),
	)
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

func formatTags(names []string) string {
	if len(names) == 0 {
		return "нет"
	}
	withHash := make([]string, 0, len(names))
	for _, n := range names {
		withHash = append(withHash, "#"+n)
	}
	return strings.Join(withHash, " ")
}
