package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-post-planner/internal/adapters/telegram"
	"tg-post-planner/internal/domain"
	"tg-post-planner/internal/usecase/export"
	"tg-post-planner/internal/usecase/posts"
	"tg-post-planner/internal/usecase/publish"
)

const postsPageSize = 5

// Handler обрабатывает входящие апдейты Telegram: команды операторов,
// шаги мастера создания поста и управление постами через inline-кнопки.
type Handler struct {
	bot       *tgbotapi.BotAPI
	posts     *posts.Service
	publisher *publish.Publisher
	channels  domain.ChannelRepo
	tags      domain.TagRepo
	series    domain.SeriesRepo
	reminders domain.ReminderRepo
	rewriter  domain.Rewriter
	isAdmin   func(tgUserID int64) bool
	loc       *time.Location
	minTags   int
	// configInfo — готовый текст для /config, без секретов.
	configInfo string
	log        zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewHandler создаёт обработчик. rewriter может быть nil — тогда ИИ-кнопки
// отвечают, что функция не настроена.
func NewHandler(
	bot *tgbotapi.BotAPI,
	postsUC *posts.Service,
	publisher *publish.Publisher,
	channels domain.ChannelRepo,
	tags domain.TagRepo,
	series domain.SeriesRepo,
	reminders domain.ReminderRepo,
	rewriter domain.Rewriter,
	isAdmin func(tgUserID int64) bool,
	loc *time.Location,
	minTags int,
	configInfo string,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		bot:        bot,
		posts:      postsUC,
		publisher:  publisher,
		channels:   channels,
		tags:       tags,
		series:     series,
		reminders:  reminders,
		rewriter:   rewriter,
		isAdmin:    isAdmin,
		loc:        loc,
		minTags:    minTags,
		configInfo: configInfo,
		log:        logger.With().Str("component", "bot").Logger(),
		sessions:   make(map[int64]*session),
	}
}

// HandleUpdate — единая точка входа для апдейта из long polling.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("паника при обработке апдейта")
		}
	}()

	switch {
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	case upd.ChannelPost != nil:
		h.handleChannelPost(ctx, upd.ChannelPost)
	case upd.Message != nil:
		h.handleMessage(ctx, upd.Message)
	}
}

// handleChannelPost обрабатывает /add_channel, отправленный прямо в канале:
// раз бот видит команду, он уже добавлен в канал и может привязать его.
func (h *Handler) handleChannelPost(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() || msg.Command() != "add_channel" || msg.Chat == nil {
		return
	}
	ch, err := h.channels.UpsertChannel(ctx, msg.Chat.ID, msg.Chat.Title)
	if err != nil {
		h.log.Error().Err(err).Int64("tg_channel_id", msg.Chat.ID).Msg("не удалось привязать канал")
		return
	}
	h.log.Info().Int64("channel", ch.ID).Str("title", ch.Title).Msg("канал привязан командой в канале")
	h.reply(msg.Chat.ID, "Канал привязан.")
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || !h.isAdmin(msg.From.ID) {
		// Не-админов игнорируем молча, чтобы не подсвечивать бота.
		return
	}
	if msg.Chat == nil || msg.Chat.Type != "private" {
		return
	}

	// Пересланное из канала сообщение — привязка канала.
	if msg.ForwardFromChat != nil && msg.ForwardFromChat.Type == "channel" {
		h.bindChannel(ctx, msg.Chat.ID, msg.ForwardFromChat)
		return
	}

	if msg.IsCommand() {
		h.handleCommand(ctx, msg)
		return
	}

	if h.composerMessage(ctx, msg) {
		return
	}
	h.reply(msg.Chat.ID, "Не понял. /help — список команд.")
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "admin", "help":
		h.reply(chatID, helpText)
	case "new_post":
		h.startComposer(ctx, chatID)
	case "my_posts":
		h.sendPostsPage(ctx, chatID, msg.From.ID, 1)
	case "channels":
		h.sendChannels(ctx, chatID)
	case "remind":
		h.setReminder(ctx, chatID, msg.CommandArguments())
	case "export":
		h.sendExport(ctx, chatID, msg.From.ID, msg.CommandArguments())
	case "cancel":
		h.dropSession(chatID)
		h.reply(chatID, "Черновик отменён.")
	case "config":
		h.reply(chatID, h.configInfo)
	case "ping":
		h.reply(chatID, "pong")
	case "myid":
		h.reply(chatID, fmt.Sprintf("Ваш ID: %d", msg.From.ID))
	default:
		h.reply(chatID, "Неизвестная команда. /help — список команд.")
	}
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil || !h.isAdmin(q.From.ID) {
		return
	}
	// Снимаем «часики» сразу, независимо от исхода обработки.
	if _, err := h.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		h.log.Warn().Err(err).Msg("не удалось ответить на callback")
	}
	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID

	cb, err := decodeCallback(q.Data)
	if err != nil {
		h.log.Warn().Err(err).Str("data", q.Data).Msg("непонятный callback")
		return
	}

	switch c := cb.(type) {
	case cbPostCancel:
		h.withPostResult(chatID, c.PostID, "отменён", h.posts.Cancel(ctx, c.PostID))
	case cbPostRetry:
		h.withPostResult(chatID, c.PostID, "возвращён в очередь", h.posts.Retry(ctx, c.PostID, nil))
	case cbPostDelete:
		h.withPostResult(chatID, c.PostID, "удалён", h.posts.SoftDelete(ctx, c.PostID))
	case cbPostReschedule:
		h.mu.Lock()
		h.sessions[chatID] = &session{Step: stepEnterTime, ReschedulePostID: c.PostID}
		h.mu.Unlock()
		h.reply(chatID, "Введите новое время: ЧЧ:ММ, «завтра ЧЧ:ММ» или ДД.ММ.ГГГГ ЧЧ:ММ.")
	case cbPostsPage:
		h.sendPostsPage(ctx, chatID, q.From.ID, c.Page)
	default:
		if !h.composerCallback(ctx, chatID, cb) {
			h.log.Warn().Str("data", q.Data).Msg("callback без активной сессии")
		}
	}
}

func (h *Handler) withPostResult(chatID, postID int64, done string, err error) {
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Пост #%d: %s", postID, userError(err)))
		return
	}
	h.reply(chatID, fmt.Sprintf("Пост #%d %s.", postID, done))
}

// bindChannel привязывает канал по пересланному из него сообщению.
// Бот должен быть администратором канала, иначе публикация упадёт позже.
func (h *Handler) bindChannel(ctx context.Context, chatID int64, chat *tgbotapi.Chat) {
	title := chat.Title
	if title == "" {
		title = chat.UserName
	}
	ch, err := h.channels.UpsertChannel(ctx, chat.ID, title)
	if err != nil {
		h.log.Error().Err(err).Int64("tg_channel_id", chat.ID).Msg("не удалось привязать канал")
		h.reply(chatID, "Не удалось привязать канал, попробуйте позже.")
		return
	}
	h.reply(chatID, fmt.Sprintf("Канал «%s» привязан. Убедитесь, что бот — администратор канала.", ch.Title))
}

func (h *Handler) sendChannels(ctx context.Context, chatID int64) {
	channels, err := h.channels.ListChannels(ctx, false)
	if err != nil {
		h.reply(chatID, "Не удалось получить каналы: "+userError(err))
		return
	}
	if len(channels) == 0 {
		h.reply(chatID, "Каналов нет. Перешлите сообщение из канала, чтобы привязать его.")
		return
	}
	var b strings.Builder
	b.WriteString("Привязанные каналы:\n")
	for _, ch := range channels {
		state := "✅"
		if !ch.Enabled {
			state = "⛔️"
		}
		fmt.Fprintf(&b, "%s %s (id %d)\n", state, ch.Title, ch.ID)
	}
	h.reply(chatID, b.String())
}

// sendPostsPage выводит страницу постов оператора с кнопками управления.
func (h *Handler) sendPostsPage(ctx context.Context, chatID, operatorID int64, page int) {
	if page < 1 {
		page = 1
	}
	list, err := h.posts.ListByCreator(ctx, operatorID, page, postsPageSize)
	if err != nil {
		h.reply(chatID, "Не удалось получить посты: "+userError(err))
		return
	}
	if len(list) == 0 {
		if page == 1 {
			h.reply(chatID, "Постов пока нет. /new_post — создать.")
		} else {
			h.reply(chatID, "Дальше постов нет.")
		}
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ваши посты, страница %d:\n\n", page)
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range list {
		b.WriteString(formatPostLine(p, h.loc) + "\n")
		rows = append(rows, postActionRow(p)...)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➡️ Ещё", encodePostsPage(page+1)),
	))

	msg := tgbotapi.NewMessage(chatID, b.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(msg)
}

func formatPostLine(p domain.Post, loc *time.Location) string {
	icon := statusIcon(p.Status)
	var when string
	switch {
	case p.PublishedAt != nil:
		when = p.PublishedAt.In(loc).Format("02.01 15:04")
	case p.ScheduledAt != nil:
		when = p.ScheduledAt.In(loc).Format("02.01 15:04")
	}
	title := p.Body
	if title == "" && p.Poll != nil {
		title = p.Poll.Question
	}
	runes := []rune(title)
	if len(runes) > 40 {
		title = string(runes[:40]) + "…"
	}
	line := fmt.Sprintf("%s #%d %s", icon, p.ID, title)
	if when != "" {
		line += " · " + when
	}
	if p.FailReason != "" {
		line += " · " + p.FailReason
	}
	return line
}

// postActionRow возвращает кнопки, допустимые для текущего статуса поста.
func postActionRow(p domain.Post) [][]tgbotapi.InlineKeyboardButton {
	var btns []tgbotapi.InlineKeyboardButton
	switch p.Status {
	case domain.StatusScheduled:
		btns = append(btns,
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🕐 #%d перенести", p.ID), encodePostResched(p.ID)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🚫 #%d отменить", p.ID), encodePostCancel(p.ID)),
		)
	case domain.StatusFailed:
		btns = append(btns,
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🔁 #%d повторить", p.ID), encodePostRetry(p.ID)),
		)
	}
	btns = append(btns,
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🗑 #%d", p.ID), encodePostDelete(p.ID)),
	)
	if len(btns) == 0 {
		return nil
	}
	return [][]tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardRow(btns...)}
}

func statusIcon(s domain.PostStatus) string {
	switch s {
	case domain.StatusDraft:
		return "📝"
	case domain.StatusScheduled:
		return "🗓"
	case domain.StatusPublished:
		return "✅"
	case domain.StatusFailed:
		return "❗️"
	case domain.StatusCancelled:
		return "🚫"
	default:
		return "▫️"
	}
}

// setReminder включает ежедневное напоминание в указанный слот ЧЧ:ММ.
func (h *Handler) setReminder(ctx context.Context, chatID int64, arg string) {
	slot := strings.TrimSpace(arg)
	if slot == "" {
		h.reply(chatID, "Использование: /remind ЧЧ:ММ, например /remind 12:00")
		return
	}
	if _, err := time.Parse("15:04", slot); err != nil {
		h.reply(chatID, fmt.Sprintf("Не понял слот %q, ожидаю ЧЧ:ММ.", slot))
		return
	}
	if _, err := h.reminders.UpsertReminder(ctx, chatID, slot); err != nil {
		h.reply(chatID, "Не удалось сохранить напоминание: "+userError(err))
		return
	}
	h.reply(chatID, fmt.Sprintf("Напоминание в %s включено.", slot))
}

// sendExport отправляет посты оператора файлом: JSON по умолчанию, markdown — /export md.
func (h *Handler) sendExport(ctx context.Context, chatID, operatorID int64, arg string) {
	const exportLimit = 500
	list, err := h.posts.ListByCreator(ctx, operatorID, 1, exportLimit)
	if err != nil {
		h.reply(chatID, "Не удалось выгрузить посты: "+userError(err))
		return
	}
	if len(list) == 0 {
		h.reply(chatID, "Выгружать нечего.")
		return
	}

	var (
		data []byte
		name string
	)
	if strings.TrimSpace(strings.ToLower(arg)) == "md" {
		data = export.ToMarkdown(list, h.loc)
		name = "posts.md"
	} else {
		data, err = export.ToJSON(list)
		if err != nil {
			h.reply(chatID, "Не удалось сериализовать посты: "+userError(err))
			return
		}
		name = "posts.json"
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = fmt.Sprintf("Постов в выгрузке: %d", len(list))
	if _, err := h.bot.Send(doc); err != nil {
		h.log.Error().Err(err).Msg("не удалось отправить выгрузку")
	}
}

// reply режет длинные ответы на части: Telegram не примет текст длиннее 4096.
func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		h.send(tgbotapi.NewMessage(chatID, part))
	}
}

func (h *Handler) send(msg tgbotapi.MessageConfig) {
	if _, err := h.bot.Send(msg); err != nil {
		h.log.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("не удалось отправить сообщение")
	}
}

// userError переводит ошибку в текст для оператора, не раскрывая внутренности.
func userError(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Msg
	case errors.Is(err, domain.ErrNotFound):
		return "не найдено"
	case errors.Is(err, domain.ErrIllegalTransition):
		return "действие недоступно в текущем статусе"
	default:
		return "внутренняя ошибка, попробуйте позже"
	}
}

const helpText = `Бот планирования постов.

/new_post — создать пост (текст, медиа или опрос)
/my_posts — ваши посты и управление ими
/channels — привязанные каналы
/remind ЧЧ:ММ — ежедневное напоминание
/export [md] — выгрузка постов файлом
/cancel — сбросить текущий черновик
/config — текущие настройки
/myid — ваш Telegram ID
/ping — проверка связи

Привязка канала: перешлите сюда любое сообщение из канала.`
