package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-post-planner/internal/domain"
)

var kindToEntityType = map[domain.RangeKind]string{
	domain.RangeBold:          "bold",
	domain.RangeItalic:        "italic",
	domain.RangeUnderline:     "underline",
	domain.RangeStrikethrough: "strikethrough",
	domain.RangeCode:          "code",
	domain.RangePre:           "pre",
	domain.RangeTextLink:      "text_link",
	domain.RangeMention:       "mention",
	domain.RangeBlockquote:    "blockquote",
	domain.RangeSpoiler:       "spoiler",
}

var entityTypeToKind = func() map[string]domain.RangeKind {
	m := make(map[string]domain.RangeKind, len(kindToEntityType))
	for kind, typ := range kindToEntityType {
		m[typ] = kind
	}
	return m
}()

// ToMessageEntities переводит диапазоны форматирования в entity-список Telegram.
// Смещения уже в UTF-16 code units, перевод без потерь.
func ToMessageEntities(ranges []domain.FormattingRange) []tgbotapi.MessageEntity {
	if len(ranges) == 0 {
		return nil
	}
	entities := make([]tgbotapi.MessageEntity, 0, len(ranges))
	for _, r := range ranges {
		typ, ok := kindToEntityType[r.Kind]
		if !ok {
			continue
		}
		entities = append(entities, tgbotapi.MessageEntity{
			Type:     typ,
			Offset:   r.Offset,
			Length:   r.Length,
			URL:      r.URL,
			Language: r.Language,
		})
	}
	return entities
}

// FromMessageEntities переводит entity-список входящего сообщения оператора
// в диапазоны форматирования. Неизвестные типы entity отбрасываются.
func FromMessageEntities(entities []tgbotapi.MessageEntity) []domain.FormattingRange {
	if len(entities) == 0 {
		return nil
	}
	ranges := make([]domain.FormattingRange, 0, len(entities))
	for _, e := range entities {
		kind, ok := entityTypeToKind[e.Type]
		if !ok {
			continue
		}
		ranges = append(ranges, domain.FormattingRange{
			Kind:     kind,
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		})
	}
	return ranges
}
