package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback — закрытое множество команд inline-клавиатуры. Строка callback data
// разбирается ровно один раз на входе, дальше обработчики работают только с
// типизированными значениями.
type Callback interface {
	isCallback()
}

type cbChooseChannel struct{ ChannelID int64 }
type cbFanOutAll struct{}
type cbTagsDone struct{}
type cbSeriesChoose struct{ SeriesID int64 }
type cbSeriesSkip struct{}
type cbScheduleIn struct{ Hours int }
type cbScheduleEnter struct{}
type cbPublishNow struct{}
type cbConfirm struct{}
type cbAbort struct{}
type cbAIShorten struct{}
type cbAISuggestTags struct{}
type cbPostCancel struct{ PostID int64 }
type cbPostRetry struct{ PostID int64 }
type cbPostDelete struct{ PostID int64 }
type cbPostReschedule struct{ PostID int64 }
type cbPostsPage struct{ Page int }

func (cbChooseChannel) isCallback()   {}
func (cbFanOutAll) isCallback()       {}
func (cbTagsDone) isCallback()        {}
func (cbSeriesChoose) isCallback()    {}
func (cbSeriesSkip) isCallback()      {}
func (cbScheduleIn) isCallback()      {}
func (cbScheduleEnter) isCallback()   {}
func (cbPublishNow) isCallback()      {}
func (cbConfirm) isCallback()         {}
func (cbAbort) isCallback()           {}
func (cbAIShorten) isCallback()       {}
func (cbAISuggestTags) isCallback()   {}
func (cbPostCancel) isCallback()      {}
func (cbPostRetry) isCallback()       {}
func (cbPostDelete) isCallback()      {}
func (cbPostReschedule) isCallback()  {}
func (cbPostsPage) isCallback()       {}

// Encode-хелперы для построения клавиатур. Формат: "cmd" или "cmd:arg".
func encodeChannel(id int64) string     { return fmt.Sprintf("ch:%d", id) }
func encodeSeries(id int64) string      { return fmt.Sprintf("ser:%d", id) }
func encodeScheduleIn(h int) string     { return fmt.Sprintf("sched_in:%d", h) }
func encodePostCancel(id int64) string  { return fmt.Sprintf("p_cancel:%d", id) }
func encodePostRetry(id int64) string   { return fmt.Sprintf("p_retry:%d", id) }
func encodePostDelete(id int64) string  { return fmt.Sprintf("p_del:%d", id) }
func encodePostResched(id int64) string { return fmt.Sprintf("p_resched:%d", id) }
func encodePostsPage(page int) string   { return fmt.Sprintf("posts_page:%d", page) }

const (
	cbDataFanOutAll     = "ch_all"
	cbDataTagsDone      = "tags_done"
	cbDataSeriesSkip    = "ser_skip"
	cbDataScheduleEnter = "sched_enter"
	cbDataPublishNow    = "sched_now"
	cbDataConfirm       = "confirm"
	cbDataAbort         = "abort"
	cbDataAIShorten     = "ai_short"
	cbDataAITags        = "ai_tags"
)

// decodeCallback разбирает callback data. Неизвестная строка возвращает ошибку:
// такие нажатия логируются и молча игнорируются.
func decodeCallback(data string) (Callback, error) {
	cmd, arg, _ := strings.Cut(data, ":")
	switch cmd {
	case "ch":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("callback ch: %w", err)
		}
		return cbChooseChannel{ChannelID: id}, nil
	case cbDataFanOutAll:
		return cbFanOutAll{}, nil
	case cbDataTagsDone:
		return cbTagsDone{}, nil
	case "ser":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("callback ser: %w", err)
		}
		return cbSeriesChoose{SeriesID: id}, nil
	case cbDataSeriesSkip:
		return cbSeriesSkip{}, nil
	case "sched_in":
		h, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("callback sched_in: %w", err)
		}
		return cbScheduleIn{Hours: h}, nil
	case cbDataScheduleEnter:
		return cbScheduleEnter{}, nil
	case cbDataPublishNow:
		return cbPublishNow{}, nil
	case cbDataConfirm:
		return cbConfirm{}, nil
	case cbDataAbort:
		return cbAbort{}, nil
	case cbDataAIShorten:
		return cbAIShorten{}, nil
	case cbDataAITags:
		return cbAISuggestTags{}, nil
	case "p_cancel":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("callback p_cancel: %w", err)
		}
		return cbPostCancel{PostID: id}, nil
	case "p_retry":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("callback p_retry: %w", err)
		}
		return cbPostRetry{PostID: id}, nil
	case "p_del":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("callback p_del: %w", err)
		}
		return cbPostDelete{PostID: id}, nil
	case "p_resched":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("callback p_resched: %w", err)
		}
		return cbPostReschedule{PostID: id}, nil
	case "posts_page":
		page, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("callback posts_page: %w", err)
		}
		return cbPostsPage{Page: page}, nil
	default:
		return nil, fmt.Errorf("неизвестная callback-команда %q", cmd)
	}
}
