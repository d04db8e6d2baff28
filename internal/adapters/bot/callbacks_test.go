package bot

import "testing"

func TestDecodeCallback(t *testing.T) {
	cases := map[string]Callback{
		"ch:10":        cbChooseChannel{ChannelID: 10},
		"ch_all":       cbFanOutAll{},
		"tags_done":    cbTagsDone{},
		"ser:3":        cbSeriesChoose{SeriesID: 3},
		"ser_skip":     cbSeriesSkip{},
		"sched_in:24":  cbScheduleIn{Hours: 24},
		"sched_enter":  cbScheduleEnter{},
		"sched_now":    cbPublishNow{},
		"confirm":      cbConfirm{},
		"abort":        cbAbort{},
		"ai_short":     cbAIShorten{},
		"ai_tags":      cbAISuggestTags{},
		"p_cancel:7":   cbPostCancel{PostID: 7},
		"p_retry:7":    cbPostRetry{PostID: 7},
		"p_del:7":      cbPostDelete{PostID: 7},
		"p_resched:7":  cbPostReschedule{PostID: 7},
		"posts_page:2": cbPostsPage{Page: 2},
	}
	for data, expected := range cases {
		got, err := decodeCallback(data)
		if err != nil {
			t.Fatalf("не ожидали ошибку для %q: %v", data, err)
		}
		if got != expected {
			t.Fatalf("для %q ожидали %#v, получили %#v", data, expected, got)
		}
	}
}

func TestDecodeCallbackRejectsUnknown(t *testing.T) {
	for _, data := range []string{"", "whatever", "ch:abc", "posts_page:"} {
		if _, err := decodeCallback(data); err == nil {
			t.Fatalf("ожидали ошибку для %q", data)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encoded := []string{
		encodeChannel(5),
		encodeSeries(9),
		encodeScheduleIn(3),
		encodePostCancel(11),
		encodePostRetry(11),
		encodePostDelete(11),
		encodePostResched(11),
		encodePostsPage(4),
	}
	for _, data := range encoded {
		if _, err := decodeCallback(data); err != nil {
			t.Fatalf("encode/decode разошлись для %q: %v", data, err)
		}
	}
}
