package repo

import (
	"fmt"
	"time"
)

// 定宽、UTC、纳秒精度：文本字典序与时间先后一致，三种数据库都能直接比较
const instantLayout = "2006-01-02T15:04:05.000000000Z"

func encodeInstant(t time.Time) (string, int) {
	_, offset := t.Zone()
	return t.UTC().Format(instantLayout), offset
}

func encodeBound(t time.Time) string {
	s, _ := encodeInstant(t)
	return s
}

func decodeInstant(s string, offset int) (time.Time, error) {
	t, err := time.Parse(instantLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode instant %q: %w", s, err)
	}
	if offset == 0 {
		return t, nil
	}
	return t.In(time.FixedZone("", offset)), nil
}
