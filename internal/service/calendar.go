package service

import (
	"time"

	"campuspay/internal/model"
)

// Calendar 运营时区的自然日。所有“今天”的判断都走这里，不用请求方的本地时间。
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc, now: time.Now}
}

// WithClock 测试时替换时钟
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	return &Calendar{loc: c.loc, now: now}
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// Today YYYY-MM-DD
func (c *Calendar) Today() string {
	return c.Now().Format(model.DateLayout)
}
