package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fanpoints/internal/repository"

	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// AttendanceGate 保证每个用户每天只能领取一次签到奖励
//
// 日期由服务端时钟按配置时区计算，不接受调用方传入，防止补签。
type AttendanceGate struct {
	repo *repository.AttendanceRepository
	loc  *time.Location
	now  func() time.Time
}

func NewAttendanceGate(repo *repository.AttendanceRepository, loc *time.Location, now func() time.Time) *AttendanceGate {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &AttendanceGate{repo: repo, loc: loc, now: now}
}

// Now 配置时区下的当前时间
func (g *AttendanceGate) Now() time.Time {
	return g.now().In(g.loc)
}

// Today 当前时区下的日期
func (g *AttendanceGate) Today() string {
	return g.Now().Format(dateLayout)
}

// TryMark 在事务内写入今天的签到标记
// 返回 granted=false 表示今天已经签到过，不是错误
func (g *AttendanceGate) TryMark(ctx context.Context, tx *gorm.DB, userID string) (date string, granted bool, err error) {
	date = g.Today()
	granted, err = g.repo.TryMark(ctx, tx, userID, date)
	if err != nil {
		return "", false, err
	}
	return date, granted, nil
}

// MonthDays 返回某月已签到的日（1-31），升序
func (g *AttendanceGate) MonthDays(ctx context.Context, userID string, year int, month time.Month) ([]int, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month %d", ErrInvalidDate, month)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, g.loc)
	last := first.AddDate(0, 1, -1)

	dates, err := g.repo.ListDates(ctx, userID, first.Format(dateLayout), last.Format(dateLayout))
	if err != nil {
		return nil, err
	}

	days := make([]int, 0, len(dates))
	for _, d := range dates {
		// 2006-01-02 的最后两位是日
		day, err := strconv.Atoi(d[len(d)-2:])
		if err != nil {
			return nil, fmt.Errorf("bad attendance date %q: %w", d, err)
		}
		days = append(days, day)
	}
	return days, nil
}
