package retail

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

const dateKeyLayout = "20060102"

// CalendarDays builds the date dimension records for the inclusive range
// [from, to], one record per calendar day. The natural key is the compact
// date key (YYYYMMDD) and full_date is the only attribute that the snapshot
// engine needs to track: calendar facts never change, so re-running the
// range is a no-op.
func CalendarDays(from, to time.Time) (warehouse.EntityBatch, error) {
	fromDay := truncateToDay(from)
	toDay := truncateToDay(to)

	if toDay.Before(fromDay) {
		return nil, errors.Join(
			warehouse.ErrSchemaViolation,
			fmt.Errorf("calendar range end %s is before start %s",
				toDay.Format(time.DateOnly), fromDay.Format(time.DateOnly)),
		)
	}

	batch := make(warehouse.EntityBatch, 0, int(toDay.Sub(fromDay).Hours()/24)+1)

	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		batch = append(batch, calendarRecord(day))
	}

	return batch, nil
}

func calendarRecord(day time.Time) warehouse.EntityRecord {
	weekday := day.Weekday()

	return warehouse.EntityRecord{
		NaturalKey: day.Format(dateKeyLayout),
		Attributes: map[string]string{
			"full_date":  day.Format(time.DateOnly),
			"year":       strconv.Itoa(day.Year()),
			"quarter":    fmt.Sprintf("Q%d", (int(day.Month())-1)/3+1),
			"month":      strconv.Itoa(int(day.Month())),
			"month_name": day.Month().String(),
			"day":        strconv.Itoa(day.Day()),
			"weekday":    weekday.String(),
			"is_weekend": strconv.FormatBool(weekday == time.Saturday || weekday == time.Sunday),
		},
	}
}

func truncateToDay(t time.Time) time.Time {
	utc := t.UTC()

	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
