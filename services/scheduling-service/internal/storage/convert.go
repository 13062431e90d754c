package storage

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
)

func pgDate(d civil.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func fromPgDate(d pgtype.Date) civil.Date {
	return civil.DateOf(d.Time)
}

func pgTime(c civil.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * 1_000_000, Valid: true}
}

func fromPgTime(t pgtype.Time) civil.Clock {
	return civil.Clock(t.Microseconds / 1_000_000)
}
