package services

import (
	"testing"
	"time"

	"shiftclock/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func contextTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AttendanceSession{}))
	return db
}

func seedSession(t *testing.T, db *gorm.DB, userID uint, date string, state string, in, out *time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.AttendanceSession{
		UserID:  userID,
		OrgID:   1,
		Date:    date,
		State:   state,
		TimeIn:  in,
		TimeOut: out,
	}).Error)
}

func TestBuildSessionContextOnlyClosedSessionsCount(t *testing.T) {
	db := contextTestDB(t)

	day := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	in1 := day.Add(9 * time.Hour)
	out1 := day.Add(12 * time.Hour)
	in2 := day.Add(13 * time.Hour)

	seedSession(t, db, 7, "2025-05-20", models.SessionStateClosed, &in1, &out1)
	// The open session has no time_out yet and must not contribute hours.
	seedSession(t, db, 7, "2025-05-20", models.SessionStateOpen, &in2, nil)

	ctx, err := BuildSessionContext(db, 7, day.Add(15*time.Hour), EventTimeOut)
	require.NoError(t, err)

	assert.False(t, ctx.IsFirstSession)
	assert.Equal(t, 3, ctx.SessionNumber)
	assert.InDelta(t, 3.0, ctx.TotalHoursToday, 1e-9)
	require.NotNil(t, ctx.FirstTimeIn)
	assert.True(t, ctx.FirstTimeIn.Equal(in1))
	require.NotNil(t, ctx.LastTimeOut)
	assert.True(t, ctx.LastTimeOut.Equal(out1))
	assert.Len(t, ctx.Sessions, 2)
}

func TestBuildSessionContextScopedToUserAndDate(t *testing.T) {
	db := contextTestDB(t)

	day := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	in := day.Add(9 * time.Hour)
	out := day.Add(17 * time.Hour)

	seedSession(t, db, 7, "2025-05-19", models.SessionStateClosed, &in, &out)
	seedSession(t, db, 8, "2025-05-20", models.SessionStateClosed, &in, &out)

	ctx, err := BuildSessionContext(db, 7, day.Add(9*time.Hour), EventTimeIn)
	require.NoError(t, err)

	assert.True(t, ctx.IsFirstSession)
	assert.Equal(t, 1, ctx.SessionNumber)
	assert.Zero(t, ctx.TotalHoursToday)
	assert.Nil(t, ctx.FirstTimeIn)
}

func TestBuildSessionContextVariables(t *testing.T) {
	ctx := &SessionContext{
		EventType:       EventTimeOut,
		IsFirstSession:  true,
		SessionNumber:   1,
		TotalHoursToday: 7.5,
	}
	vars := ctx.Variables()
	assert.Equal(t, EventTimeOut, vars["event_type"])
	assert.Equal(t, true, vars["is_first_session"])
	assert.Equal(t, false, vars["is_last_session"])
	assert.Equal(t, 1, vars["session_number"])
	assert.Equal(t, 7.5, vars["total_hours_today"])
}

func TestBuildSessionContextPropagatesQueryError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM `attendance_sessions`").
		WillReturnError(assert.AnError)

	_, err = BuildSessionContext(db, 7, time.Now(), EventTimeIn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load today's sessions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
