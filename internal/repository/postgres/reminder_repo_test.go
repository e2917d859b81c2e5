package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/model"
)

func TestReminderRepo_NextID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReminderRepo(db)

	mock.ExpectQuery(`SELECT nextval\(pg_get_serial_sequence\('reminders', 'id'\)\)`).
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(17)))

	id, err := r.NextID(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(17), id)
}

func TestReminderRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReminderRepo(db)
	at := time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO reminders \(text, fire_at, owner_identity\) VALUES \(\$1, \$2, \$3\) RETURNING id`).
		WithArgs("buy milk", at, int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := r.Create(context.Background(), 5, "buy milk", at)
	require.NoError(t, err)
	require.Equal(t, int64(3), id)
}

func TestReminderRepo_CreateWithID_Conflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReminderRepo(db)
	at := time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO reminders \(id, text, fire_at, owner_identity\) VALUES \(\$1, \$2, \$3, \$4\) ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(int64(9), "call mom", at, int64(5)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := r.CreateWithID(context.Background(), model.Reminder{ID: 9, OwnerID: 5, Text: "call mom", FireAt: at})
	require.NoError(t, err)
	require.False(t, inserted)
}

func TestReminderRepo_ListByOwner_Ordered(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReminderRepo(db)
	t1 := time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	mock.ExpectQuery(`SELECT id, owner_identity, text, fire_at FROM reminders WHERE owner_identity=\$1 ORDER BY id ASC`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_identity", "text", "fire_at"}).
			AddRow(int64(1), int64(5), "a", t1).
			AddRow(int64(4), int64(5), "b", t2))

	out, err := r.ListByOwner(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, int64(1), out[0].ID)
	require.Equal(t, "b", out[1].Text)
	require.Equal(t, t2, out[1].FireAt)
}

func TestReminderRepo_ListByOwner_Empty(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReminderRepo(db)

	mock.ExpectQuery(`SELECT id, owner_identity, text, fire_at FROM reminders`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_identity", "text", "fire_at"}))

	out, err := r.ListByOwner(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, out)
	require.NotNil(t, out)
}

func TestReminderRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReminderRepo(db)

	mock.ExpectExec(`DELETE FROM reminders WHERE id=\$1 AND owner_identity=\$2`).
		WithArgs(int64(3), int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(context.Background(), 5, 3))

	// another owner's id
	mock.ExpectExec(`DELETE FROM reminders WHERE id=\$1 AND owner_identity=\$2`).
		WithArgs(int64(3), int64(6)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Delete(context.Background(), 6, 3), errs.ErrNotFound)
}

func TestReminderRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReminderRepo(db)
	at := time.Date(2031, 5, 1, 8, 30, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE reminders SET text=\$3, fire_at=\$4 WHERE id=\$1 AND owner_identity=\$2`).
		WithArgs(int64(3), int64(5), "new", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Update(context.Background(), 5, 3, "new", at))

	mock.ExpectExec(`UPDATE reminders`).
		WithArgs(int64(99), int64(5), "new", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Update(context.Background(), 5, 99, "new", at), errs.ErrNotFound)

	mock.ExpectExec(`UPDATE reminders`).
		WithArgs(int64(3), int64(5), "new", at).
		WillReturnError(errors.New("boom"))
	err := r.Update(context.Background(), 5, 3, "new", at)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

func TestReminderRepo_DeleteExpired(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReminderRepo(db)
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM reminders WHERE fire_at < \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := r.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
}
