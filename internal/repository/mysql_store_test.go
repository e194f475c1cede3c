package repository_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/iliyamo/experience-booking/internal/database"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

// MySQLStoreSuite runs against a disposable database named by MYSQL_TEST_DSN,
// e.g. "root:pw@tcp(localhost:3306)/booking_test?parseTime=true&loc=UTC".
// Every table is emptied before each test.
type MySQLStoreSuite struct {
	suite.Suite
	db    *sql.DB
	store *repository.MySQLStore
	ctx   context.Context
	start time.Time
}

func TestMySQLStore(t *testing.T) {
	if os.Getenv("MYSQL_TEST_DSN") == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}
	suite.Run(t, new(MySQLStoreSuite))
}

func (s *MySQLStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	db, err := sql.Open("mysql", os.Getenv("MYSQL_TEST_DSN"))
	s.Require().NoError(err)
	s.Require().NoError(db.PingContext(s.ctx))
	s.Require().NoError(database.Migrate(s.ctx, db))
	s.db = db
	s.store = repository.NewMySQLStore(db)
	s.start = time.Date(2026, 10, 24, 10, 0, 0, 0, time.UTC)
}

func (s *MySQLStoreSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *MySQLStoreSuite) SetupTest() {
	for _, table := range []string{"lifecycle_events", "holds", "reservations", "slots", "experiences"} {
		_, err := s.db.ExecContext(s.ctx, "DELETE FROM "+table)
		s.Require().NoError(err)
	}
}

func (s *MySQLStoreSuite) newSlot() model.Slot {
	now := time.Now().UTC().Truncate(time.Millisecond)
	slot := model.Slot{
		ExperienceID:    7,
		StartsAt:        s.start,
		EndsAt:          s.start.Add(2 * time.Hour),
		Status:          model.SlotOpen,
		CapacityTotal:   5,
		CapacityPerType: map[string]int{"adult": 4},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.Require().NoError(s.store.CreateSlot(s.ctx, &slot))
	s.Require().NotZero(slot.ID)
	return slot
}

func (s *MySQLStoreSuite) TestCreateAndFindSlot() {
	slot := s.newSlot()

	got, err := s.store.FindSlot(s.ctx, 7, s.start, s.start.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Equal(slot.ID, got.ID)
	s.Equal(4, got.CapacityPerType["adult"])
	s.True(got.StartsAt.Equal(s.start))

	dup := slot
	dup.ID = 0
	s.ErrorIs(s.store.CreateSlot(s.ctx, &dup), repository.ErrDuplicate)

	_, err = s.store.GetSlot(s.ctx, slot.ID+1000)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *MySQLStoreSuite) TestWithSlotLockCommitsReservationHoldAndEvent() {
	slot := s.newSlot()
	now := time.Now().UTC().Truncate(time.Millisecond)
	token := uuid.NewString()

	var id uint64
	err := s.store.WithSlotLock(s.ctx, slot.ID, func(tx repository.SlotTx) error {
		s.Equal(slot.ID, tx.Slot().ID)
		r := &model.Reservation{
			Status:      model.StatusRTBHeld,
			Mode:        model.ModeRTB,
			Party:       model.Party{"adult": 2},
			CustomerRef: "cus_1",
			Hold:        &model.Hold{Token: token, CreatedAt: now, ExpiresAt: now.Add(-time.Second)},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertReservation(s.ctx, r); err != nil {
			return err
		}
		id = r.ID
		return tx.AppendEvent(s.ctx, model.Event{
			ID:         uuid.NewString(),
			Type:       model.EventHoldCreated,
			OccurredAt: now,
			Payload:    model.EventPayload{ReservationID: r.ID, SlotID: slot.ID, Status: r.Status},
		})
	})
	s.Require().NoError(err)

	got, err := s.store.GetReservation(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(model.StatusRTBHeld, got.Status)
	s.Equal(2, got.Party["adult"])
	s.Require().NotNil(got.Hold)
	s.Equal(token, got.Hold.Token)

	claims, err := s.store.ClaimingBySlots(s.ctx, []uint64{slot.ID})
	s.Require().NoError(err)
	s.Len(claims[slot.ID], 1)

	expired, err := s.store.ExpiredHolds(s.ctx, now, 10)
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(id, expired[0].ReservationID)

	pending, err := s.store.PendingEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(model.EventHoldCreated, pending[0].Type)
	s.Equal(id, pending[0].Payload.ReservationID)

	s.Require().NoError(s.store.MarkDispatched(s.ctx, []uint64{pending[0].Seq}, now))
	pending, err = s.store.PendingEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *MySQLStoreSuite) TestWithSlotLockRollsBack() {
	slot := s.newSlot()
	boom := errors.New("boom")
	now := time.Now().UTC().Truncate(time.Millisecond)

	err := s.store.WithSlotLock(s.ctx, slot.ID, func(tx repository.SlotTx) error {
		r := &model.Reservation{
			Status: model.StatusConfirmed, Mode: model.ModeDirect, Party: model.Party{"adult": 1},
			CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.InsertReservation(s.ctx, r); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	list, err := s.store.ListReservations(s.ctx, repository.ReservationFilter{SlotID: slot.ID})
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *MySQLStoreSuite) TestWithSlotLockUnknownSlot() {
	err := s.store.WithSlotLock(s.ctx, 424242, func(repository.SlotTx) error { return nil })
	s.ErrorIs(err, repository.ErrNotFound)
}
