package booking

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/experience-booking/internal/ledger"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

// Business outcomes.  Every error returned by Service either matches one of
// these with errors.Is or is an infrastructure failure marked
// repository.ErrUnavailable.
var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrSlotClosed              = errors.New("slot closed")
	ErrCapacityExceeded        = errors.New("capacity exceeded")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrAlreadyTerminal         = errors.New("already terminal")
	ErrWouldOrphanReservations = errors.New("would orphan reservations")
	ErrConflict                = errors.New("concurrent update conflict")
)

// CapacityError reports which limit a request broke and how much is left,
// so callers can say "only 2 seats left".
type CapacityError struct {
	SlotID uint64
	ledger.Shortfall
}

func (e *CapacityError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("capacity exceeded on slot %d: requested %d, %d left", e.SlotID, e.Requested, e.Available)
	}
	return fmt.Sprintf("capacity exceeded on slot %d for %q: requested %d, %d left", e.SlotID, e.Type, e.Requested, e.Available)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// OrphanError reports the limit a capacity edit would push below the seats
// already sold.
type OrphanError struct {
	SlotID uint64
	ledger.Shortfall
}

func (e *OrphanError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("slot %d has %d seats reserved, cannot set total to %d", e.SlotID, e.Requested, e.Available)
	}
	return fmt.Sprintf("slot %d has %d %q seats reserved, cannot set limit to %d", e.SlotID, e.Requested, e.Type, e.Available)
}

func (e *OrphanError) Is(target error) bool { return target == ErrWouldOrphanReservations }

// TransitionError is a state machine move that is not allowed from the
// reservation's current status.
type TransitionError struct {
	ReservationID uint64
	From          model.ReservationStatus
	Action        string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s reservation %d in status %s", e.Action, e.ReservationID, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func invalidInput(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

// translate turns store sentinels into business errors and leaves
// infrastructure failures as they are.
func translate(err error, what string, id uint64) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return errors.Wrapf(ErrNotFound, "%s %d", what, id)
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrDuplicate):
		return errors.Wrapf(ErrConflict, "%s %d: %v", what, id, err)
	}
	return err
}
