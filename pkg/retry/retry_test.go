package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func TestConflictRetrier_RetriesOnce(t *testing.T) {
	calls := 0
	err := ConflictRetrier(isConflict).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errConflict
	})

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 2, calls)
}

func TestConflictRetrier_SecondAttemptSucceeds(t *testing.T) {
	calls := 0
	err := ConflictRetrier(isConflict).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errConflict
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestConflictRetrier_DoesNotRetryOtherErrors(t *testing.T) {
	other := errors.New("not found")
	calls := 0
	err := ConflictRetrier(isConflict).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return other
	})

	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	base := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(base)
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	assert.Equal(t, base, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithData_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, Retryable(errors.New("transient"))
		}
		return 42, nil
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}
