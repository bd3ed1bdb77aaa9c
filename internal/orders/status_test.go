package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusPending, StatusDelivered, false},
		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusDelivered, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusDelivered.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusShipped.Terminal())
}

func TestRoleAllowsStatus(t *testing.T) {
	assert.True(t, RoleAllowsStatus(RoleSeller, StatusConfirmed))
	assert.True(t, RoleAllowsStatus(RoleSeller, StatusShipped))
	assert.True(t, RoleAllowsStatus(RoleSeller, StatusCancelled))
	assert.False(t, RoleAllowsStatus(RoleSeller, StatusDelivered))

	assert.True(t, RoleAllowsStatus(RoleBuyer, StatusDelivered))
	assert.True(t, RoleAllowsStatus(RoleBuyer, StatusCancelled))
	assert.False(t, RoleAllowsStatus(RoleBuyer, StatusConfirmed))
	assert.False(t, RoleAllowsStatus(RoleBuyer, StatusShipped))

	assert.False(t, RoleAllowsStatus(RoleBuyer, Status("bogus")))
}

func TestApplyStatusChange(t *testing.T) {
	t.Run("ConfirmKeepsPayment", func(t *testing.T) {
		ch, err := ApplyStatusChange(StatusPending, PaymentPending, StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, ch.Status)
		assert.Equal(t, PaymentPending, ch.PaymentStatus)
		assert.False(t, ch.Release)
	})

	t.Run("CancelFailsPendingPaymentAndReleases", func(t *testing.T) {
		ch, err := ApplyStatusChange(StatusPending, PaymentPending, StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, ch.Status)
		assert.Equal(t, PaymentFailed, ch.PaymentStatus)
		assert.True(t, ch.Release)
	})

	t.Run("CancelAfterPaymentSuccessKeepsSuccess", func(t *testing.T) {
		ch, err := ApplyStatusChange(StatusConfirmed, PaymentSuccess, StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, PaymentSuccess, ch.PaymentStatus)
		assert.True(t, ch.Release)
	})

	t.Run("CancelledIsTerminal", func(t *testing.T) {
		_, err := ApplyStatusChange(StatusCancelled, PaymentFailed, StatusCancelled)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))

		_, err = ApplyStatusChange(StatusCancelled, PaymentFailed, StatusConfirmed)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})

	t.Run("SkippingStatesRejected", func(t *testing.T) {
		_, err := ApplyStatusChange(StatusPending, PaymentPending, StatusDelivered)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})
}

func TestApplyPaymentChange(t *testing.T) {
	t.Run("SuccessLeavesOrderStatus", func(t *testing.T) {
		ch, err := ApplyPaymentChange(StatusConfirmed, PaymentPending, PaymentSuccess)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, ch.Status)
		assert.Equal(t, PaymentSuccess, ch.PaymentStatus)
		assert.False(t, ch.Release)
	})

	t.Run("FailedForcesCancellationAndRelease", func(t *testing.T) {
		ch, err := ApplyPaymentChange(StatusPending, PaymentPending, PaymentFailed)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, ch.Status)
		assert.Equal(t, PaymentFailed, ch.PaymentStatus)
		assert.True(t, ch.Release)
	})

	t.Run("RepeatIsConflict", func(t *testing.T) {
		_, err := ApplyPaymentChange(StatusCancelled, PaymentFailed, PaymentFailed)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))

		_, err = ApplyPaymentChange(StatusConfirmed, PaymentSuccess, PaymentSuccess)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})

	t.Run("NoPathOutOfTerminalPayment", func(t *testing.T) {
		_, err := ApplyPaymentChange(StatusCancelled, PaymentFailed, PaymentSuccess)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})
}

func TestMapGatewayStatus(t *testing.T) {
	assert.Equal(t, PaymentSuccess, MapGatewayStatus("capture"))
	assert.Equal(t, PaymentSuccess, MapGatewayStatus("settlement"))
	assert.Equal(t, PaymentPending, MapGatewayStatus("pending"))
	assert.Equal(t, PaymentFailed, MapGatewayStatus("deny"))
	assert.Equal(t, PaymentFailed, MapGatewayStatus("expire"))
	assert.Equal(t, PaymentFailed, MapGatewayStatus("cancel"))
	assert.Equal(t, PaymentFailed, MapGatewayStatus(""))
}

func TestErrorKinds(t *testing.T) {
	err := InsufficientStock("Kopi Gayo", 3, 1)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.Contains(t, err.Error(), "Kopi Gayo")

	assert.Equal(t, KindNotFound, KindOf(NotFoundf("order not found")))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
}
