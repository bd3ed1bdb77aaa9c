package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

type Role string

const (
	RoleBuyer  Role = "user"
	RoleSeller Role = "seller"
)

func (r Role) Valid() bool { return r == RoleBuyer || r == RoleSeller }

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

// Per-role allow-list of requestable target statuses. Anything outside
// the list is a validation error, not a state-machine conflict.
var roleStatuses = map[Role]map[Status]bool{
	RoleSeller: {StatusConfirmed: true, StatusShipped: true, StatusCancelled: true},
	RoleBuyer:  {StatusDelivered: true, StatusCancelled: true},
}

func RoleAllowsStatus(r Role, s Status) bool {
	return roleStatuses[r][s]
}

var paymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending: {PaymentSuccess: true, PaymentFailed: true},
	PaymentSuccess: {},
	PaymentFailed:  {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return paymentNext[from][to]
}

// Change is the combined outcome of a single lifecycle transition.
// Release is true iff the transition is the first one into a terminal
// failure (cancelled order or failed payment), i.e. the one that must
// restore reserved stock.
type Change struct {
	Status        Status
	PaymentStatus PaymentStatus
	Release       bool
}

// ApplyStatusChange validates an order-status transition and derives the
// paired payment-status change. Cancelling an order with payment still
// pending also fails the payment.
func ApplyStatusChange(cur Status, curPay PaymentStatus, target Status) (Change, error) {
	if !CanTransition(cur, target) {
		return Change{}, Conflictf("order status %s cannot change to %s", cur, target)
	}
	ch := Change{Status: target, PaymentStatus: curPay}
	if target == StatusCancelled {
		ch.Release = true
		if curPay == PaymentPending {
			ch.PaymentStatus = PaymentFailed
		}
	}
	return ch, nil
}

// ApplyPaymentChange validates a payment-status transition. A failed
// payment forces the order into cancelled in the same change.
func ApplyPaymentChange(cur Status, curPay PaymentStatus, target PaymentStatus) (Change, error) {
	if curPay == target {
		return Change{}, Conflictf("payment status already %s", target)
	}
	if !CanTransitionPayment(curPay, target) {
		return Change{}, Conflictf("payment status %s cannot change to %s", curPay, target)
	}
	ch := Change{Status: cur, PaymentStatus: target}
	if target == PaymentFailed {
		ch.Status = StatusCancelled
		ch.Release = true
	}
	return ch, nil
}

// MapGatewayStatus translates the gateway's transaction_status vocabulary
// into the payment axis: capture/settlement mean money in, pending stays
// pending, everything else (deny, cancel, expire, failure) is failed.
func MapGatewayStatus(transactionStatus string) PaymentStatus {
	switch transactionStatus {
	case "capture", "settlement":
		return PaymentSuccess
	case "pending":
		return PaymentPending
	default:
		return PaymentFailed
	}
}
