package withdrawal

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")
	ErrAmountPrecision   = errors.New("amount has more than two decimal places")
	ErrInsufficientFunds = errors.New("amount exceeds available balance")
	ErrNonPositiveNet    = errors.New("fee leaves nothing to withdraw")
	ErrOutsideWindow     = errors.New("withdrawals are not open right now")
	ErrInvalidTransition = errors.New("invalid withdrawal form transition")
)

// Quote is a withdrawal that passed every gate.
type Quote struct {
	Amount     decimal.Decimal `json:"amount"`
	FeePercent decimal.Decimal `json:"feePercent"`
	Fee        decimal.Decimal `json:"fee"`
	Net        decimal.Decimal `json:"net"`
	ScheduleID int64           `json:"scheduleId,omitempty"`
}

// AmountScale is the number of decimal places balances are kept in.
const AmountScale = 2

// ValidAmountScale reports whether amount fits in AmountScale decimal places.
func ValidAmountScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(AmountScale))
}

// Validate applies the submission gates in order: positive amount, amount
// in cents, amount within balance, positive net after fee, open window.
func Validate(amount, balance decimal.Decimal, eligibility Result) (Quote, error) {
	fee := ApplyFee(amount, eligibility.ActiveFeePercent)
	q := Quote{
		Amount:     amount,
		FeePercent: eligibility.ActiveFeePercent,
		Fee:        fee.FeeAmount,
		Net:        fee.NetAmount,
		ScheduleID: eligibility.ActiveScheduleID,
	}

	switch {
	case !amount.IsPositive():
		return q, ErrNonPositiveAmount
	case !ValidAmountScale(amount):
		return q, ErrAmountPrecision
	case amount.GreaterThan(balance):
		return q, ErrInsufficientFunds
	case !fee.NetAmount.IsPositive():
		return q, ErrNonPositiveNet
	case !eligibility.IsEligibleNow:
		return q, ErrOutsideWindow
	}
	return q, nil
}

type State int

const (
	StateIdle State = iota
	StateAmountEntered
	StateFeeComputed
	StateValidated
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAmountEntered:
		return "amount_entered"
	case StateFeeComputed:
		return "fee_computed"
	case StateValidated:
		return "validated"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Form tracks one withdrawal form session. It is not safe for concurrent use.
type Form struct {
	state       State
	balance     decimal.Decimal
	eligibility Result
	amount      decimal.Decimal
	fee         Fee
	quote       Quote
	invalid     error
}

func NewForm(balance decimal.Decimal, eligibility Result) *Form {
	return &Form{balance: balance, eligibility: eligibility}
}

func (f *Form) State() State { return f.state }

// Err is the reason the last validation failed, or nil.
func (f *Form) Err() error { return f.invalid }

// EnterAmount is allowed at any point before a successful submission.
func (f *Form) EnterAmount(amount decimal.Decimal) error {
	if f.state == StateSubmitted {
		return ErrInvalidTransition
	}
	f.amount = amount
	f.fee = Fee{}
	f.quote = Quote{}
	f.invalid = nil
	f.state = StateAmountEntered
	return nil
}

func (f *Form) ComputeFee() (Fee, error) {
	if f.state != StateAmountEntered {
		return Fee{}, ErrInvalidTransition
	}
	f.fee = ApplyFee(f.amount, f.eligibility.ActiveFeePercent)
	f.state = StateFeeComputed
	return f.fee, nil
}

// Validate moves to Validated either way; the returned error says whether
// the form is submittable.
func (f *Form) Validate() (Quote, error) {
	if f.state != StateFeeComputed {
		return Quote{}, ErrInvalidTransition
	}
	f.quote, f.invalid = Validate(f.amount, f.balance, f.eligibility)
	f.state = StateValidated
	return f.quote, f.invalid
}

// Submit hands a valid quote to persist. On failure the form returns to
// AmountEntered so the member can retry with the same or another amount.
func (f *Form) Submit(ctx context.Context, persist func(context.Context, Quote) error) error {
	if f.state != StateValidated {
		return ErrInvalidTransition
	}
	if f.invalid != nil {
		return f.invalid
	}
	if err := persist(ctx, f.quote); err != nil {
		f.state = StateAmountEntered
		return err
	}
	f.state = StateSubmitted
	return nil
}
