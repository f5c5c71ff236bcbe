package types

import "errors"

var (
	// ErrBalanceUnderflow is returned by Account.Debit when the debit
	// would take the balance below zero.
	ErrBalanceUnderflow = errors.New("types: balance underflow on debit")

	// ErrBalanceOverflow is returned by Account.Credit when the credit
	// would overflow 256 bits.
	ErrBalanceOverflow = errors.New("types: balance overflow on credit")
)
