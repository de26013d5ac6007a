package domain

import "github.com/shopspring/decimal"

// Account 內部錢包帳戶，整個程序只有一個，生命週期與程序相同
type Account struct {
	ID      int64
	Balance decimal.Decimal
}

func NewAccount(id int64, balance decimal.Decimal) *Account {
	return &Account{
		ID:      id,
		Balance: balance,
	}
}

// Debit 扣款
func (a *Account) Debit(amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	if a.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Credit 補回 (只作為補償使用，不對外開放存款)
func (a *Account) Credit(amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	a.Balance = a.Balance.Add(amount)
	return nil
}
