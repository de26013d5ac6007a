package domain

import "errors"

var (
	// ErrAmountMustBePositive 金額必須為正數
	ErrAmountMustBePositive = errors.New("amount must be positive")

	// ErrAmountPrecision 小數位數超過 MaxAmountScale
	ErrAmountPrecision = errors.New("amount has too many decimal places")

	// ErrAmountTooLarge 整數位數超過 MaxAmountIntegerDigits
	ErrAmountTooLarge = errors.New("amount is too large")

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidPhone 電話號碼為空或無法正規化
	ErrInvalidPhone = errors.New("phone is required")

	// ErrUnknownChannel 不支援的出款通道
	ErrUnknownChannel = errors.New("unknown payout channel")

	// ErrValidation 請求參數驗證失敗，實際原因以 %w 包在後面
	ErrValidation = errors.New("validation failed")

	// ErrWithdrawalsDisabled 出款功能已關閉
	ErrWithdrawalsDisabled = errors.New("withdrawals disabled")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")

	// ErrLedgerStopped LMAX 引擎已停止，無法再接收分錄
	ErrLedgerStopped = errors.New("ledger stopped")
)
