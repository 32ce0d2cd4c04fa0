package engine

import (
	"errors"
	"fmt"
)

// Global error declarations.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNoValidSymbols = errors.New("no symbol produced a backtest result")

	NoOpenPositionErr = errors.New("no open position to close")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
