package strategies

import (
	"fmt"

	"tradelab/internal/engine"
	"tradelab/types"
)

func window(params types.Params, name string, def int) (int, error) {
	v, err := params.Int(name, def)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", engine.ErrInvalidInput, err)
	}
	if v < 1 {
		return 0, fmt.Errorf("%w: %s must be at least 1, got %d", engine.ErrInvalidInput, name, v)
	}
	return v, nil
}

func ordered(shortName string, short int, longName string, long int) error {
	if short >= long {
		return fmt.Errorf("%w: %s (%d) must be less than %s (%d)", engine.ErrInvalidInput, shortName, short, longName, long)
	}
	return nil
}

func positive(params types.Params, name string, def float64) (float64, error) {
	v := params.Float(name, def)
	if !(v > 0) {
		return 0, fmt.Errorf("%w: %s must be positive, got %v", engine.ErrInvalidInput, name, v)
	}
	return v, nil
}

func percentile(name string, v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%w: %s must be within [0, 100], got %v", engine.ErrInvalidInput, name, v)
	}
	return nil
}
