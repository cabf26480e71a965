package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const etherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)

// ErrInvalidAmount is returned for prices that are not non-negative decimals
var ErrInvalidAmount = errors.New("invalid ether amount")

// ParseEther converts a decimal ether string such as "0.1" into wei
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && (!hasDot || frac == "") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > etherDecimals {
		return nil, fmt.Errorf("%w: more than %d decimals", ErrInvalidAmount, etherDecimals)
	}

	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", etherDecimals-len(frac))

	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return wei, nil
}

// FormatEther renders wei as a decimal ether string, always with a
// fractional part ("1.0", "0.1")
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}

	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)
	whole, rem := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))

	frac := rem.String()
	frac = strings.Repeat("0", etherDecimals-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		frac = "0"
	}

	out := whole.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
