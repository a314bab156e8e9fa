package transformer

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
)

func coerceText(s string, _ schema.Type) (any, string, error) {
	return s, "", nil
}

func coerceInteger(s string, t schema.Type) (any, string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	bits := t.Bits
	if bits == 0 {
		bits = 64
	}
	if bits > 64 {
		return coerceHugeInt(s, bits, t.Unsigned)
	}
	if t.Unsigned {
		u, err := strconv.ParseUint(s, 10, bits)
		if err != nil {
			return nil, "", numError(err)
		}
		if bits == 64 {
			return u, "", nil
		}
		return int64(u), "", nil
	}
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return nil, "", numError(err)
	}
	return n, "", nil
}

// coerceHugeInt parses 128-bit integers (HUGEINT, UHUGEINT) into *big.Int.
func coerceHugeInt(s string, bits int, unsigned bool) (any, string, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, "", errors.New("not a number")
	}
	lo, hi := new(big.Int), new(big.Int).Lsh(big.NewInt(1), uint(bits))
	if !unsigned {
		hi.Rsh(hi, 1)
		lo.Neg(hi)
	}
	if n.Cmp(lo) < 0 || n.Cmp(hi) >= 0 {
		return nil, "", errors.New("value out of range")
	}
	return n, "", nil
}

func coerceReal(s string, t schema.Type) (any, string, error) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, "", numError(err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, "", errors.New("value is not finite")
	}
	if t.Precision > 0 {
		if limit := math.Pow10(t.Precision - t.Scale); math.Abs(f) >= limit {
			return f, fmt.Sprintf("value %s exceeds the declared precision of %s", s, declaredName(t)), nil
		}
	}
	return f, "", nil
}

func coerceBoolean(s string, _ schema.Type) (any, string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y":
		return true, "", nil
	case "false", "f", "0", "no", "n":
		return false, "", nil
	}
	return nil, "", errors.New("not a boolean")
}

func coerceDate(s string, _ schema.Type) (any, string, error) {
	d, err := NormalizeDate(s)
	if err != nil {
		return nil, "", err
	}
	return schema.Date(d), "", nil
}

func coerceTimestamp(s string, _ schema.Type) (any, string, error) {
	ts, err := NormalizeTimestamp(s)
	if err != nil {
		return nil, "", err
	}
	return schema.Timestamp(ts), "", nil
}

// numError strips strconv's function-name prefix.
func numError(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		if errors.Is(ne.Err, strconv.ErrRange) {
			return errors.New("value out of range")
		}
		return errors.New("not a number")
	}
	return err
}
