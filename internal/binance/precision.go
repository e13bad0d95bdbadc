package binance

import "strings"

// PrecisionFromStep derives the decimal count from a tickSize/stepSize
// string: the position of the first non-zero digit after the decimal point,
// 0 when there is no fractional part. "0.0010" → 3, "1" → 0, "0.00100" → 3.
// This mirrors the exchange's own string form; IEEE round-tripping would
// misreport steps like 0.1.
func PrecisionFromStep(step string) int32 {
	dot := strings.IndexByte(step, '.')
	if dot < 0 {
		return 0
	}
	for i := dot + 1; i < len(step); i++ {
		if step[i] != '0' {
			return int32(i - dot)
		}
	}
	return 0
}
