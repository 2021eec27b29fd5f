package cost

// MicroUSD is one millionth of a US dollar. All ledger arithmetic happens in
// integer micro-USD so aggregate queries are exact.
type MicroUSD = int64

// Compute returns the billed cost of a call given catalog rates expressed in
// micro-USD per million tokens. Each side is rounded half-to-even so repeated
// small calls do not drift systematically up or down.
func Compute(inputTokens, outputTokens int, inputRatePerMTok, outputRatePerMTok int64) MicroUSD {
	return scale(int64(inputTokens), inputRatePerMTok) + scale(int64(outputTokens), outputRatePerMTok)
}

// scale computes tokens*rate/1e6 with banker's rounding.
func scale(tokens, ratePerMTok int64) int64 {
	if tokens <= 0 || ratePerMTok <= 0 {
		return 0
	}
	const mtok = 1_000_000
	product := tokens * ratePerMTok
	quo := product / mtok
	rem := product % mtok
	switch {
	case rem*2 < mtok:
		return quo
	case rem*2 > mtok:
		return quo + 1
	default:
		// Exactly half: round to even.
		if quo%2 == 0 {
			return quo
		}
		return quo + 1
	}
}
