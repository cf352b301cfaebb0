package ledger

// RoundInfo describes the round a height belongs to.
type RoundInfo struct {
	// Round is 1-based; height 0 (before genesis) is round 0.
	Round int64 `json:"round"`

	// RoundHeight is the first height of the round.
	RoundHeight int64 `json:"roundHeight"`

	// NextRound is Round+1.
	NextRound int64 `json:"nextRound"`

	// MaxDelegates is the number of blocks in the round.
	MaxDelegates int `json:"maxDelegates"`
}

// RoundCalculator maps heights to rounds. Implementations must be pure.
type RoundCalculator interface {
	RoundOf(height int64) RoundInfo
}

// FixedRounds is a RoundCalculator with a constant round size.
type FixedRounds struct {
	ActiveDelegates int
}

// RoundOf returns the round containing height.
func (f FixedRounds) RoundOf(height int64) RoundInfo {
	n := int64(f.ActiveDelegates)
	if n <= 0 || height <= 0 {
		return RoundInfo{Round: 0, RoundHeight: 0, NextRound: 1, MaxDelegates: f.ActiveDelegates}
	}
	round := (height-1)/n + 1
	return RoundInfo{
		Round:        round,
		RoundHeight:  (round-1)*n + 1,
		NextRound:    round + 1,
		MaxDelegates: f.ActiveDelegates,
	}
}

// IsNewRound reports whether height is the first block of its round.
func (f FixedRounds) IsNewRound(height int64) bool {
	info := f.RoundOf(height)
	return info.Round > 0 && info.RoundHeight == height
}
