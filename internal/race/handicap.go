package race

// Score bounds for a lane's effective score. Scores arrive from an external
// attribute system; everything in this package clamps rather than rejects
// them, which is the one place in the core where clamping is intentional.
const (
	MinScore = 1
	MaxScore = 10
)

// ClampScore forces a score into [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// HandicapBps maps an effective score to a speed multiplier in basis points:
// linear from minBps at score 1 up to exactly 10000 at score 10. The integer
// division floors intermediate steps, which both runtimes reproduce.
func HandicapBps(score, minBps int) int {
	score = ClampScore(score)
	return minBps + (score-MinScore)*(10000-minBps)/(MaxScore-MinScore)
}
