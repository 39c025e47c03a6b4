package api

// EngineVersion identifies this settlement implementation in responses so a
// replayer can flag which build it disagreed with.
const EngineVersion = "derby-go-1.0.0"

// Error types used in structured error responses.
const (
	ErrTypeValidation = "validation_error"
	ErrTypeNotFound   = "not_found"
	ErrTypeInternal   = "internal_error"
	ErrTypeNoTable    = "table_unavailable"
)

// EngineError is the structured error payload.
type EngineError struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// SimulateRequest asks for one authoritative race run.
type SimulateRequest struct {
	Seed   string `json:"seed"`
	Scores []int  `json:"scores"`
}

// SimulateResponse carries the winner and the full per-tick trace: settlement
// consumes the winner, renderers consume the trace.
type SimulateResponse struct {
	Winner        int     `json:"winner"`
	FinishOrder   []int   `json:"finish_order"`
	Ticks         [][]int `json:"ticks"`
	TickCount     int     `json:"tick_count"`
	EngineVersion string  `json:"engine_version"`
}

// VerifyRequest asks both runtimes to run the same race.
type VerifyRequest struct {
	Seed   string `json:"seed"`
	Scores []int  `json:"scores"`
}

// VerifyResponse surfaces both winners; a mismatch is data, not a 500.
type VerifyResponse struct {
	Seed                string `json:"seed"`
	AuthoritativeWinner int    `json:"authoritative_winner"`
	ReplayWinner        int    `json:"replay_winner"`
	WinnerMatch         bool   `json:"winner_match"`
	TraceMatch          bool   `json:"trace_match"`
	EngineVersion       string `json:"engine_version"`
}

// OddsRequest asks for the precomputed win probabilities of a lineup, scores
// in lane order.
type OddsRequest struct {
	Scores []int `json:"scores"`
}

// LaneOdds is one lane's quote: estimated win probability in basis points
// and the implied fair payout multiplier.
type LaneOdds struct {
	Lane              int    `json:"lane"`
	Score             int    `json:"score"`
	WinProbabilityBps int    `json:"win_probability_bps"`
	ImpliedMultiplier string `json:"implied_multiplier"`
}

// OddsResponse quotes a full lineup.
type OddsResponse struct {
	Lanes         []LaneOdds `json:"lanes"`
	TableIndex    int        `json:"table_index"`
	EngineVersion string     `json:"engine_version"`
}

// TableInfo describes the loaded probability table.
type TableInfo struct {
	Lanes          int `json:"lanes"`
	MinHandicapBps int `json:"min_handicap_bps"`
	SpeedRange     int `json:"speed_range"`
	TrackLength    int `json:"track_length"`
	MaxTicks       int `json:"max_ticks"`
	Entries        int `json:"entries"`
	ShardEntries   int `json:"shard_entries"`
}
