package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/raceforge/lane-derby-go/internal/engine"
	"github.com/raceforge/lane-derby-go/internal/probtable"
	"github.com/raceforge/lane-derby-go/internal/race"
)

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "invalid JSON body", nil)
		return
	}

	seed, err := engine.ParseSeed(req.Seed)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, err.Error(), nil)
		return
	}
	if len(req.Scores) != s.cfg.Lanes {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "wrong number of scores",
			map[string]any{"want": s.cfg.Lanes, "got": len(req.Scores)})
		return
	}

	result, err := race.Simulate(seed, req.Scores, s.cfg)
	if err != nil {
		s.logger.Printf("simulate failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, ErrTypeInternal, err.Error(), nil)
		return
	}

	s.writeJSON(w, http.StatusOK, SimulateResponse{
		Winner:        result.Winner,
		FinishOrder:   result.FinishOrder,
		Ticks:         result.Ticks,
		TickCount:     len(result.Ticks),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "invalid JSON body", nil)
		return
	}

	seed, err := engine.ParseSeed(req.Seed)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, err.Error(), nil)
		return
	}
	if len(req.Scores) != s.cfg.Lanes {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "wrong number of scores",
			map[string]any{"want": s.cfg.Lanes, "got": len(req.Scores)})
		return
	}

	_, report, err := s.replayer.Verify(seed, req.Scores, s.cfg)
	if err != nil {
		s.logger.Printf("verify failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, ErrTypeInternal, err.Error(), nil)
		return
	}
	if !report.WinnerMatch || !report.TraceMatch {
		// Loud in the logs, but still a 200: disagreement between runtimes
		// is exactly what this endpoint exists to expose.
		s.logger.Printf("RUNTIME MISMATCH seed=%s authoritative=%d replay=%d trace_match=%v",
			report.Seed, report.AuthoritativeWinner, report.ReplayWinner, report.TraceMatch)
	}

	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Seed:                report.Seed,
		AuthoritativeWinner: report.AuthoritativeWinner,
		ReplayWinner:        report.ReplayWinner,
		WinnerMatch:         report.WinnerMatch,
		TraceMatch:          report.TraceMatch,
		EngineVersion:       EngineVersion,
	})
}

func (s *Server) handleOdds(w http.ResponseWriter, r *http.Request) {
	if s.tables == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrTypeNoTable, "no probability table deployed", nil)
		return
	}

	var req OddsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "invalid JSON body", nil)
		return
	}
	if len(req.Scores) != s.cfg.Lanes {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "wrong number of scores",
			map[string]any{"want": s.cfg.Lanes, "got": len(req.Scores)})
		return
	}

	probs, err := s.tables.LookupScores(req.Scores)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, err.Error(), nil)
		return
	}

	sorted := make([]int, len(req.Scores))
	for i, score := range req.Scores {
		sorted[i] = race.ClampScore(score)
	}
	sort.Ints(sorted)
	index, err := probtable.Index(sorted)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, ErrTypeInternal, err.Error(), nil)
		return
	}

	lanes := make([]LaneOdds, len(probs))
	for lane, bps := range probs {
		lanes[lane] = LaneOdds{
			Lane:              lane,
			Score:             req.Scores[lane],
			WinProbabilityBps: bps,
			ImpliedMultiplier: impliedMultiplier(bps),
		}
	}

	s.writeJSON(w, http.StatusOK, OddsResponse{
		Lanes:         lanes,
		TableIndex:    index,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleTableInfo(w http.ResponseWriter, r *http.Request) {
	if s.tables == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrTypeNoTable, "no probability table deployed", nil)
		return
	}
	h := s.tables.Header()
	s.writeJSON(w, http.StatusOK, TableInfo{
		Lanes:          h.Lanes,
		MinHandicapBps: h.MinHandicapBps,
		SpeedRange:     h.SpeedRange,
		TrackLength:    h.TrackLength,
		MaxTicks:       h.MaxTicks,
		Entries:        s.tables.Total(),
		ShardEntries:   h.EntryCount,
	})
}

// impliedMultiplier converts basis points into the fair payout multiplier
// 10000/bps, quoted to 4 decimal places truncated toward zero so the quote
// never overstates the payout.
func impliedMultiplier(bps int) string {
	return decimal.NewFromInt(10000).
		Div(decimal.NewFromInt(int64(bps))).
		Truncate(4).
		String()
}
