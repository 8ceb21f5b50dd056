package flowsim

// summary.go holds RunSummary, an observer that keeps the totals of a run

import (
	"fmt"
	"strings"
	"sync"
)

// RunSummary counts packets by outcome and measures the lifetime of
// those that completed their round trip
type RunSummary struct {
	mu sync.Mutex

	Ticks     int64              `json:"ticks" yaml:"ticks"`
	Time      float64            `json:"time" yaml:"time"`
	Spawned   int                `json:"spawned" yaml:"spawned"`
	Completed int                `json:"completed" yaml:"completed"`
	Failed    map[FailReason]int `json:"failed" yaml:"failed"`
	PeakLive  int                `json:"peaklive" yaml:"peaklive"`

	// sum, min and max of the lifetimes of completed packets, in simulated ms
	RoundTripSum float64 `json:"roundtripsum" yaml:"roundtripsum"`
	RoundTripMin float64 `json:"roundtripmin" yaml:"roundtripmin"`
	RoundTripMax float64 `json:"roundtripmax" yaml:"roundtripmax"`
}

// CreateRunSummary is a constructor
func CreateRunSummary() *RunSummary {
	rs := new(RunSummary)
	rs.Failed = make(map[FailReason]int)
	return rs
}

// OnTick accumulates the outcome of a tick
func (rs *RunSummary) OnTick(rpt *TickReport) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.Ticks = rpt.Tick
	rs.Time = rpt.Time
	rs.Spawned += len(rpt.Spawned)
	rs.PeakLive = max(rs.PeakLive, rpt.Live)

	for _, pkt := range rpt.Retired {
		switch pkt.Status {
		case Completed:
			rs.Completed += 1
			rtt := rpt.Time - pkt.Timestamp
			if rs.Completed == 1 {
				rs.RoundTripMin, rs.RoundTripMax = rtt, rtt
			} else {
				rs.RoundTripMin = min(rs.RoundTripMin, rtt)
				rs.RoundTripMax = max(rs.RoundTripMax, rtt)
			}
			rs.RoundTripSum += rtt
		case Failed:
			rs.Failed[pkt.FailReason] += 1
		}
	}
}

// OnReset zeroes the totals
func (rs *RunSummary) OnReset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.Ticks, rs.Time, rs.Spawned, rs.Completed, rs.PeakLive = 0, 0.0, 0, 0, 0
	rs.RoundTripSum, rs.RoundTripMin, rs.RoundTripMax = 0.0, 0.0, 0.0
	rs.Failed = make(map[FailReason]int)
}

// TotalFailed is the number of packets that failed, for any reason
func (rs *RunSummary) TotalFailed() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	total := 0
	for _, cnt := range rs.Failed {
		total += cnt
	}
	return total
}

// MeanRoundTrip is the mean lifetime of completed packets, zero if none completed
func (rs *RunSummary) MeanRoundTrip() float64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.Completed == 0 {
		return 0.0
	}
	return roundFloat(rs.RoundTripSum/float64(rs.Completed), 3)
}

// String renders the summary for the CLI
func (rs *RunSummary) String() string {
	mean := rs.MeanRoundTrip()
	failed := rs.TotalFailed()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	var sb strings.Builder
	fmt.Fprintf(&sb, "ticks %d, simulated %.0fms\n", rs.Ticks, rs.Time)
	fmt.Fprintf(&sb, "spawned %d, completed %d, failed %d, peak live %d\n", rs.Spawned, rs.Completed, failed, rs.PeakLive)
	for _, reason := range failReasons {
		if rs.Failed[reason] > 0 {
			fmt.Fprintf(&sb, "  failed (%s) %d\n", reason, rs.Failed[reason])
		}
	}
	if rs.Completed > 0 {
		fmt.Fprintf(&sb, "round trip mean %.1fms, min %.0fms, max %.0fms\n", mean, rs.RoundTripMin, rs.RoundTripMax)
	}
	return sb.String()
}
