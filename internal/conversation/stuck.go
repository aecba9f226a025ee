package conversation

import (
	"fmt"

	"github.com/jamiechicago312/agent-sdk/pkg/events"
)

// stuckWindow is how many identical repetitions count as stuck.
const stuckWindow = 4

// StuckDetector spots an agent looping without progress. All checks
// consider only events after the most recent user message, so a fresh
// user instruction resets the detector.
type StuckDetector struct {
	// Window is the repetition count that triggers detection.
	Window int
}

// NewStuckDetector returns a detector with the default window.
func NewStuckDetector() *StuckDetector {
	return &StuckDetector{Window: stuckWindow}
}

// IsStuck reports whether the tail of the log shows a loop: the last
// Window agent messages identical, the last Window action/observation
// pairs identical (error observations included), or the agent
// alternating between two states for at least 2*Window pairs.
func (d *StuckDetector) IsStuck(log []events.Event) bool {
	tail := sinceLastUserMessage(log)
	if d.repeatedMessages(tail) {
		return true
	}
	pairs := actionObservationPairs(tail)
	return d.repeatedPairs(pairs) || d.alternatingPairs(pairs)
}

func sinceLastUserMessage(log []events.Event) []events.Event {
	for i := len(log) - 1; i >= 0; i-- {
		e := log[i]
		if e.Kind == events.KindMessage && e.Source == events.SourceUser {
			return log[i+1:]
		}
	}
	return log
}

func (d *StuckDetector) repeatedMessages(tail []events.Event) bool {
	var texts []string
	for _, e := range tail {
		if e.Kind == events.KindMessage && e.Source == events.SourceAgent && e.Message != nil {
			texts = append(texts, e.Message.Text())
		}
	}
	if len(texts) < d.Window {
		return false
	}
	last := texts[len(texts)-d.Window:]
	for _, t := range last[1:] {
		if t != last[0] {
			return false
		}
	}
	return true
}

// actionObservationPairs fingerprints each action together with its
// matching observation. Unanswered actions are skipped.
func actionObservationPairs(tail []events.Event) []string {
	observations := map[string]*events.ObservationPayload{}
	for i := range tail {
		if tail[i].Kind == events.KindObservation && tail[i].Observation != nil {
			observations[tail[i].Observation.ToolCallID] = tail[i].Observation
		}
	}

	var pairs []string
	for _, e := range tail {
		if e.Kind != events.KindAction || e.Action == nil {
			continue
		}
		obs, ok := observations[e.Action.ToolCallID]
		if !ok {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s\x00%s\x00%s\x00%t",
			e.Action.ToolName, e.Action.Arguments, obs.Text(), obs.IsError))
	}
	return pairs
}

func (d *StuckDetector) repeatedPairs(pairs []string) bool {
	if len(pairs) < d.Window {
		return false
	}
	last := pairs[len(pairs)-d.Window:]
	for _, p := range last[1:] {
		if p != last[0] {
			return false
		}
	}
	return true
}

// alternatingPairs detects an A/B/A/B ping-pong over the last 2*Window
// pairs, with A and B distinct.
func (d *StuckDetector) alternatingPairs(pairs []string) bool {
	n := 2 * d.Window
	if len(pairs) < n {
		return false
	}
	last := pairs[len(pairs)-n:]
	a, b := last[0], last[1]
	if a == b {
		return false
	}
	for i, p := range last {
		if i%2 == 0 && p != a {
			return false
		}
		if i%2 == 1 && p != b {
			return false
		}
	}
	return true
}
