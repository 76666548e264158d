package ingest

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mpislabs/draftflow/pkg/core"
)

// ChannelSummary counts outcomes for one channel.
type ChannelSummary struct {
	Count   int `json:"count"`
	OK      int `json:"ok"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (s *ChannelSummary) add(o core.SourceOutcome) {
	s.Count++
	switch {
	case o == core.OutcomeOK:
		s.OK++
	case o.Failed():
		s.Failed++
	default:
		s.Skipped++
	}
}

// Summary aggregates a batch of ingestion results.
type Summary struct {
	Total    ChannelSummary                   `json:"total"`
	Channels map[core.Channel]*ChannelSummary `json:"channels"`
}

// Summarize counts results per channel.
func Summarize(results []*Result) Summary {
	s := Summary{Channels: make(map[core.Channel]*ChannelSummary)}
	for _, r := range results {
		if r == nil {
			continue
		}
		cs, ok := s.Channels[r.Channel]
		if !ok {
			cs = &ChannelSummary{}
			s.Channels[r.Channel] = cs
		}
		cs.add(r.Outcome)
		s.Total.add(r.Outcome)
	}
	return s
}

// Details flattens the summary for audit records.
func (s Summary) Details() map[string]any {
	channels := make([]string, 0, len(s.Channels))
	for ch := range s.Channels {
		channels = append(channels, string(ch))
	}
	sort.Strings(channels)

	out := map[string]any{
		"count":   s.Total.Count,
		"ok":      s.Total.OK,
		"failed":  s.Total.Failed,
		"skipped": s.Total.Skipped,
	}
	for _, ch := range channels {
		cs := s.Channels[core.Channel(ch)]
		out[ch] = map[string]int{"count": cs.Count, "ok": cs.OK, "failed": cs.Failed, "skipped": cs.Skipped}
	}
	return out
}

// IngestAll ingests candidates concurrently. Results keep the order of
// candidates. The first storage error cancels the remaining work.
func (i *Ingestor) IngestAll(ctx context.Context, jobID, ownerEntityID string, candidates []Candidate) ([]*Result, Summary, error) {
	results := make([]*Result, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for idx, c := range candidates {
		g.Go(func() error {
			res, err := i.Ingest(gctx, jobID, ownerEntityID, c)
			if err != nil {
				return err
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, Summarize(results), err
	}
	return results, Summarize(results), nil
}
