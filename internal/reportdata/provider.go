package reportdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/hyroxreport/internal/cache"
	"github.com/kiranshivaraju/hyroxreport/internal/results"
	"github.com/kiranshivaraju/hyroxreport/internal/stats"
	"github.com/kiranshivaraju/hyroxreport/internal/timeloss"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const historyLimit = 10

// Request identifies the athlete a report is generated for.
type Request struct {
	Season      int
	Location    string
	AthleteName string
	HeartRate   *HeartRate
}

// cohortBundle is the cached unit: cohort and top-decile statistics.
type cohortBundle struct {
	Cohort    stats.CohortStats  `json:"cohort"`
	TopDecile *stats.CohortStats `json:"top_decile,omitempty"`
}

// Provider loads results and derives every ReportData field.
type Provider struct {
	repo      results.Repository
	cache     cache.Cache
	agg       *stats.Aggregator
	analyzer  *timeloss.Analyzer
	cohortTTL time.Duration
}

type ProviderOption func(*Provider)

func WithCohortTTL(ttl time.Duration) ProviderOption {
	return func(p *Provider) { p.cohortTTL = ttl }
}

func WithAggregator(a *stats.Aggregator) ProviderOption {
	return func(p *Provider) { p.agg = a }
}

func WithAnalyzer(a *timeloss.Analyzer) ProviderOption {
	return func(p *Provider) { p.analyzer = a }
}

// NewProvider creates a Provider. c may be nil, disabling the cohort cache.
func NewProvider(repo results.Repository, c cache.Cache, opts ...ProviderOption) *Provider {
	p := &Provider{
		repo:      repo,
		cache:     c,
		agg:       stats.New(),
		analyzer:  timeloss.New(),
		cohortTTL: 6 * time.Hour,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Prepare computes the report data for req. It fails only when the athlete's
// own result cannot be loaded; any other failure is recorded in Errors.
func (p *Provider) Prepare(ctx context.Context, req Request) (*ReportData, error) {
	d := &ReportData{
		Season:      req.Season,
		Location:    req.Location,
		AthleteName: req.AthleteName,
		Errors:      map[string]string{},
	}
	if req.HeartRate.Usable() {
		d.HeartRate = req.HeartRate
	}

	athlete, err := p.repo.FindAthlete(ctx, req.Season, req.Location, req.AthleteName)
	if err != nil {
		d.fail(TypeAthleteResult, err)
		return d, fmt.Errorf("load athlete result: %w", err)
	}
	d.Athlete = athlete

	race, err := p.repo.Race(ctx, req.Season, req.Location)
	if err != nil {
		d.fail(TypeDivisionStats, err)
		return d, nil
	}
	d.Race = derefAll(race)
	cohort := stats.Cohort(d.Race, athlete.Gender, athlete.Division)

	g, gctx := errgroup.WithContext(ctx)
	var history *AthleteHistory
	var historyErr error
	g.Go(func() error {
		history, historyErr = p.history(gctx, athlete.Name)
		return nil
	})

	bundle := p.cohortStats(ctx, req.Season, req.Location, athlete, d.Race)
	d.CohortStats = &bundle.Cohort
	d.TopDecile = bundle.TopDecile
	d.Comparison = p.agg.Compare(athlete, cohort, d.CohortStats)
	d.Ranking = p.agg.RankTotal(athlete, d.Race)
	d.Pacing = Pacing(athlete, cohort)
	d.Consistency = Consistency(athlete)
	if d.Consistency == nil {
		d.fail(TypePacingConsistency, errors.New("fewer than two recorded runs"))
	}
	d.Cohort = Peers(athlete, cohort)
	if d.Cohort == nil {
		d.fail(TypeCohortAnalysis, errors.New("athlete not ranked in cohort"))
	}
	d.Prediction = Predict(athlete)
	if d.Prediction == nil {
		d.fail(TypePredictionData, errors.New("no total time"))
	}
	loss := p.analyzer.Analyze(athlete, d.CohortStats)
	d.TimeLoss = &loss

	_ = g.Wait()
	if historyErr != nil {
		slog.Warn("athlete history unavailable", "athlete", athlete.Name, "error", historyErr)
		d.fail(TypeAthleteHistory, historyErr)
	}
	d.History = history

	slog.Info("report data prepared",
		"athlete", athlete.Name, "cohort_size", len(cohort), "data_errors", len(d.Errors))
	return d, nil
}

func (p *Provider) cohortStats(ctx context.Context, season int, location string, athlete *models.RaceResult, race []models.RaceResult) cohortBundle {
	var key string
	if p.cache != nil {
		if version, err := p.repo.RaceVersion(ctx, season, location); err == nil {
			key = cache.CohortStatsKey(season, location, athlete.Gender, athlete.Division, version)
			if raw, found, err := p.cache.Get(ctx, key); err == nil && found {
				var b cohortBundle
				if err := json.Unmarshal(raw, &b); err == nil {
					return b
				}
			}
		}
	}

	b := cohortBundle{Cohort: p.agg.CohortStats(race, athlete.Gender, athlete.Division)}
	if top := p.agg.TopDecileCohort(race, athlete.Gender, athlete.Division); len(top) > 0 {
		ts := p.agg.CohortStats(top, "", "")
		b.TopDecile = &ts
	}

	if key != "" {
		if raw, err := json.Marshal(b); err == nil {
			if err := p.cache.Set(ctx, key, raw, p.cohortTTL); err != nil {
				slog.Warn("failed to cache cohort stats", "key", key, "error", err)
			}
		}
	}
	return b
}

func (p *Provider) history(ctx context.Context, name string) (*AthleteHistory, error) {
	rows, err := p.repo.History(ctx, name, historyLimit)
	if err != nil {
		return nil, err
	}
	races := make([]HistoryRace, 0, len(rows))
	for _, r := range rows {
		t, ok := r.Value(models.FieldTotal)
		if !ok {
			continue
		}
		race, err := p.repo.Race(ctx, r.Season, r.Location)
		if err != nil {
			return nil, err
		}
		rank, total := DivisionRank(derefAll(race), name, r.Gender, r.Division)
		races = append(races, HistoryRace{
			Season: r.Season, Location: r.Location, Division: r.Division,
			TotalTime: t, DivisionRank: rank, ParticipantCount: total,
		})
	}
	return NewHistory(races), nil
}

func derefAll(rows []*models.RaceResult) []models.RaceResult {
	out := make([]models.RaceResult, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out
}
