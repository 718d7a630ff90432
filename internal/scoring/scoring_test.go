package scoring

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/account-health/internal/account"
)

func testRecord(id string, arr, engagement, sentiment, support float64, days int) account.Record {
	return account.Record{
		AccountID:            id,
		Industry:             "SaaS",
		ARR:                  account.Float(arr),
		ProductEngagement:    account.Float(engagement),
		Sentiment:            account.Float(sentiment),
		SupportVolume:        account.Float(support),
		DaysSinceLastContact: account.Int(days),
		RenewalDate:          account.Date(2027, time.January, 15),
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestWeightedSum(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name      string
		pillars   [3]float64
		wantScore float64
		wantBand  Band
	}{
		{"engagement only", [3]float64{100, 0, 0}, 40.0, BandAtRisk},
		{"sentiment only", [3]float64{0, 100, 0}, 30.0, BandCritical},
		{"support only", [3]float64{0, 0, 100}, 30.0, BandCritical},
		{"mixed", [3]float64{80, 60, 50}, 65.0, BandAtRisk},
		{"all max", [3]float64{100, 100, 100}, 100.0, BandHealthy},
		{"all zero", [3]float64{0, 0, 0}, 0.0, BandCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Score(testRecord("A", 1000, tt.pillars[0], tt.pillars[1], tt.pillars[2], 10))
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, res.Score, 1e-9)
			assert.Equal(t, tt.wantBand, res.Band)
		})
	}
}

func TestBandThresholds(t *testing.T) {
	calc, err := NewCalculator(DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, BandHealthy, calc.Band(70))
	assert.Equal(t, BandAtRisk, calc.Band(69.999))
	assert.Equal(t, BandAtRisk, calc.Band(40))
	assert.Equal(t, BandCritical, calc.Band(39.999))
	assert.Equal(t, BandHealthy, calc.Band(100))
	assert.Equal(t, BandCritical, calc.Band(0))
}

func TestScoreOnThresholdKeepsUpperBand(t *testing.T) {
	e := newTestEngine(t)

	// Every integer pillar triple whose exact weighted score is 40 or 70.
	tests := []struct {
		weighted int
		want     Band
	}{
		{400, BandAtRisk},
		{700, BandHealthy},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("score %d", tt.weighted/10), func(t *testing.T) {
			checked := 0
			for a := 0; a <= 100; a++ {
				for b := 0; b <= 100; b++ {
					rest := tt.weighted - 4*a - 3*b
					if rest < 0 || rest%3 != 0 || rest/3 > 100 {
						continue
					}
					c := rest / 3
					res, err := e.Score(testRecord("A", 1000, float64(a), float64(b), float64(c), 10))
					require.NoError(t, err)
					if !assert.Equal(t, float64(tt.weighted)/10, res.Score, "pillars (%d,%d,%d)", a, b, c) ||
						!assert.Equal(t, tt.want, res.Band, "pillars (%d,%d,%d)", a, b, c) {
						return
					}
					checked++
				}
			}
			assert.Positive(t, checked)
		})
	}
}

func TestThresholdScoreGetsUpperBandPlaybook(t *testing.T) {
	e := newTestEngine(t)

	// 0.4*1 + 0.3*96 + 0.3*36 sums to 39.999999999999993 in raw float64.
	res, err := e.Score(testRecord("A", 1_000_000, 1, 96, 36, 10))
	require.NoError(t, err)
	assert.Equal(t, 40.0, res.Score)
	assert.Equal(t, BandAtRisk, res.Band)
	assert.Equal(t, PlaybookStrategySession, res.Playbook)
}

func TestScoreCopiesNameAndTier(t *testing.T) {
	rec := testRecord("A", 1000, 80, 80, 80, 5)
	rec.Name = "Acme"
	rec.Tier = "Enterprise"

	res, err := newTestEngine(t).Score(rec)
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.Name)
	assert.Equal(t, "Enterprise", res.Tier)
}

func TestScoreStaysInRange(t *testing.T) {
	e := newTestEngine(t)
	for engagement := 0.0; engagement <= 100; engagement += 12.5 {
		for sentiment := 0.0; sentiment <= 100; sentiment += 25 {
			for support := 0.0; support <= 100; support += 20 {
				res, err := e.Score(testRecord("A", 1, engagement, sentiment, support, 0))
				require.NoError(t, err)
				assert.GreaterOrEqual(t, res.Score, 0.0)
				assert.LessOrEqual(t, res.Score, 100.0)
				assert.Contains(t, Bands, res.Band)
				assert.Contains(t, Playbooks, res.Playbook)
			}
		}
	}
}

func TestInputPolicy(t *testing.T) {
	rec := testRecord("OUT", 1000, 120, 50, -10, 5)

	t.Run("reject", func(t *testing.T) {
		e := newTestEngine(t)
		_, err := e.Score(rec)
		var invalid *InvalidInputError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, account.FieldProductEngagement, invalid.Field)
		assert.Equal(t, 120.0, invalid.Value)
		assert.Equal(t, KindInvalidInput, ErrorKind(err))
	})

	t.Run("clamp", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Policy = PolicyClamp
		e, err := NewEngine(cfg)
		require.NoError(t, err)

		res, err := e.Score(rec)
		require.NoError(t, err)
		// 0.4*100 + 0.3*50 + 0.3*0
		assert.InDelta(t, 55.0, res.Score, 1e-9)
		assert.Equal(t, []string{account.FieldProductEngagement, account.FieldSupportVolume}, res.Clamped)
	})

	t.Run("negative arr always rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Policy = PolicyClamp
		e, err := NewEngine(cfg)
		require.NoError(t, err)

		_, err = e.Score(testRecord("NEG", -1, 50, 50, 50, 5))
		var invalid *InvalidInputError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, account.FieldARR, invalid.Field)
	})

	t.Run("negative days rejected", func(t *testing.T) {
		e := newTestEngine(t)
		_, err := e.Score(testRecord("NEG", 10, 50, 50, 50, -3))
		var invalid *InvalidInputError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, account.FieldDaysSinceLastContact, invalid.Field)
	})
}

func TestPlaybookBoundaries(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		rec  account.Record
		want Playbook
	}{
		// score 20 -> Critical
		{"critical at high value boundary", testRecord("C1", 250_000, 20, 20, 20, 10), PlaybookExecutiveSponsorCall},
		{"critical just below high value", testRecord("C2", 249_999, 20, 20, 20, 10), PlaybookRiskMitigationPlan},
		// score 90 -> Healthy
		{"healthy contacted 90 days ago", testRecord("H1", 10_000, 90, 90, 90, 90), PlaybookValueRealizationReport},
		{"healthy contacted 91 days ago", testRecord("H2", 10_000, 90, 90, 90, 91), PlaybookStrategySession},
		// score 50 -> At Risk
		{"at risk recently contacted", testRecord("R1", 500_000, 50, 50, 50, 1), PlaybookStrategySession},
		{"critical high value silent", testRecord("C3", 300_000, 10, 10, 10, 200), PlaybookExecutiveSponsorCall},
		{"critical low value silent", testRecord("C4", 20_000, 10, 10, 10, 200), PlaybookRiskMitigationPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Score(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Playbook)
			assert.NotEmpty(t, res.Rule)
		})
	}
}

func TestSelectorRequiresRuleFields(t *testing.T) {
	sel, err := NewSelector(DefaultRules(DefaultConfig()))
	require.NoError(t, err)

	rec := testRecord("X", 1, 1, 1, 1, 1)
	rec.ARR = nil
	_, _, err = sel.Select(rec, BandCritical)
	var incomplete *IncompleteRecordError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{account.FieldARR}, incomplete.Fields)

	rec = testRecord("Y", 1, 1, 1, 1, 1)
	rec.DaysSinceLastContact = nil
	_, _, err = sel.Select(rec, BandHealthy)
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{account.FieldDaysSinceLastContact}, incomplete.Fields)
}

func TestNewSelectorValidation(t *testing.T) {
	_, err := NewSelector(nil)
	assert.Error(t, err)

	always := func(Facts) bool { return true }
	_, err = NewSelector([]Rule{{Name: "a", Playbook: PlaybookStrategySession, Match: always}})
	assert.Error(t, err, "no trailing catch-all")

	_, err = NewSelector([]Rule{
		{Name: "catch", Playbook: PlaybookStrategySession},
		{Name: "late", Playbook: PlaybookRiskMitigationPlan, Match: always},
	})
	assert.Error(t, err, "catch-all before another rule")

	_, err = NewSelector([]Rule{{Name: "empty"}})
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"weights do not sum to one", func(c *Config) { c.Weights.Sentiment = 0.35 }, "weights"},
		{"negative weight", func(c *Config) {
			c.Weights.ProductEngagement = 1.2
			c.Weights.Sentiment = -0.5
		}, "weights.sentiment"},
		{"non-monotonic thresholds", func(c *Config) { c.Thresholds.AtRisk = 70 }, "thresholds"},
		{"thresholds inverted", func(c *Config) {
			c.Thresholds.Healthy = 40
			c.Thresholds.AtRisk = 70
		}, "thresholds"},
		{"healthy above 100", func(c *Config) { c.Thresholds.Healthy = 120 }, "thresholds"},
		{"missing policy", func(c *Config) { c.Policy = "" }, "policy"},
		{"unknown policy", func(c *Config) { c.Policy = "ignore" }, "policy"},
		{"negative high value", func(c *Config) { c.HighValueARR = -1 }, "high_value_arr"},
		{"negative silent days", func(c *Config) { c.SilentChurnDays = -1 }, "silent_churn_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewEngine(cfg)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Equal(t, KindConfiguration, ErrorKind(err))
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestScoreBatchIsolatesBadRecords(t *testing.T) {
	e := newTestEngine(t)

	missing := testRecord("B", 100, 50, 50, 50, 10)
	missing.Sentiment = nil

	records := []account.Record{
		testRecord("A", 100, 90, 90, 90, 10),
		missing,
		testRecord("C", 100, 10, 10, 10, 10),
		testRecord("D", 100, 150, 10, 10, 10),
	}

	batch, err := e.ScoreBatch(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, batch.Results, 2)
	assert.Equal(t, "A", batch.Results[0].Result.AccountID)
	assert.Equal(t, "C", batch.Results[1].Result.AccountID)

	require.Len(t, batch.Skipped, 2)
	assert.Equal(t, 1, batch.Skipped[0].Index)
	assert.Equal(t, "B", batch.Skipped[0].AccountID)
	assert.Equal(t, KindIncompleteRecord, batch.Skipped[0].Kind)
	var incomplete *IncompleteRecordError
	require.True(t, errors.As(batch.Skipped[0].Err, &incomplete))
	assert.Equal(t, []string{account.FieldSentiment}, incomplete.Fields)

	assert.Equal(t, "D", batch.Skipped[1].AccountID)
	assert.Equal(t, KindInvalidInput, batch.Skipped[1].Kind)
}

func TestScoreBatchSkipsDuplicates(t *testing.T) {
	e := newTestEngine(t)
	batch, err := e.ScoreBatch(context.Background(), []account.Record{
		testRecord("A", 100, 90, 90, 90, 10),
		testRecord("A", 200, 10, 10, 10, 10),
	})
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	require.Len(t, batch.Skipped, 1)
	assert.Equal(t, 1, batch.Skipped[0].Index)
	assert.Equal(t, KindInvalidInput, batch.Skipped[0].Kind)
	assert.Contains(t, batch.Skipped[0].Reason, "duplicate of record 0")
}

func TestScoreBatchDuplicateOfInvalidRecord(t *testing.T) {
	e := newTestEngine(t)
	invalid := testRecord("A", 100, 150, 90, 90, 10)
	batch, err := e.ScoreBatch(context.Background(), []account.Record{
		invalid,
		testRecord("A", 200, 50, 50, 50, 10),
	})
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
	require.Len(t, batch.Skipped, 2)
	assert.Equal(t, KindInvalidInput, batch.Skipped[0].Kind)
	assert.Contains(t, batch.Skipped[0].Reason, "outside [0,100]")
	assert.Equal(t, 1, batch.Skipped[1].Index)
	assert.Contains(t, batch.Skipped[1].Reason, "duplicate of record 0")
}

func TestScoreBatchDeterministic(t *testing.T) {
	records := make([]account.Record, 0, 200)
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("ACC-%03d", i)
		records = append(records, testRecord(id, float64(i*5000), float64(i%101), float64((i*7)%101), float64((i*13)%101), i%180))
	}

	sequential := DefaultConfig()
	sequential.Workers = 0
	seqEngine, err := NewEngine(sequential)
	require.NoError(t, err)
	parallel := DefaultConfig()
	parallel.Workers = 8
	parEngine, err := NewEngine(parallel)
	require.NoError(t, err)

	want, err := seqEngine.ScoreBatch(context.Background(), records)
	require.NoError(t, err)
	for run := 0; run < 3; run++ {
		got, err := parEngine.ScoreBatch(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestScoreBatchCanceled(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ScoreBatch(ctx, []account.Record{testRecord("A", 1, 1, 1, 1, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCustomRules(t *testing.T) {
	rules := []Rule{
		{Name: "whale", Playbook: PlaybookExecutiveSponsorCall, Match: func(f Facts) bool { return f.ARR > 1_000_000 }},
		{Name: "rest", Playbook: PlaybookValueRealizationReport},
	}
	e, err := NewEngineWithRules(DefaultConfig(), rules)
	require.NoError(t, err)

	res, err := e.Score(testRecord("W", 2_000_000, 100, 100, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, PlaybookExecutiveSponsorCall, res.Playbook)
	assert.Equal(t, "whale", res.Rule)
}
