package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamguard/internal/ai"
	"scamguard/internal/config"
	"scamguard/internal/detection"
	"scamguard/internal/domain/models"
	"scamguard/internal/infrastructure/database/repository"
	"scamguard/pkg/logger"
)

type fakeSource struct {
	messages []models.Message
	err      error
	calls    int
}

func (s *fakeSource) FetchUnscanned(_ context.Context, _, _ time.Time) ([]models.Message, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.messages, nil
}

type fakeFlagStore struct {
	mu      sync.Mutex
	bySMS   map[uuid.UUID]*models.ScamFlag
	upserts int
	err     error
	forDate []*models.ScamFlag
}

func newFakeFlagStore() *fakeFlagStore {
	return &fakeFlagStore{bySMS: map[uuid.UUID]*models.ScamFlag{}}
}

func (s *fakeFlagStore) Upsert(_ context.Context, flag *models.ScamFlag) (*models.ScamFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.err != nil {
		return nil, s.err
	}
	stored := *flag
	if existing, ok := s.bySMS[flag.SMSID]; ok {
		stored.ID = existing.ID
	} else {
		stored.ID = uuid.New()
	}
	s.bySMS[flag.SMSID] = &stored
	return &stored, nil
}

func (s *fakeFlagStore) ListForDate(_ context.Context, _ time.Time) ([]*models.ScamFlag, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.forDate, nil
}

func (s *fakeFlagStore) get(smsID uuid.UUID) *models.ScamFlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bySMS[smsID]
}

type completion struct {
	scanned   int
	detected  int
	breakdown map[string]int
}

type fakeRunTracker struct {
	mu        sync.Mutex
	startErr  error
	started   []models.RunType
	completed map[uuid.UUID]completion
	failed    map[uuid.UUID]string
}

func newFakeRunTracker() *fakeRunTracker {
	return &fakeRunTracker{
		completed: map[uuid.UUID]completion{},
		failed:    map[uuid.UUID]string{},
	}
}

func (t *fakeRunTracker) Start(_ context.Context, runType models.RunType) (*models.DetectionRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startErr != nil {
		return nil, t.startErr
	}
	t.started = append(t.started, runType)
	return &models.DetectionRun{ID: uuid.New(), RunType: runType, Status: models.StatusRunning}, nil
}

func (t *fakeRunTracker) Complete(_ context.Context, id uuid.UUID, scanned, detected int, breakdown map[string]int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed[id] = completion{scanned, detected, breakdown}
	return nil
}

func (t *fakeRunTracker) Fail(_ context.Context, id uuid.UUID, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed[id] = errMsg
	return nil
}

func (t *fakeRunTracker) lastCompletion() (completion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.completed {
		return c, true
	}
	return completion{}, false
}

type fakeReportStore struct {
	mu      sync.Mutex
	byDate  map[string]*models.NightlyReport
	upserts int
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{byDate: map[string]*models.NightlyReport{}}
}

func (s *fakeReportStore) Upsert(_ context.Context, report *models.NightlyReport) (*models.NightlyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	stored := *report
	s.byDate[report.ReportDate.Format("2006-01-02")] = &stored
	return &stored, nil
}

type scriptedProvider struct {
	classify *ai.ClassifyResult
	err      error
	calls    int
}

func (p *scriptedProvider) Classify(_ context.Context, _ *ai.ClassifyRequest) (*ai.ClassifyResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.classify, nil
}

func (p *scriptedProvider) Summarize(_ context.Context, _ *ai.SummaryRequest) (*ai.SummaryResult, error) {
	return &ai.SummaryResult{Narrative: "scripted summary"}, nil
}

type deniedQuota struct{}

func (deniedQuota) Consume(_ context.Context) (bool, error) { return false, nil }

type testEnv struct {
	engine  *Engine
	source  *fakeSource
	flags   *fakeFlagStore
	runs    *fakeRunTracker
	reports *fakeReportStore
}

func testScanConfig() config.ScanConfig {
	return config.ScanConfig{
		PeriodicInterval: 15 * time.Minute,
		LookbackWindow:   time.Hour,
		Workers:          4,
		BatchSize:        10,
	}
}

func testAIReviewConfig() config.AIConfig {
	return config.AIConfig{
		Enabled:           true,
		Model:             "claude-haiku-20250306",
		Timeout:           time.Second,
		RequestsPerMinute: 6000,
		MaxReviewsPerRun:  100,
		MaxReviewsDaily:   20,
		EscalationLow:     40,
		EscalationHigh:    90,
	}
}

func newTestEnv(t *testing.T, reviewer *ai.Reviewer) *testEnv {
	t.Helper()
	log := logger.NewDefault()
	rules := detection.NewRuleSet(log)
	fusion := detection.NewFusion(config.FusionConfig{
		CriticalThreshold: 90, HighThreshold: 70, MediumThreshold: 40, FlagFloor: 20,
	})
	behavioral := detection.NewBehavioralDetector(config.BehavioralConfig{
		ShortMessageLength:   20,
		CapsRatioThreshold:   0.5,
		CapsMinLength:        10,
		ExclamationThreshold: 3,
		KeywordThreshold:     2,
		MaxNationalDigits:    11,
		ExpectedCountryCode:  "1",
	}, nil, log)

	env := &testEnv{
		source:  &fakeSource{},
		flags:   newFakeFlagStore(),
		runs:    newFakeRunTracker(),
		reports: newFakeReportStore(),
	}
	env.engine = NewEngine(
		testScanConfig(),
		detection.NewPatternMatcher(rules, log),
		behavioral, fusion, reviewer, rules,
		env.source, env.flags, env.runs, env.reports,
		log,
	)
	env.engine.retryBackoff = time.Millisecond
	return env
}

func message(body string) models.Message {
	return models.Message{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		FromNumber: "+15551234567",
		ToNumber:   "+15559876543",
		Body:       body,
		SentAt:     time.Now().UTC(),
	}
}

func TestRunPeriodicScanFlagsScamsOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	scam := message("URGENT payment required! You won the lottery")
	benign := message("See you at 6pm")
	env.source.messages = []models.Message{scam, benign}

	require.NoError(t, env.engine.RunPeriodicScan(context.Background()))

	flag := env.flags.get(scam.ID)
	require.NotNil(t, flag)
	assert.True(t, flag.IsScam)
	assert.Equal(t, scam.Body, flag.MessageText)
	assert.Contains(t, flag.DetectionMethod, "pattern")
	assert.Nil(t, env.flags.get(benign.ID))

	c, ok := env.runs.lastCompletion()
	require.True(t, ok)
	assert.Equal(t, 2, c.scanned)
	assert.Equal(t, 1, c.detected)
	assert.Equal(t, 1, c.breakdown["risk:"+string(flag.RiskLevel)])
}

func TestRunPeriodicScanSkipsWhenInProgress(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runs.startErr = repository.ErrRunInProgress

	require.NoError(t, env.engine.RunPeriodicScan(context.Background()))
	assert.Zero(t, env.source.calls)
}

func TestRunPeriodicScanFetchFailureFailsRun(t *testing.T) {
	env := newTestEnv(t, nil)
	env.source.err = errors.New("portal unavailable")

	err := env.engine.RunPeriodicScan(context.Background())
	require.Error(t, err)
	require.Len(t, env.runs.failed, 1)
	for _, msg := range env.runs.failed {
		assert.Contains(t, msg, "fetch failed")
	}
}

func TestRunPeriodicScanRescanIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	scam := message("urgent payment required")
	env.source.messages = []models.Message{scam}

	require.NoError(t, env.engine.RunPeriodicScan(context.Background()))
	first := env.flags.get(scam.ID)
	require.NotNil(t, first)

	require.NoError(t, env.engine.RunPeriodicScan(context.Background()))
	second := env.flags.get(scam.ID)
	require.NotNil(t, second)

	// Same message, same flag identity: the second scan updates in place.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, env.flags.upserts)
}

func TestRunPeriodicScanCancelledRunFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.source.messages = []models.Message{message("urgent payment required")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.engine.RunPeriodicScan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, env.runs.failed, 1)
	for _, msg := range env.runs.failed {
		assert.Contains(t, msg, "cancelled")
	}
}

func TestRunPeriodicScanAIRefinesVerdict(t *testing.T) {
	provider := &scriptedProvider{classify: &ai.ClassifyResult{
		IsScam:          true,
		Confidence:      0.95,
		ScamType:        models.CategoryFinancialFraud,
		ScoreAdjustment: 20,
		Rationale:       "classic advance-fee pattern",
	}}
	fusion := detection.NewFusion(config.FusionConfig{
		CriticalThreshold: 90, HighThreshold: 70, MediumThreshold: 40, FlagFloor: 20,
	})
	reviewer := ai.NewReviewer(testAIReviewConfig(), provider, fusion, nil, logger.NewDefault())

	env := newTestEnv(t, reviewer)
	// Single fin-001 match: score 70, inside the [40,90) escalation band.
	scam := message("you won a prize")
	env.source.messages = []models.Message{scam}

	require.NoError(t, env.engine.RunPeriodicScan(context.Background()))

	flag := env.flags.get(scam.ID)
	require.NotNil(t, flag)
	assert.Equal(t, 1, provider.calls)
	assert.Contains(t, flag.DetectionMethod, "ai_review")
	assert.Equal(t, "classic advance-fee pattern", flag.AIRationale)
	assert.InDelta(t, 90.0, flag.RiskScore, 1e-9)
	assert.Equal(t, models.RiskCritical, flag.RiskLevel)
}

func TestRunPeriodicScanDegradesWhenQuotaExhausted(t *testing.T) {
	provider := &scriptedProvider{classify: &ai.ClassifyResult{ScoreAdjustment: 20}}
	fusion := detection.NewFusion(config.FusionConfig{
		CriticalThreshold: 90, HighThreshold: 70, MediumThreshold: 40, FlagFloor: 20,
	})
	reviewer := ai.NewReviewer(testAIReviewConfig(), provider, fusion, deniedQuota{}, logger.NewDefault())

	env := newTestEnv(t, reviewer)
	env.source.messages = []models.Message{
		message("you won a prize"),
		message("you won a lottery ticket"),
		message("you won a gift"),
	}

	require.NoError(t, env.engine.RunPeriodicScan(context.Background()))

	// Heuristics-only verdicts were still persisted.
	assert.Zero(t, provider.calls)
	for _, m := range env.source.messages {
		flag := env.flags.get(m.ID)
		require.NotNil(t, flag)
		assert.NotContains(t, flag.DetectionMethod, "ai_review")
	}

	c, ok := env.runs.lastCompletion()
	require.True(t, ok)
	assert.Equal(t, 3, c.scanned)
	assert.Equal(t, 3, c.detected)
}
