package goGuard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/clock"
	"github.com/MrEthical07/goGuard/internal/mfa"
	"github.com/MrEthical07/goGuard/kv"
	"github.com/MrEthical07/goGuard/lifecycle"
	"github.com/MrEthical07/goGuard/session"
)

var testEpoch = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

type shownAlert struct {
	title   string
	message string
	buttons []AlertButton
}

type recordingAlerter struct {
	mu    sync.Mutex
	shown []shownAlert
}

func (a *recordingAlerter) Show(title, message string, buttons []AlertButton) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shown = append(a.shown, shownAlert{title: title, message: message, buttons: buttons})
}

func (a *recordingAlerter) last(t *testing.T) shownAlert {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.shown) == 0 {
		t.Fatal("expected an alert")
	}
	return a.shown[len(a.shown)-1]
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.shown)
}

type recordingAppender struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *recordingAppender) Append(_ context.Context, rec audit.Record) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return rec.ID, nil
}

func (a *recordingAppender) types() []audit.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.EventType, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r.EventType)
	}
	return out
}

type testHarness struct {
	provider *Provider
	clock    *clock.Fake
	store    *kv.MemoryStore
	alerter  *recordingAlerter
	appender *recordingAppender
}

type harnessOption func(*Builder)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Questions.Memory = 8 * 1024
	cfg.Questions.Time = 1
	cfg.Questions.Parallelism = 1
	cfg.Audit.DropIfFull = false
	return cfg
}

func newHarness(t *testing.T, store *kv.MemoryStore, opts ...harnessOption) *testHarness {
	t.Helper()
	if store == nil {
		store = kv.NewMemoryStore()
	}
	h := &testHarness{
		clock:    clock.NewFake(testEpoch),
		store:    store,
		alerter:  &recordingAlerter{},
		appender: &recordingAppender{},
	}
	b := New().
		WithConfig(testConfig()).
		WithStore(store).
		WithSecureStore(store).
		WithClock(h.clock).
		WithAlerter(h.alerter).
		WithAppender(h.appender)
	for _, o := range opts {
		o(b)
	}
	p, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(p.Close)
	h.provider = p
	return h
}

func TestBuildRequiresStore(t *testing.T) {
	_, err := New().Build(context.Background())
	if !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestBuildRequiresSecureStoreOrSealingKey(t *testing.T) {
	_, err := New().WithConfig(testConfig()).WithStore(kv.NewMemoryStore()).Build(context.Background())
	if !errors.Is(err, ErrSecureStoreRequired) {
		t.Fatalf("expected ErrSecureStoreRequired, got %v", err)
	}
}

func TestBuildRejectsOutOfBoundsConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Timeout = time.Hour
	store := kv.NewMemoryStore()
	_, err := New().WithConfig(cfg).WithStore(store).WithSecureStore(store).Build(context.Background())
	if err == nil {
		t.Fatal("expected config error")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	store := kv.NewMemoryStore()
	b := New().WithConfig(testConfig()).WithStore(store).WithSecureStore(store)
	p, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer p.Close()
	if _, err := b.Build(context.Background()); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

/*
====================================
LOGIN / LOCKOUT
====================================
*/

func TestLockoutAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		out, err := h.provider.HandleLoginAttempt(ctx, "ana@example.com", false)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if out.Status != LoginFailed || out.Attempts != i || out.RemainingAttempts != 5-i {
			t.Fatalf("attempt %d: unexpected outcome %+v", i, out)
		}
	}
	if h.provider.State().IsAccountLocked {
		t.Fatal("locked before the fifth failure")
	}

	out, err := h.provider.HandleLoginAttempt(ctx, "ana@example.com", false)
	if err != nil {
		t.Fatalf("fifth attempt: %v", err)
	}
	if out.Status != LoginLocked || out.LockoutRemaining != 30*time.Minute {
		t.Fatalf("expected lockout, got %+v", out)
	}

	st := h.provider.State()
	if !st.IsAccountLocked || st.LoginAttempts != 5 || st.LockoutTimeRemaining != 30*time.Minute {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.LastSecurityEvent == nil || st.LastSecurityEvent.Type != EventLockout {
		t.Fatalf("expected lockout event, got %+v", st.LastSecurityEvent)
	}
	if a := h.alerter.last(t); a.title != "Account Locked" || !strings.Contains(a.message, "30 minute(s)") {
		t.Fatalf("unexpected alert %+v", a)
	}
	if h.provider.metrics.Value(MetricAccountLocked) != 1 {
		t.Fatal("expected lockout metric")
	}
}

func TestSuccessBeforeLockoutResetsAttempts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := h.provider.HandleLoginAttempt(ctx, "ana", false); err != nil {
			t.Fatalf("attempt: %v", err)
		}
	}
	out, err := h.provider.HandleLoginAttempt(ctx, "ana", true)
	if err != nil {
		t.Fatalf("success: %v", err)
	}
	if out.Status != LoginSucceeded {
		t.Fatalf("expected success, got %+v", out)
	}
	if st := h.provider.State(); st.LoginAttempts != 0 || st.IsAccountLocked {
		t.Fatalf("expected reset, got %+v", st)
	}

	for i := 0; i < 4; i++ {
		out, _ = h.provider.HandleLoginAttempt(ctx, "ana", false)
	}
	if out.Status != LoginFailed || out.Attempts != 4 {
		t.Fatalf("counter did not restart from zero: %+v", out)
	}
	if h.provider.State().IsAccountLocked {
		t.Fatal("must never lock below the threshold")
	}
}

func TestLockedRejectsCorrectPasswordAndRoundsUp(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = h.provider.HandleLoginAttempt(ctx, "ana", false)
	}

	h.clock.Advance(10*time.Minute + 30*time.Second)
	out, err := h.provider.HandleLoginAttempt(ctx, "ana", true)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if out.Status != LoginLocked {
		t.Fatalf("locked account must refuse, got %+v", out)
	}
	if out.LockoutRemaining != 19*time.Minute+30*time.Second {
		t.Fatalf("unexpected remaining %v", out.LockoutRemaining)
	}
	if a := h.alerter.last(t); !strings.Contains(a.message, "20 minute(s)") {
		t.Fatalf("remaining minutes must round up, got %q", a.message)
	}

	h.clock.Advance(20 * time.Minute)
	out, err = h.provider.HandleLoginAttempt(ctx, "ana", true)
	if err != nil || out.Status != LoginSucceeded {
		t.Fatalf("expected success after lockout elapsed, got %+v err=%v", out, err)
	}
	if st := h.provider.State(); st.IsAccountLocked || st.LoginAttempts != 0 {
		t.Fatalf("lockout and counter must clear together, got %+v", st)
	}
}

func TestFailedAttemptsAreMirroredAndAudited(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = h.provider.HandleLoginAttempt(ctx, "ana", false)
	}

	log, err := h.provider.FailedAttemptLog(ctx)
	if err != nil {
		t.Fatalf("FailedAttemptLog: %v", err)
	}
	if len(log) != 2 || log[1].Details["attempts"] != "2" {
		t.Fatalf("unexpected mirror %+v", log)
	}

	h.provider.Close()
	failed := 0
	for _, typ := range h.appender.types() {
		if typ == audit.EventFailedAuth {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("expected 2 failed_auth records, got %d", failed)
	}
}

func TestHandleLoginAttemptValidation(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.provider.HandleLoginAttempt(context.Background(), "", false); !errors.Is(err, ErrIdentifierRequired) {
		t.Fatalf("expected ErrIdentifierRequired, got %v", err)
	}
}

/*
====================================
SESSION
====================================
*/

func TestSessionWarningThenContinue(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.provider.StartSession(ctx, "u1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	h.clock.Advance(13 * time.Minute)
	st := h.provider.State()
	if !st.IsSessionWarningShown || !st.IsSessionActive {
		t.Fatalf("expected warning at minute 13, got %+v", st)
	}
	a := h.alerter.last(t)
	if a.title != "Session Expiring" || len(a.buttons) != 2 {
		t.Fatalf("unexpected warning alert %+v", a)
	}
	if !strings.Contains(a.message, "2 minute(s)") {
		t.Fatalf("unexpected warning text %q", a.message)
	}

	a.buttons[0].Action() // Continue Session
	st = h.provider.State()
	if st.IsSessionWarningShown || st.SessionTimeRemaining != 15*time.Minute {
		t.Fatalf("continue must restore the full budget, got %+v", st)
	}
	for _, al := range st.SecurityAlerts {
		if al.Title == "Session Expiring" && !al.Dismissed {
			t.Fatal("warning alert must be dismissed after continue")
		}
	}

	h.clock.Advance(14 * time.Minute)
	if !h.provider.State().IsSessionActive {
		t.Fatal("session must still be active 14m after continuing")
	}
}

func TestRestartDuringWarningDismissesAlert(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.provider.StartSession(ctx, "u1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	h.clock.Advance(13 * time.Minute)
	if !h.provider.State().IsSessionWarningShown {
		t.Fatal("expected warning at minute 13")
	}

	if _, err := h.provider.StartSession(ctx, "u1"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	st := h.provider.State()
	if st.IsSessionWarningShown {
		t.Fatal("restart must clear the warning flag")
	}
	for _, al := range st.SecurityAlerts {
		if al.Title == "Session Expiring" && !al.Dismissed {
			t.Fatal("warning alert must be dismissed on restart")
		}
	}
}

func TestSessionExpiryAtTimeout(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.provider.SetRequirePasswordChange(true)
	if _, err := h.provider.StartSession(ctx, "u1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	h.clock.Advance(15 * time.Minute)
	st := h.provider.State()
	if st.IsSessionActive || st.SessionTimeRemaining != 0 {
		t.Fatalf("expected expiry at minute 15, got %+v", st)
	}
	if st.LastSecurityEvent == nil || st.LastSecurityEvent.Type != EventSessionTimeout {
		t.Fatalf("expected session_timeout event, got %+v", st.LastSecurityEvent)
	}
	if !st.RequirePasswordChange {
		t.Fatal("expiry must not touch RequirePasswordChange")
	}
	if a := h.alerter.last(t); a.title != "Session Expired" {
		t.Fatalf("unexpected alert %+v", a)
	}
	if h.provider.SessionTimeRemaining() != 0 {
		t.Fatal("expected zero remaining after expiry")
	}
}

func TestLogoutButtonEndsSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _ = h.provider.StartSession(ctx, "u1")
	h.clock.Advance(13 * time.Minute)

	h.alerter.last(t).buttons[1].Action() // Logout
	st := h.provider.State()
	if st.IsSessionActive {
		t.Fatal("logout must end the session")
	}
	if st.LastSecurityEvent == nil || st.LastSecurityEvent.Type != EventLogout {
		t.Fatalf("expected logout event, got %+v", st.LastSecurityEvent)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected no armed timers, got %d", h.clock.Pending())
	}
}

func TestEndSessionIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _ = h.provider.StartSession(ctx, "u1")

	h.provider.EndSession(ctx)
	h.provider.SetRequirePasswordChange(true)
	h.provider.EndSession(ctx)
	if st := h.provider.State(); !st.RequirePasswordChange || st.LastSecurityEvent.Type != EventLogout {
		t.Fatalf("unexpected state after second end %+v", st)
	}
	if h.provider.metrics.Value(MetricSessionEnded) != 1 {
		t.Fatalf("expected one end, got %d", h.provider.metrics.Value(MetricSessionEnded))
	}
	if _, ok, _ := h.store.Get(ctx, session.TokenKey); ok {
		t.Fatal("session marker must be cleared")
	}
}

func TestUpdateActivityWithoutSessionIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.UpdateActivity(context.Background())
	if h.provider.State().IsSessionActive {
		t.Fatal("activity must not start a session")
	}
	if h.clock.Pending() != 0 {
		t.Fatal("no timers expected")
	}
}

func TestBackgroundBeyondTimeoutExpiresOnce(t *testing.T) {
	bus := lifecycle.NewBus()
	h := newHarness(t, nil, func(b *Builder) { b.WithLifecycle(bus) })
	ctx := context.Background()
	_, _ = h.provider.StartSession(ctx, "u1")

	bus.Publish(lifecycle.Background)
	h.clock.Set(testEpoch.Add(20 * time.Minute))
	bus.Publish(lifecycle.Foreground)

	if h.provider.State().IsSessionActive {
		t.Fatal("session must expire on foreground")
	}
	if got := h.provider.metrics.Value(MetricSessionExpired); got != 1 {
		t.Fatalf("expected exactly one expiry, got %d", got)
	}
	h.clock.Advance(time.Hour)
	if got := h.provider.metrics.Value(MetricSessionExpired); got != 1 {
		t.Fatalf("expiry fired again: %d", got)
	}
}

func TestCheckSessionRunsExpiryPath(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _ = h.provider.StartSession(ctx, "u1")

	if !h.provider.CheckSession(ctx) {
		t.Fatal("fresh session must be alive")
	}
	h.clock.Set(testEpoch.Add(16 * time.Minute))
	if h.provider.CheckSession(ctx) {
		t.Fatal("elapsed session must report false")
	}
	if h.provider.State().IsSessionActive {
		t.Fatal("check must run the expiry path")
	}
}

func TestSessionResumedOnBuild(t *testing.T) {
	store := kv.NewMemoryStore()
	first := newHarness(t, store)
	ctx := context.Background()
	if _, err := first.provider.StartSession(ctx, "u1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	first.provider.Close()

	second := newHarness(t, store)
	st := second.provider.State()
	if !st.IsSessionActive || st.SessionTimeRemaining != 15*time.Minute {
		t.Fatalf("expected resumed session, got %+v", st)
	}
}

/*
====================================
MFA / QUESTIONS / BIOMETRIC
====================================
*/

func TestMFAEnrollmentFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.provider

	enr, err := p.BeginMFASetup(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("BeginMFASetup: %v", err)
	}
	if p.State().MFAStep != MFAStepSetup {
		t.Fatalf("expected setup step, got %v", p.State().MFAStep)
	}
	if _, err := p.VerifyMFASetup(ctx, "000000"); !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("verify before continue must fail, got %v", err)
	}
	if err := p.CompleteMFASetup(ctx); !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("complete before backup codes must fail, got %v", err)
	}
	if err := p.ContinueMFASetup(); err != nil {
		t.Fatalf("ContinueMFASetup: %v", err)
	}

	code, err := mfa.GenerateTOTP(mfa.TOTPConfig{}, enr.Secret, h.clock.Now())
	if err != nil {
		t.Fatalf("GenerateTOTP: %v", err)
	}
	codes, err := p.VerifyMFASetup(ctx, code)
	if err != nil {
		t.Fatalf("VerifyMFASetup: %v", err)
	}
	if len(codes) != 10 || p.State().MFAStep != MFAStepBackup || p.State().BackupCodesRemaining != 10 {
		t.Fatalf("unexpected backup step %+v", p.State())
	}
	if err := p.CompleteMFASetup(ctx); err != nil {
		t.Fatalf("CompleteMFASetup: %v", err)
	}
	st := p.State()
	if !st.IsMFAEnabled || st.MFAStep != MFAStepNone || st.LastSecurityEvent.Type != EventMFASetup {
		t.Fatalf("unexpected state after enrollment %+v", st)
	}

	out, _ := p.HandleLoginAttempt(ctx, "ana@example.com", true)
	if !out.MFARequired || !p.State().IsMFARequired {
		t.Fatal("login must require MFA once enabled")
	}
	ok, err := p.UseBackupCode(ctx, strings.ToLower(codes[0]))
	if err != nil || !ok {
		t.Fatalf("UseBackupCode: ok=%v err=%v", ok, err)
	}
	if st := p.State(); st.IsMFARequired || st.BackupCodesRemaining != 9 {
		t.Fatalf("unexpected state after backup code %+v", st)
	}
	if ok, _ := p.UseBackupCode(ctx, codes[0]); ok {
		t.Fatal("backup code must be single-use")
	}
}

func TestVerifyMFASetupRejectsWrongCode(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _ = h.provider.BeginMFASetup(ctx, "ana")
	_ = h.provider.ContinueMFASetup()
	if _, err := h.provider.VerifyMFASetup(ctx, "abc"); !errors.Is(err, ErrMFACodeInvalid) {
		t.Fatalf("expected ErrMFACodeInvalid, got %v", err)
	}
	if h.provider.State().MFAStep != MFAStepVerify {
		t.Fatal("a wrong code must keep the verify step")
	}
}

type staticVerifier struct{ want string }

func (v staticVerifier) Verify(_ context.Context, code string) (bool, error) {
	return code == v.want, nil
}

func TestVerifyMFACodeUsesExternalVerifier(t *testing.T) {
	h := newHarness(t, nil, func(b *Builder) { b.WithCodeVerifier(staticVerifier{want: "123456"}) })
	ctx := context.Background()

	ok, err := h.provider.VerifyMFACode(ctx, "654321")
	if err != nil || ok {
		t.Fatalf("expected rejection, got ok=%v err=%v", ok, err)
	}
	ok, err = h.provider.VerifyMFACode(ctx, "123456")
	if err != nil || !ok {
		t.Fatalf("expected acceptance, got ok=%v err=%v", ok, err)
	}
}

func TestMFACodeGuessingIsRateLimited(t *testing.T) {
	h := newHarness(t, nil, func(b *Builder) { b.WithCodeVerifier(staticVerifier{want: "123456"}) })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if ok, err := h.provider.VerifyMFACode(ctx, "000000"); ok || err != nil {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	if _, err := h.provider.VerifyMFACode(ctx, "123456"); !errors.Is(err, ErrMFARateLimited) {
		t.Fatalf("expected ErrMFARateLimited, got %v", err)
	}

	h.clock.Advance(time.Minute)
	ok, err := h.provider.VerifyMFACode(ctx, "123456")
	if err != nil || !ok {
		t.Fatalf("expected acceptance after cooldown, got ok=%v err=%v", ok, err)
	}
}

func TestVerifyMFACodeNotEnrolled(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.provider.VerifyMFACode(context.Background(), "123456"); !errors.Is(err, ErrMFANotEnrolled) {
		t.Fatalf("expected ErrMFANotEnrolled, got %v", err)
	}
}

func TestMFAFlagsFoldedOnBuild(t *testing.T) {
	store := kv.NewMemoryStore()
	first := newHarness(t, store)
	ctx := context.Background()
	if _, err := first.provider.mfa.GenerateBackupCodes(ctx, 10); err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	if err := first.provider.mfa.SetEnabled(ctx, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := first.provider.SaveSecurityQuestions(ctx, []SecurityQuestion{{ID: "pet", Question: "First pet?", Answer: "Rex"}}); err != nil {
		t.Fatalf("SaveSecurityQuestions: %v", err)
	}
	first.provider.Close()

	st := newHarness(t, store).provider.State()
	if !st.IsMFAEnabled || st.BackupCodesRemaining != 10 || !st.HasSecurityQuestions {
		t.Fatalf("persisted flags not folded: %+v", st)
	}
}

func TestRegenerateRequiresMFA(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.provider.RegenerateBackupCodes(context.Background()); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("expected ErrMFANotEnabled, got %v", err)
	}
}

func TestDisableMFA(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_ = h.provider.mfa.SetEnabled(ctx, true)
	if err := h.provider.DisableMFA(ctx); err != nil {
		t.Fatalf("DisableMFA: %v", err)
	}
	if st := h.provider.State(); st.IsMFAEnabled || st.BackupCodesRemaining != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
	if on, _ := h.provider.mfa.Enabled(ctx); on {
		t.Fatal("flag must be cleared in the store")
	}
}

func TestSecurityQuestionsFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.provider

	if _, err := p.BeginSecurityQuestionVerify(ctx); !errors.Is(err, ErrQuestionsNotSet) {
		t.Fatalf("expected ErrQuestionsNotSet, got %v", err)
	}

	p.BeginSecurityQuestionSetup()
	if p.State().SecurityQuestionStep != QuestionStepSetup {
		t.Fatal("expected setup step")
	}
	qs := []SecurityQuestion{
		{ID: "pet", Question: "First pet?", Answer: "Rex"},
		{ID: "city", Question: "Birth city?", Answer: "Lisbon"},
	}
	if err := p.SaveSecurityQuestions(ctx, qs); err != nil {
		t.Fatalf("SaveSecurityQuestions: %v", err)
	}
	if st := p.State(); !st.HasSecurityQuestions || st.SecurityQuestionStep != QuestionStepNone {
		t.Fatalf("unexpected state %+v", st)
	}

	if _, err := p.VerifySecurityQuestions(ctx, nil); !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("verify outside the verify step must fail, got %v", err)
	}
	prompts, err := p.BeginSecurityQuestionVerify(ctx)
	if err != nil || len(prompts) != 2 {
		t.Fatalf("BeginSecurityQuestionVerify: %v %v", prompts, err)
	}

	ok, err := p.VerifySecurityQuestions(ctx, map[string]string{"pet": "rex", "city": "Porto"})
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
	ok, err = p.VerifySecurityQuestions(ctx, map[string]string{"pet": "  REX ", "city": "lisbon"})
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	if p.State().SecurityQuestionStep != QuestionStepNone {
		t.Fatal("verify step must end on success")
	}

	raw, _, _ := h.store.Get(ctx, "security_questions")
	if strings.Contains(strings.ToLower(raw), "lisbon") {
		t.Fatal("answers must not be stored in plaintext by default")
	}
}

func TestSecurityQuestionGuessingIsRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.provider

	qs := []SecurityQuestion{{ID: "pet", Question: "First pet?", Answer: "Rex"}}
	if err := p.SaveSecurityQuestions(ctx, qs); err != nil {
		t.Fatalf("SaveSecurityQuestions: %v", err)
	}
	if _, err := p.BeginSecurityQuestionVerify(ctx); err != nil {
		t.Fatalf("BeginSecurityQuestionVerify: %v", err)
	}

	for i := 0; i < 5; i++ {
		if ok, err := p.VerifySecurityQuestions(ctx, map[string]string{"pet": "fido"}); ok || err != nil {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	if _, err := p.VerifySecurityQuestions(ctx, map[string]string{"pet": "rex"}); !errors.Is(err, ErrQuestionsRateLimited) {
		t.Fatalf("expected ErrQuestionsRateLimited, got %v", err)
	}

	h.clock.Advance(time.Minute)
	ok, err := p.VerifySecurityQuestions(ctx, map[string]string{"pet": "rex"})
	if err != nil || !ok {
		t.Fatalf("expected acceptance after cooldown, got ok=%v err=%v", ok, err)
	}
	if raw, found, _ := h.store.Get(ctx, "code_attempts_questions"); found {
		t.Fatalf("expected the question window cleared on success, got %q", raw)
	}
}

type fakeSensor struct {
	kind   BiometricType
	accept bool
	calls  int
}

func (s *fakeSensor) Capability(context.Context) (BiometricType, error) { return s.kind, nil }

func (s *fakeSensor) Authenticate(context.Context, string) (bool, error) {
	s.calls++
	return s.accept, nil
}

func TestBiometricEnableAndAuthenticate(t *testing.T) {
	sensor := &fakeSensor{kind: BiometricFace, accept: true}
	h := newHarness(t, nil, func(b *Builder) { b.WithBiometric(sensor) })
	ctx := context.Background()
	p := h.provider

	if st := p.State(); !st.IsBiometricAvailable || st.BiometricType != BiometricFace || st.IsBiometricEnabled {
		t.Fatalf("unexpected initial state %+v", st)
	}
	if _, err := p.AuthenticateBiometric(ctx, "Unlock"); !errors.Is(err, ErrBiometricRejected) {
		t.Fatalf("authenticate before enable must fail, got %v", err)
	}
	if err := p.EnableBiometric(ctx); err != nil {
		t.Fatalf("EnableBiometric: %v", err)
	}
	st := p.State()
	if !st.IsBiometricEnabled || st.LastSecurityEvent.Type != EventBiometricSetup {
		t.Fatalf("unexpected state %+v", st)
	}
	ok, err := p.AuthenticateBiometric(ctx, "Unlock")
	if err != nil || !ok {
		t.Fatalf("AuthenticateBiometric: ok=%v err=%v", ok, err)
	}

	if err := p.DisableBiometric(ctx); err != nil {
		t.Fatalf("DisableBiometric: %v", err)
	}
	if p.State().IsBiometricEnabled {
		t.Fatal("expected disabled")
	}
}

func TestBiometricUnavailable(t *testing.T) {
	h := newHarness(t, nil, func(b *Builder) { b.WithBiometric(&fakeSensor{kind: BiometricNone}) })
	if err := h.provider.EnableBiometric(context.Background()); !errors.Is(err, ErrBiometricUnavailable) {
		t.Fatalf("expected ErrBiometricUnavailable, got %v", err)
	}
}

func TestBiometricRejectedOnEnable(t *testing.T) {
	sensor := &fakeSensor{kind: BiometricFingerprint}
	h := newHarness(t, nil, func(b *Builder) { b.WithBiometric(sensor) })
	if err := h.provider.EnableBiometric(context.Background()); !errors.Is(err, ErrBiometricRejected) {
		t.Fatalf("expected ErrBiometricRejected, got %v", err)
	}
	if h.provider.State().IsBiometricEnabled {
		t.Fatal("rejected confirmation must not enable")
	}
}

/*
====================================
PASSWORD / PHI / ALERTS
====================================
*/

func TestChangePassword(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.provider.SetRequirePasswordChange(true)

	err := h.provider.ChangePassword(ctx, "short")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if a := h.alerter.last(t); a.title != "Password Requirements" {
		t.Fatalf("expected password alert, got %+v", a)
	}
	if !h.provider.State().RequirePasswordChange {
		t.Fatal("failed change must keep the flag")
	}

	if err := h.provider.ChangePassword(ctx, "Str0ng!Pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	st := h.provider.State()
	if st.RequirePasswordChange || st.LastSecurityEvent.Type != EventPasswordChange {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestValidatePHIAccess(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	before := h.alerter.count()

	tests := []struct {
		current, requested string
		granted            bool
		reason             string
	}{
		{"u1", "u1", true, ""},
		{"u1", "u2", false, "users may only access their own data"},
		{"", "u1", false, "not authenticated"},
	}
	for _, tc := range tests {
		d := h.provider.ValidatePHIAccess(ctx, tc.current, tc.requested, "mood_entries")
		if d.Granted != tc.granted || d.Reason != tc.reason {
			t.Fatalf("%q->%q: got %+v", tc.current, tc.requested, d)
		}
	}
	if h.alerter.count() != before {
		t.Fatal("PHI denials must be silent to the UI")
	}
	if h.provider.metrics.Value(MetricPHIGranted) != 1 || h.provider.metrics.Value(MetricPHIDenied) != 2 {
		t.Fatal("unexpected PHI metrics")
	}

	h.provider.Close()
	counts := map[audit.EventType]int{}
	for _, typ := range h.appender.types() {
		counts[typ]++
	}
	if counts[audit.EventDataAccess] != 3 || counts[audit.EventPHIAccess] != 1 || counts[audit.EventUnauthorizedAccess] != 2 {
		t.Fatalf("unexpected audit trail %v", counts)
	}
}

func TestSecurityAlerts(t *testing.T) {
	h := newHarness(t, nil)
	p := h.provider

	a := p.AddSecurityAlert(AlertInfo, "Hello", "first")
	b := p.AddSecurityAlert(AlertWarning, "Hello", "second")
	if a == b {
		t.Fatal("alert ids must be unique")
	}
	if err := p.DismissSecurityAlert(a); err != nil {
		t.Fatalf("DismissSecurityAlert: %v", err)
	}
	st := p.State()
	if len(st.SecurityAlerts) != 2 || !st.SecurityAlerts[0].Dismissed || st.SecurityAlerts[1].Dismissed {
		t.Fatalf("unexpected alerts %+v", st.SecurityAlerts)
	}
	if err := p.DismissSecurityAlert("missing"); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("expected ErrAlertNotFound, got %v", err)
	}
	p.ClearSecurityAlerts()
	if len(p.State().SecurityAlerts) != 0 {
		t.Fatal("expected no alerts after clear")
	}
}

func TestStateIsACopy(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.AddSecurityAlert(AlertInfo, "t", "m")
	st := h.provider.State()
	st.SecurityAlerts[0].Title = "mutated"
	if h.provider.State().SecurityAlerts[0].Title != "t" {
		t.Fatal("State must not alias internal storage")
	}
}

func TestSubscribeAndClose(t *testing.T) {
	h := newHarness(t, nil)
	var mu sync.Mutex
	var seen []SecurityState
	unsub := h.provider.Subscribe(func(s SecurityState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	h.provider.SetRequirePasswordChange(true)
	unsub()
	h.provider.SetRequirePasswordChange(false)

	mu.Lock()
	if len(seen) != 1 || !seen[0].RequirePasswordChange {
		t.Fatalf("unexpected notifications %+v", seen)
	}
	mu.Unlock()

	h.provider.Close()
	h.provider.Close()
	if _, err := h.provider.StartSession(context.Background(), "u1"); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

func TestComplianceReport(t *testing.T) {
	h := newHarness(t, nil)
	r := h.provider.ComplianceReport()
	if !r.SessionWithinCeiling || r.LockoutMaxAttempts != 5 || !r.QuestionAnswersHashed {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.SignedSessionToken || r.SigningAlgorithm != "" {
		t.Fatal("no token keys configured")
	}
}
