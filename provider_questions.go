package goGuard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/questions"
)

// BeginSecurityQuestionSetup enters the setup step.
func (p *Provider) BeginSecurityQuestionSetup() {
	p.update(func(s *SecurityState) {
		s.SecurityQuestionStep = QuestionStepSetup
	})
}

// SaveSecurityQuestions replaces the stored set. Answers are normalized and,
// unless plaintext storage is configured, hashed.
func (p *Provider) SaveSecurityQuestions(ctx context.Context, qs []SecurityQuestion) error {
	if p.isClosed() {
		return ErrProviderClosed
	}
	if err := p.questions.Save(ctx, qs); err != nil {
		return mapQuestionsError(err)
	}
	p.metrics.Inc(MetricQuestionsSaved)
	p.audit.LogSecurityEvent(ctx, p.currentUserID(), "security_questions_set", map[string]string{
		"count": fmt.Sprint(len(qs)),
	})
	p.update(func(s *SecurityState) {
		s.HasSecurityQuestions = true
		s.SecurityQuestionStep = QuestionStepNone
	})
	return nil
}

// BeginSecurityQuestionVerify returns the stored prompts and enters the
// verify step.
func (p *Provider) BeginSecurityQuestionVerify(ctx context.Context) ([]QuestionPrompt, error) {
	prompts, err := p.questions.Questions(ctx)
	if err != nil {
		return nil, mapQuestionsError(err)
	}
	if len(prompts) == 0 {
		return nil, ErrQuestionsNotSet
	}
	p.update(func(s *SecurityState) {
		s.SecurityQuestionStep = QuestionStepVerify
	})
	return prompts, nil
}

// VerifySecurityQuestions checks answers keyed by question ID. Every stored
// question must be answered; comparison ignores case and surrounding space.
func (p *Provider) VerifySecurityQuestions(ctx context.Context, answers map[string]string) (bool, error) {
	if p.State().SecurityQuestionStep != QuestionStepVerify {
		return false, ErrInvalidStep
	}
	if err := p.codes.Check(ctx, limiters.ChannelQuestions); err != nil {
		return false, mapQuestionsLimiterError(err)
	}
	ok, err := p.questions.Verify(ctx, answers)
	if err != nil {
		return false, mapQuestionsError(err)
	}
	if !ok {
		p.metrics.Inc(MetricQuestionsFailed)
		p.audit.LogFailedAuth(ctx, p.currentUserID(), "security question mismatch")
		if err := p.codes.RecordFailure(ctx, limiters.ChannelQuestions); err != nil && !errors.Is(err, limiters.ErrCodeRateLimited) {
			p.warn("security question limiter write failed", err)
		}
		return false, nil
	}
	p.metrics.Inc(MetricQuestionsVerified)
	p.resetCodes(ctx, limiters.ChannelQuestions)
	p.update(func(s *SecurityState) {
		s.SecurityQuestionStep = QuestionStepNone
	})
	return true, nil
}

// ClearSecurityQuestions removes the stored set.
func (p *Provider) ClearSecurityQuestions(ctx context.Context) error {
	if err := p.questions.Clear(ctx); err != nil {
		return mapQuestionsError(err)
	}
	p.update(func(s *SecurityState) {
		s.HasSecurityQuestions = false
		s.SecurityQuestionStep = QuestionStepNone
	})
	return nil
}

func mapQuestionsLimiterError(err error) error {
	if errors.Is(err, limiters.ErrCodeRateLimited) {
		return ErrQuestionsRateLimited
	}
	return fmt.Errorf("%w: %v", ErrQuestionsUnavailable, err)
}

func mapQuestionsError(err error) error {
	if errors.Is(err, questions.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrQuestionsUnavailable, err)
	}
	return err
}
