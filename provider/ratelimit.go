package provider

import (
	"context"

	"golang.org/x/time/rate"

	"deepchat/config"
	"deepchat/model"
)

// LimitedAdapter waits on a token bucket before every request to the wrapped
// adapter. A wait that is cancelled surfaces as the caller's context error.
type LimitedAdapter struct {
	next    model.Adapter
	limiter *rate.Limiter
	id      string
}

// Limited wraps next with limiter. A nil limiter returns next unchanged.
func Limited(providerID string, next model.Adapter, limiter *rate.Limiter) model.Adapter {
	if limiter == nil {
		return next
	}
	return &LimitedAdapter{next: next, limiter: limiter, id: providerID}
}

func (l *LimitedAdapter) Family() model.Family {
	return l.next.Family()
}

func (l *LimitedAdapter) ListModels(ctx context.Context, cred model.Credential) ([]model.ModelDescriptor, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.next.ListModels(ctx, cred)
}

func (l *LimitedAdapter) StreamChat(ctx context.Context, cred model.Credential, modelID string, turns []model.Turn, tools []model.ToolDescriptor) model.Stream {
	if err := l.wait(ctx); err != nil {
		return errorStream(classifyError(l.id, err))
	}
	return l.next.StreamChat(ctx, cred, modelID, turns, tools)
}

func (l *LimitedAdapter) wait(ctx context.Context) error {
	if l.limiter.Allow() {
		return nil
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] %s throttled, waiting for a request slot", l.id)
	}
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return model.Wrap(model.KindRateLimited, l.id, err)
	}
	return nil
}
