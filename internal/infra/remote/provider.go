// Package remote implements port.ScenarioProvider against the hosted
// scenario API. All reads go through a circuit breaker with retry, and
// a fetch is all-or-nothing: if any of the three resources fails, the
// whole snapshot fails.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/resilience"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("remote")

// Provider fetches snapshots from and submits mutations to the remote
// scenario API.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewProvider creates a remote provider.
func NewProvider(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Provider {
	return &Provider{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

// snapshotMeta is the scenario record as served by the remote API.
type snapshotMeta struct {
	ID                   string `json:"id"`
	StartingBalanceCents *int64 `json:"starting_balance_cents"`
}

// FetchSnapshot retrieves the scenario record, its weekly aggregates and
// its running balance in parallel and assembles the display snapshot.
func (p *Provider) FetchSnapshot(ctx context.Context, scenarioID string) (*scenario.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Remote.FetchSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID))

	var (
		meta    snapshotMeta
		raw     []scenario.WeekRaw
		balance []scenario.BalancePoint
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		body, err := p.doGet(gCtx, fmt.Sprintf("scenarios/%s", scenarioID))
		if err != nil {
			return fmt.Errorf("scenario fetch: %w", err)
		}
		if err := json.Unmarshal(body, &meta); err != nil {
			return fmt.Errorf("decode scenario: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		body, err := p.doGet(gCtx, fmt.Sprintf("scenarios/%s/weeks", scenarioID))
		if err != nil {
			return fmt.Errorf("weeks fetch: %w", err)
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return fmt.Errorf("decode weeks: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		body, err := p.doGet(gCtx, fmt.Sprintf("scenarios/%s/balance", scenarioID))
		if err != nil {
			return fmt.Errorf("balance fetch: %w", err)
		}
		if err := json.Unmarshal(body, &balance); err != nil {
			return fmt.Errorf("decode balance: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		p.logger.Error("remote: snapshot fetch failed",
			zap.String("scenario_id", scenarioID),
			zap.Error(err),
		)
		return nil, p.wrapError("remote/snapshot", err)
	}

	starting := scenario.DefaultStartingBalanceCents
	if meta.StartingBalanceCents != nil {
		starting = *meta.StartingBalanceCents
	}

	weeks := scenario.BuildWeeks(raw)
	if len(balance) == 0 {
		balance = scenario.RecalculateRunningBalance(weeks, starting)
	}

	return &scenario.Snapshot{
		ScenarioID:           scenarioID,
		StartingBalanceCents: starting,
		Weeks:                weeks,
		Balance:              balance,
	}, nil
}

// UpdateTransaction submits an amount/date override for one transaction.
func (p *Provider) UpdateTransaction(ctx context.Context, scenarioID, transactionID string, req *domain.UpdateTransactionRequest) (*scenario.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Remote.UpdateTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.String("transaction.id", transactionID),
	)

	path := fmt.Sprintf("scenarios/%s/transactions/%s", scenarioID, transactionID)
	if err := p.doSend(ctx, http.MethodPut, path, req); err != nil {
		return nil, err
	}
	return p.FetchSnapshot(ctx, scenarioID)
}

// MoveTransaction relocates a transaction to the week containing the
// target date.
func (p *Provider) MoveTransaction(ctx context.Context, scenarioID string, req *domain.MoveTransactionRequest) (*scenario.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Remote.MoveTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.String("transaction.id", req.TransactionID),
	)

	path := fmt.Sprintf("scenarios/%s/moves", scenarioID)
	if err := p.doSend(ctx, http.MethodPost, path, req); err != nil {
		return nil, err
	}
	return p.FetchSnapshot(ctx, scenarioID)
}

// SubmitBatchOverrides submits a batch of overrides as one unit.
func (p *Provider) SubmitBatchOverrides(ctx context.Context, scenarioID string, req *domain.BatchOverrideRequest) (*scenario.Snapshot, *scenario.BatchResult, error) {
	ctx, span := tracer.Start(ctx, "Remote.SubmitBatchOverrides")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.Int("overrides", len(req.Overrides)),
	)

	path := fmt.Sprintf("scenarios/%s/overrides", scenarioID)

	var result scenario.BatchResult

	_, err := p.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, p.cfg, func() error {
			body, err := p.send(ctx, http.MethodPost, path, req)
			if err != nil {
				return err
			}
			if len(body) == 0 {
				result = scenario.BatchResult{UpdatedCount: len(req.Overrides)}
				return nil
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("decode batch result: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, p.wrapError("remote/overrides", err)
	}

	snap, err := p.FetchSnapshot(ctx, scenarioID)
	if err != nil {
		return nil, nil, err
	}
	return snap, &result, nil
}

// doGet runs a breaker-guarded, retried GET with a cache-busting
// timestamp query parameter.
func (p *Provider) doGet(ctx context.Context, path string) ([]byte, error) {
	var out []byte
	_, err := p.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, p.cfg, func() error {
			url := fmt.Sprintf("%s/%s?ts=%d", p.baseURL, path, time.Now().UnixMilli())
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
			req.Header.Set("Accept", "application/json")

			resp, err := p.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				p.logger.Warn("remote: non-2xx response",
					zap.String("path", path),
					zap.Int("status", resp.StatusCode),
					zap.String("body", string(body)),
				)
				return fmt.Errorf("remote returned status %d: %s", resp.StatusCode, string(body))
			}
			out = body
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// doSend runs a breaker-guarded, retried mutation and discards the body.
func (p *Provider) doSend(ctx context.Context, method, path string, payload any) error {
	_, err := p.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, p.cfg, func() error {
			_, err := p.send(ctx, method, path, payload)
			return err
		})
	})
	if err != nil {
		return p.wrapError("remote/"+path, err)
	}
	return nil
}

func (p *Provider) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error("remote: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: path}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("remote: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("remote returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (p *Provider) wrapError(service string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: service}
	}
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return notFound
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}
