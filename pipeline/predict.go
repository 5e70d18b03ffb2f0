// Package pipeline runs a single prediction request from a customer record
// to a logged result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"churnboard/customer"
	"churnboard/history"
	"churnboard/ml"
)

// BundleSource hands out the current model bundle.
type BundleSource interface {
	Bundle(ctx context.Context) (*ml.Bundle, error)
}

// HistoryWriter persists finished predictions.
type HistoryWriter interface {
	Append(e history.Entry) error
}

// Observer is notified once per Predict call.
type Observer interface {
	ObservePrediction(model, label string, elapsed time.Duration, err error)
	ObserveHistoryFailure()
}

// Result is what the caller shows to the user.
type Result struct {
	ml.Prediction
	ModelVersion string    `json:"model_version"`
	PredictedAt  time.Time `json:"predicted_at"`
	Logged       bool      `json:"logged"`
}

// Predictor wires the bundle, the history log and the observers together.
type Predictor struct {
	bundles  BundleSource
	history  HistoryWriter
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

func NewPredictor(bundles BundleSource, hist HistoryWriter, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{
		bundles: bundles,
		history: hist,
		logger:  logger,
		now:     time.Now,
	}
}

func (p *Predictor) SetObserver(o Observer) {
	p.observer = o
}

// Predict assembles, transforms and classifies rec with the requested model,
// then appends the outcome to history. A history failure is logged and
// reported through Result.Logged; it never fails the prediction.
func (p *Predictor) Predict(ctx context.Context, rec customer.Record, model ml.ModelID) (Result, error) {
	start := p.now()
	res, err := p.predict(ctx, rec, model)
	if p.observer != nil {
		p.observer.ObservePrediction(string(model), res.Label, time.Since(start), err)
	}
	if err != nil {
		return Result{}, err
	}

	if p.history != nil {
		entry := history.Entry{
			Record:      rec,
			PredictedAt: res.PredictedAt.Truncate(time.Minute),
			Model:       string(model),
			Prediction:  res.Label,
		}
		if herr := p.history.Append(entry); herr != nil {
			p.logger.Error("history append failed",
				zap.String("model", string(model)),
				zap.String("prediction", res.Label),
				zap.Error(herr))
			if p.observer != nil {
				p.observer.ObserveHistoryFailure()
			}
		} else {
			res.Logged = true
		}
	}

	p.logger.Info("prediction served",
		zap.String("model", string(model)),
		zap.String("model_version", res.ModelVersion),
		zap.String("prediction", res.Label),
		zap.Bool("logged", res.Logged))
	return res, nil
}

func (p *Predictor) predict(ctx context.Context, rec customer.Record, model ml.ModelID) (Result, error) {
	bundle, err := p.bundles.Bundle(ctx)
	if err != nil {
		return Result{}, err
	}

	row, err := bundle.Assemble(rec)
	if err != nil {
		return Result{}, err
	}
	features, err := bundle.Transform(row)
	if err != nil {
		return Result{}, err
	}
	pred, err := bundle.Predict(model, features)
	if err != nil {
		return Result{}, fmt.Errorf("predict with %s: %w", model, err)
	}

	return Result{
		Prediction:   pred,
		ModelVersion: bundle.Version(),
		PredictedAt:  p.now(),
	}, nil
}
