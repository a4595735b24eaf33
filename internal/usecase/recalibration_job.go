package usecase

import (
	"context"
	"fmt"

	"WalletWatch/internal/analytics/calibration"
	domrepo "WalletWatch/internal/domain/repository"
	applogger "WalletWatch/pkg/logger"
	"WalletWatch/pkg/queue"
)

// RecalibrationJobType is the queue message type triggering a calibration
// pass.
const RecalibrationJobType = "surveillance.recalibrate"

// RecalibrationPayload is the queue payload for one calibration pass.
type RecalibrationPayload struct {
	Reason string `json:"reason,omitempty"`
}

// RecalibrationJob recomputes the score calibration off the hot path.
type RecalibrationJob struct {
	calibrator *calibration.Calibrator
	metrics    domrepo.Metrics
	logger     *applogger.Logger
}

func NewRecalibrationJob(cal *calibration.Calibrator, metrics domrepo.Metrics, lgr *applogger.Logger) *RecalibrationJob {
	return &RecalibrationJob{calibrator: cal, metrics: metrics, logger: lgr}
}

func (j *RecalibrationJob) Name() string { return "recalibration" }

func (j *RecalibrationJob) Type() string { return RecalibrationJobType }

func (j *RecalibrationJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[RecalibrationPayload](payload)
	if err != nil {
		return fmt.Errorf("recalibration payload: %w", err)
	}

	result := j.calibrator.CalculateCalibration()
	j.metrics.RecordCalibrationQuality(string(result.Metrics.Quality), result.Metrics.BrierScore)
	j.logger.Info("calibration pass completed",
		applogger.String("reason", p.Reason),
		applogger.String("quality", string(result.Metrics.Quality)),
		applogger.Float64("brier", result.Metrics.BrierScore),
		applogger.Int("samples", result.Metrics.SampleCount),
		applogger.Bool("calibrated", result.IsCalibrated),
	)
	return nil
}

var _ queue.Job = (*RecalibrationJob)(nil)
