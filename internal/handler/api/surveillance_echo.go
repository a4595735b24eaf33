package api

import (
	"time"

	"WalletWatch/internal/analytics/accuracy"
	"WalletWatch/internal/analytics/calibration"
	"WalletWatch/internal/analytics/clustering"
	"WalletWatch/internal/analytics/ranking"
	"WalletWatch/internal/analytics/weights"
	models "WalletWatch/internal/domain/models"
	"WalletWatch/internal/usecase"
	xhttp "WalletWatch/pkg/http"
	xlogger "WalletWatch/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SurveillanceEchoHandler implements Echo-based HTTP handlers following Clean Architecture.
type SurveillanceEchoHandler struct {
	logger     *xlogger.Logger
	agg        *usecase.SurveillanceAggregator
	scorer     *accuracy.Scorer
	calibrator *calibration.Calibrator
	weights    *weights.Configurator
	clusters   *clustering.Analyzer
	ranker     *ranking.Ranker
}

func NewSurveillanceEchoHandler(
	logger *xlogger.Logger,
	agg *usecase.SurveillanceAggregator,
	scorer *accuracy.Scorer,
	calibrator *calibration.Calibrator,
	cfg *weights.Configurator,
	clusters *clustering.Analyzer,
	ranker *ranking.Ranker,
) *SurveillanceEchoHandler {
	return &SurveillanceEchoHandler{
		logger:     logger,
		agg:        agg,
		scorer:     scorer,
		calibrator: calibrator,
		weights:    cfg,
		clusters:   clusters,
		ranker:     ranker,
	}
}

func (h *SurveillanceEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/wallets/:address/analysis", h.WalletAnalysis)
	g.GET("/wallets/:address/accuracy", h.WalletAccuracy)
	g.POST("/wallets/analyze", h.BatchAnalysis)

	g.POST("/predictions", h.AddPrediction)
	g.PUT("/predictions", h.UpdatePrediction)

	g.POST("/outcomes", h.RecordOutcome)
	g.PUT("/outcomes", h.UpdateOutcome)

	g.GET("/calibration", h.CalibrationStatus)
	g.POST("/calibration/run", h.RunCalibration)
	g.GET("/calibration/export", h.ExportCalibration)
	g.POST("/calibration/import", h.ImportCalibration)

	g.GET("/weights", h.GetWeights)
	g.POST("/weights", h.SetWeight)
	g.POST("/weights/preset", h.ApplyPreset)
	g.GET("/weights/impact", h.WeightImpact)

	g.POST("/clusters/analyze", h.AnalyzeClusters)

	g.POST("/alerts/rank", h.RankAlert)
	g.POST("/alerts/rank/batch", h.RankAlerts)
}

func (h *SurveillanceEchoHandler) WalletAnalysis(c echo.Context) error {
	req := &models.WalletAnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ev, err := h.agg.EvaluateWallet(c.Request().Context(), req.Address, usecase.EvaluateParams{Refresh: req.Refresh})
	if err != nil {
		h.logger.Error("wallet analysis error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, ev)
}

func (h *SurveillanceEchoHandler) WalletAccuracy(c echo.Context) error {
	req := &models.WalletAnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res := h.scorer.Analyze(req.Address, accuracy.AnalyzeOptions{Refresh: req.Refresh})
	return xhttp.SuccessResponse(c, res)
}

func (h *SurveillanceEchoHandler) BatchAnalysis(c echo.Context) error {
	req := &models.BatchAnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ranked, failed := h.agg.EvaluateWallets(c.Request().Context(), req.Wallets, usecase.EvaluateParams{})
	return xhttp.SuccessResponse(c, echo.Map{
		"ranked": ranked,
		"failed": failed,
	})
}

func (h *SurveillanceEchoHandler) AddPrediction(c echo.Context) error {
	req := &models.AddPredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.scorer.AddPrediction(req.Prediction); err != nil {
		h.logger.Error("add prediction error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.CreatedResponse(c, echo.Map{"tracked": true})
}

func (h *SurveillanceEchoHandler) UpdatePrediction(c echo.Context) error {
	req := &models.UpdatePredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	p := h.scorer.UpdatePredictionOutcome(req.WalletAddress, req.PredictionID, req.Outcome, req.RealizedPnl)
	if p == nil {
		return xhttp.NotFoundResponse(c, echo.Map{"predictionId": req.PredictionID})
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *SurveillanceEchoHandler) RecordOutcome(c echo.Context) error {
	req := &models.RecordOutcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rec, err := h.calibrator.RecordOutcome(req.WalletAddress, req.Score, req.Outcome, time.Now(), req.Metadata)
	if err != nil {
		h.logger.Error("record outcome error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.CreatedResponse(c, rec)
}

func (h *SurveillanceEchoHandler) UpdateOutcome(c echo.Context) error {
	req := &models.UpdateOutcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.WalletAddress == "" && req.OutcomeID == "" {
		return xhttp.BadRequestResponse(c, echo.Map{"error": "walletAddress or outcomeId required"})
	}

	var rec *models.OutcomeRecord
	if req.OutcomeID != "" {
		rec = h.calibrator.UpdateOutcomeByID(req.OutcomeID, req.Outcome)
	} else {
		rec = h.calibrator.UpdateOutcome(req.WalletAddress, req.Outcome)
	}
	if rec == nil {
		return xhttp.NotFoundResponse(c, echo.Map{"wallet": req.WalletAddress, "outcomeId": req.OutcomeID})
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *SurveillanceEchoHandler) CalibrationStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, echo.Map{
		"isCalibrated":    h.calibrator.IsCalibrated(),
		"lastCalibration": h.calibrator.LastCalibration(),
		"brierHistory":    h.calibrator.BrierHistory(),
	})
}

func (h *SurveillanceEchoHandler) RunCalibration(c echo.Context) error {
	res := h.calibrator.CalculateCalibration()
	return xhttp.SuccessResponse(c, res)
}

func (h *SurveillanceEchoHandler) ExportCalibration(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.calibrator.Export())
}

func (h *SurveillanceEchoHandler) ImportCalibration(c echo.Context) error {
	req := &models.CalibrationExport{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.calibrator.Import(*req); err != nil {
		h.logger.Error("calibration import error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, echo.Map{"imported": true})
}

func (h *SurveillanceEchoHandler) GetWeights(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.weights.Export())
}

func (h *SurveillanceEchoHandler) SetWeight(c echo.Context) error {
	req := &models.SetWeightRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var vr models.ValidationResult
	switch req.Kind {
	case "category":
		vr = h.weights.SetCategoryWeight(models.SignalCategory(req.Source), req.Weight)
	default:
		vr = h.weights.SetSignalWeight(models.SignalSource(req.Source), req.Weight)
	}
	if !vr.IsValid {
		return xhttp.BadRequestResponse(c, vr)
	}
	return xhttp.SuccessResponse(c, vr)
}

func (h *SurveillanceEchoHandler) ApplyPreset(c echo.Context) error {
	req := &models.ApplyPresetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	vr := h.weights.ApplyPreset(req.Preset)
	if !vr.IsValid {
		return xhttp.BadRequestResponse(c, vr)
	}
	return xhttp.SuccessResponse(c, h.weights.Export())
}

func (h *SurveillanceEchoHandler) WeightImpact(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.weights.AnalyzeWeightImpact())
}

func (h *SurveillanceEchoHandler) AnalyzeClusters(c echo.Context) error {
	req := &models.ClusterAnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	opts := clustering.AnalyzeOptions{BypassCooldown: req.BypassCooldown}
	if req.Sliding {
		return xhttp.SuccessResponse(c, h.clusters.AnalyzeTradesWithSlidingWindow(req.Trades, opts))
	}
	return xhttp.SuccessResponse(c, h.clusters.AnalyzeTrades(req.Trades, opts))
}

func (h *SurveillanceEchoHandler) RankAlert(c echo.Context) error {
	req := &models.RankAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res := h.ranker.RankAlert(&req.Composite, req.Filter, ranking.RankOptions{BypassCache: !req.UseCache})
	return xhttp.SuccessResponse(c, res)
}

func (h *SurveillanceEchoHandler) RankAlerts(c echo.Context) error {
	req := &models.RankAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	results := make([]*models.CompositeScoreResult, 0, len(req.Composites))
	for i := range req.Composites {
		results = append(results, &req.Composites[i])
	}
	res := h.ranker.RankAlerts(results, nil, ranking.RankOptions{BypassCache: true})
	return xhttp.SuccessResponse(c, res)
}
