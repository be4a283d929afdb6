package recognition

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
)

// Rejection reasons surfaced to the chat layer.
const (
	ReasonInvalidFormat   = "InvalidFormat"
	ReasonFailed          = "RecognitionFailed"
	ReasonBelowConfidence = "BelowConfidenceThreshold"
)

// Result is the orchestrated outcome: either an accepted plate (with
// confidence and whether it belongs to a registered vehicle) or a
// rejection reason. Cached image results carry the whole struct.
type Result struct {
	Accepted     bool
	Plate        string
	Confidence   float64
	IsRegistered bool
	Source       string // models.RecognitionSourceImage or ...Manual
	Reason       string
}

// Input is either a typed plate or an image on disk. ImageRef is the
// stable cache key (media content hash or URL); manual entries are
// never cached.
type Input struct {
	PlateText string
	ImageRef  string
	ImagePath string
}

// Orchestrator wraps the external recognizer with plate-grammar
// validation, a bounded TTL cache, and the confidence gate. A success
// below the configured minimum is downgraded before anyone sees it.
type Orchestrator struct {
	provider      Provider
	store         storage.Store
	cache         *resultCache
	minConfidence float64
}

// NewOrchestrator wires the orchestrator with its cache bounds
func NewOrchestrator(provider Provider, store storage.Store, minConfidence float64, cacheTTL time.Duration, cacheMax int) *Orchestrator {
	return &Orchestrator{
		provider:      provider,
		store:         store,
		cache:         newResultCache(cacheTTL, cacheMax),
		minConfidence: minConfidence,
	}
}

// Recognize resolves the input to a Result. operatorID is only used for
// the recognition log trail.
func (o *Orchestrator) Recognize(ctx context.Context, operatorID string, in Input) Result {
	if in.PlateText != "" {
		return o.recognizeManual(operatorID, in.PlateText)
	}
	return o.recognizeImage(ctx, operatorID, in)
}

func (o *Orchestrator) recognizeManual(operatorID, text string) Result {
	plate := strings.TrimSpace(text)
	if !ValidPlate(plate) {
		return Result{Reason: ReasonInvalidFormat, Source: models.RecognitionSourceManual}
	}

	// Manual entry is definitionally certain.
	result := Result{
		Accepted:   true,
		Plate:      plate,
		Confidence: 100,
		Source:     models.RecognitionSourceManual,
	}
	o.finishAccepted(&result, operatorID, 0)
	return result
}

func (o *Orchestrator) recognizeImage(ctx context.Context, operatorID string, in Input) Result {
	if in.ImageRef != "" {
		if cached, ok := o.cache.Get(in.ImageRef); ok {
			zap.S().Debugf("🔍 Recognition cache hit for %s", in.ImageRef)
			return cached
		}
	}

	start := time.Now()
	raw, err := o.provider.Recognize(ctx, in.ImagePath)
	latency := time.Since(start).Milliseconds()

	var result Result
	switch {
	case err != nil:
		zap.S().Warnf("⚠️ Plate recognition failed: %v", err)
		result = Result{Reason: ReasonFailed, Source: models.RecognitionSourceImage}
	case !raw.Success:
		zap.S().Infof("🔍 Recognizer found no plate: %s", raw.Message)
		result = Result{Reason: ReasonFailed, Source: models.RecognitionSourceImage}
	case raw.Confidence < o.minConfidence:
		zap.S().Infof("🔍 Plate %s below threshold (%.1f%% < %.1f%%)",
			raw.LicensePlate, raw.Confidence, o.minConfidence)
		result = Result{
			Reason:     ReasonBelowConfidence,
			Plate:      raw.LicensePlate,
			Confidence: raw.Confidence,
			Source:     models.RecognitionSourceImage,
		}
	default:
		result = Result{
			Accepted:   true,
			Plate:      raw.LicensePlate,
			Confidence: raw.Confidence,
			Source:     models.RecognitionSourceImage,
		}
		o.finishAccepted(&result, operatorID, latency)
	}

	if in.ImageRef != "" {
		o.cache.Put(in.ImageRef, result)
	}
	return result
}

// finishAccepted resolves whether the plate is a registered vehicle and
// appends the recognition log entry.
func (o *Orchestrator) finishAccepted(r *Result, operatorID string, latencyMs int64) {
	_, err := o.store.GetVehicleByPlate(r.Plate)
	switch {
	case err == nil:
		r.IsRegistered = true
	case errors.Is(err, storage.ErrNotFound):
		r.IsRegistered = false
	default:
		zap.S().Warnf("⚠️ Vehicle lookup failed for %s: %v", r.Plate, err)
	}

	logErr := o.store.CreateRecognitionLog(&models.RecognitionLog{
		LicensePlate: r.Plate,
		Source:       r.Source,
		Confidence:   r.Confidence,
		KnownVehicle: r.IsRegistered,
		LatencyMs:    latencyMs,
		OperatorID:   operatorID,
	})
	if logErr != nil {
		zap.S().Warnf("⚠️ Failed to record recognition log: %v", logErr)
	}
}

// CacheLen exposes the cache size for the stats endpoint.
func (o *Orchestrator) CacheLen() int {
	return o.cache.Len()
}
