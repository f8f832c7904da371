// Package engine wires bundle loading, certificate validation, XAdES signing
// and verification, and expiry notifications into one service object.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/georgepadayatti/taxsign/certvalidator"
	"github.com/georgepadayatti/taxsign/config"
	"github.com/georgepadayatti/taxsign/keys"
	"github.com/georgepadayatti/taxsign/kind"
	"github.com/georgepadayatti/taxsign/logging"
	"github.com/georgepadayatti/taxsign/metrics"
	"github.com/georgepadayatti/taxsign/notify"
	"github.com/georgepadayatti/taxsign/xades"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options configures an Engine. Zero values select defaults, field by field
// for the policy limits.
type Options struct {
	Policy       certvalidator.Policy
	Store        notify.Store
	DedupTTL     time.Duration
	SweepWorkers int
	Clock        clockwork.Clock
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Engine is the certificate lifecycle and signing service.
type Engine struct {
	validator *certvalidator.Validator
	signer    *xades.Signer
	verifier  *xades.Verifier
	scheduler *notify.Scheduler
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics

	closers []func() error
}

// New creates an engine.
func New(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := logging.OrNop(opts.Logger)
	store := opts.Store
	if store == nil {
		store = notify.NewMemoryStore(time.Hour)
	}
	defaults := certvalidator.DefaultPolicy()
	if opts.Policy.MinRSABits == 0 {
		opts.Policy.MinRSABits = defaults.MinRSABits
	}
	if opts.Policy.MaxValidityYears == 0 {
		opts.Policy.MaxValidityYears = defaults.MaxValidityYears
	}

	validator := certvalidator.NewValidator(opts.Policy, clock)
	schedOpts := []notify.Option{
		notify.WithThresholds(validator.Policy().Thresholds),
		notify.WithLogger(logger.Named("notify")),
		notify.WithMetrics(opts.Metrics),
	}
	if opts.DedupTTL > 0 {
		schedOpts = append(schedOpts, notify.WithTTL(opts.DedupTTL))
	}
	if opts.SweepWorkers > 0 {
		schedOpts = append(schedOpts, notify.WithSweepWorkers(opts.SweepWorkers))
	}

	return &Engine{
		validator: validator,
		signer:    xades.NewSigner(clock),
		verifier:  xades.NewVerifier(),
		scheduler: notify.NewScheduler(store, schedOpts...),
		clock:     clock,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// FromConfig creates an engine from application configuration. The caller
// must Close the engine to release the dedup store connection.
func FromConfig(cfg *config.AppConfig, logger *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	policy, err := cfg.CertificatePolicy()
	if err != nil {
		return nil, fmt.Errorf("certificate policy: %w", err)
	}

	nc := cfg.Notification
	var (
		store   notify.Store
		closers []func() error
	)
	switch nc.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     nc.Redis.Addr,
			Password: nc.Redis.Password,
			DB:       nc.Redis.DB,
		})
		store = notify.NewRedisStore(client, nc.Redis.KeyPrefix)
		closers = append(closers, client.Close)
	default:
		store = notify.NewMemoryStore(nc.DedupTTL)
	}

	e := New(Options{
		Policy:       policy,
		Store:        store,
		DedupTTL:     nc.DedupTTL,
		SweepWorkers: nc.SweepWorkers,
		Logger:       logger,
		Metrics:      m,
	})
	e.closers = closers
	return e, nil
}

// Close releases resources held by the engine.
func (e *Engine) Close() error {
	var first error
	for _, c := range e.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}

// Policy returns the certificate policy in effect.
func (e *Engine) Policy() certvalidator.Policy {
	return e.validator.Policy()
}

// Inspect loads a PKCS#12 bundle and validates its certificate.
//
// A load failure is returned as an error of kind Malformed, BadPassword or
// MissingKeyOrCert. Validation problems are reported in the Result.
func (e *Engine) Inspect(data []byte, password string) (*certvalidator.Result, error) {
	bundle, err := keys.LoadPKCS12(data, password)
	if err != nil {
		e.logger.Warn("Failed to load certificate bundle",
			zap.String("kind", string(kind.Of(err))),
			zap.Error(err))
		e.metrics.RecordBundleLoad(string(kind.Of(err)))
		return nil, err
	}
	e.metrics.RecordBundleLoad("ok")

	result := e.validator.Validate(bundle)
	errs, warns := findingNames(result)
	e.metrics.RecordValidation(result.IsValid, errs, warns)

	fields := []zap.Field{
		zap.Bool("valid", result.IsValid),
		zap.Strings("errors", errs),
		zap.Strings("warnings", warns),
	}
	if result.Facts != nil {
		fields = append(fields,
			zap.String("subject", result.Facts.Subject.CommonName),
			zap.Time("not_after", result.Facts.NotAfter))
	}
	e.logger.Info("Certificate validated", fields...)
	return result, nil
}

// Sign validates the bundle and signs doc with it. The validation result is
// returned even when signing is refused, so callers can report why.
func (e *Engine) Sign(doc, bundleData []byte, password string) ([]byte, *certvalidator.Result, error) {
	result, err := e.Inspect(bundleData, password)
	if err != nil {
		return nil, nil, err
	}
	vb, err := result.Bundle()
	if err != nil {
		e.logger.Warn("Refusing to sign with an invalid certificate", zap.Error(err))
		e.metrics.RecordSignature("refused", 0)
		return nil, result, err
	}

	signed, err := e.SignValidated(doc, vb)
	if err != nil {
		return nil, result, err
	}
	return signed, result, nil
}

// SignValidated signs doc with a bundle that already passed validation.
func (e *Engine) SignValidated(doc []byte, vb *certvalidator.ValidatedBundle) ([]byte, error) {
	start := e.clock.Now()
	signed, err := e.signer.Sign(doc, vb)
	elapsed := e.clock.Since(start)
	if err != nil {
		e.logger.Error("Failed to sign document",
			zap.String("kind", string(kind.Of(err))),
			zap.Error(err))
		e.metrics.RecordSignature(string(kind.Of(err)), elapsed)
		return nil, err
	}
	e.logger.Info("Document signed",
		zap.Int("input_bytes", len(doc)),
		zap.Int("output_bytes", len(signed)),
		zap.Duration("duration", elapsed))
	e.metrics.RecordSignature("ok", elapsed)
	return signed, nil
}

// Verify checks the enveloped signature of doc.
func (e *Engine) Verify(doc []byte) *xades.Verification {
	v := e.verifier.Verify(doc)
	result := "valid"
	if len(v.Errors) > 0 {
		result = string(v.Errors[0])
	}
	e.logger.Info("Signature verified",
		zap.Bool("structurally_valid", v.StructurallyValid),
		zap.Bool("signature_valid", v.SignatureValid),
		zap.String("result", result))
	e.metrics.RecordVerification(result)
	return v
}

// CheckExpiry returns the notification due for a tenant certificate expiring
// at notAfter, if any.
func (e *Engine) CheckExpiry(ctx context.Context, tenantID string, notAfter time.Time) (*notify.Event, bool) {
	return e.scheduler.MaybeNotify(ctx, tenantID, notAfter, e.clock.Now())
}

// Sweep checks every subject and returns the notifications due.
func (e *Engine) Sweep(ctx context.Context, subjects []notify.Subject) ([]notify.SweepResult, error) {
	results, err := e.scheduler.Sweep(ctx, subjects, e.clock.Now())
	if err != nil {
		return nil, err
	}
	e.logger.Info("Expiry sweep finished",
		zap.Int("subjects", len(subjects)),
		zap.Int("notifications", len(notify.Events(results))))
	return results, nil
}

func findingNames(r *certvalidator.Result) (errs, warns []string) {
	errs = make([]string, 0, len(r.Errors))
	for _, k := range r.Errors {
		errs = append(errs, string(k))
	}
	warns = make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		warns = append(warns, string(w))
	}
	return errs, warns
}
