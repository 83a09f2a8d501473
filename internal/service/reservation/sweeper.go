package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepTTL      = 30 * time.Minute
	defaultSweepBatch    = 100
)

var (
	sweeperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_reservation_sweeper_runs_total",
		Help: "Total number of stale reservation sweeps grouped by result.",
	}, []string{"result"})
	sweeperReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_reservation_sweeper_released_total",
		Help: "Total number of carts released by the sweeper.",
	})
	sweeperLastReleased = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_reservation_sweeper_last_released",
		Help: "Number of carts released during the last sweep.",
	})
)

// SweeperOptions задаёт параметры воркера очистки брошенных корзин.
type SweeperOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	TTL       time.Duration
	BatchSize int
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*SweeperOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Interval = interval
	}
}

// WithTTL задаёт время жизни резерва с момента последней мутации корзины.
func WithTTL(ttl time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.TTL = ttl
	}
}

// WithBatchSize задаёт максимум корзин, обрабатываемых за один проход.
func WithBatchSize(batchSize int) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.BatchSize = batchSize
	}
}

// Sweeper периодически находит корзины, не менявшиеся дольше TTL,
// и возвращает их резервы в доступный остаток.
type Sweeper struct {
	engine    *Engine
	carts     domain.CartRepository
	logger    *log.Entry
	interval  time.Duration
	ttl       time.Duration
	batchSize int
}

// NewSweeper создаёт воркер очистки брошенных корзин.
func NewSweeper(engine *Engine, carts domain.CartRepository, options ...SweeperOption) *Sweeper {
	opts := SweeperOptions{
		Interval:  defaultSweepInterval,
		TTL:       defaultSweepTTL,
		BatchSize: defaultSweepBatch,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reservation-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultSweepTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatch
	}

	return &Sweeper{
		engine:    engine,
		carts:     carts,
		logger:    logger,
		interval:  opts.Interval,
		ttl:       opts.TTL,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.engine == nil || s.carts == nil {
		s.logger.Warn("reservation sweeper is disabled: dependencies are nil")
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	released, err := s.SweepOnce(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweeperRunsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("reservation sweep failed")
		return
	}

	sweeperRunsTotal.WithLabelValues("ok").Inc()
	sweeperLastReleased.Set(float64(released))
	if released > 0 {
		s.logger.WithField("released", released).Info("stale reservations released")
	}
}

// SweepOnce освобождает резервы всех корзин, не менявшихся дольше TTL
// относительно now. Возвращает количество освобождённых корзин.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	cutoff := now.Add(-s.ttl)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		stale, err := s.carts.ListStale(cutoff, s.batchSize)
		if err != nil {
			return total, err
		}
		if len(stale) == 0 {
			return total, nil
		}

		batchReleased := 0
		for _, cart := range stale {
			if err := s.engine.ReleaseCart(ctx, cart.CustomerID); err != nil {
				s.logger.WithError(err).WithField("customer_id", cart.CustomerID).Warn("failed to release stale cart")
				continue
			}
			batchReleased++
			sweeperReleasedTotal.Inc()
		}
		total += batchReleased

		// Полностью неудачный batch вернётся тем же списком, выходим.
		if len(stale) < s.batchSize || batchReleased == 0 {
			return total, nil
		}
	}
}
