package otphttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	core "github.com/otpbuy/otpbuy/core"
	"github.com/otpbuy/otpbuy/payments"
	"github.com/otpbuy/otpbuy/poll"
	memorylimiter "github.com/otpbuy/otpbuy/ratelimit/memory"
	"github.com/otpbuy/otpbuy/stock"
	memorystore "github.com/otpbuy/otpbuy/storage/memory"
	redisstore "github.com/otpbuy/otpbuy/storage/redis"
)

const stockCacheTTL = 60 * time.Second

// Service wraps core.Service with net/http mounting helpers plus the pollers
// and gateway clients the API surface drives.
type Service struct {
	svc      *core.Service
	rd       *redis.Client
	rl       RateLimiter
	clientIP ClientIPFunc

	stock   *stock.Cache
	actPoll *poll.ActivationPoller
	payPoll *poll.PaymentPoller

	paytm     *payments.Paytm
	cryptomus *payments.Cryptomus
}

// NewService constructs a core.Service and wraps it for net/http mounting.
func NewService(cfg core.Config) (*Service, error) {
	coreSvc, err := core.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	// Default to in-memory ephemeral store for dev/single-instance use.
	coreSvc = coreSvc.WithEphemeralStore(memorystore.NewKV(), core.EphemeralMemory)
	s := &Service{
		svc:      coreSvc,
		rl:       memorylimiter.New(ToMemoryLimits(DefaultRateLimits())),
		clientIP: DefaultClientIP(),
	}
	s.stock = stock.NewCache(coreSvc, stockCacheTTL)
	s.actPoll = poll.NewActivationPoller(coreSvc, nil, coreSvc.Options().PollInterval)
	s.payPoll = poll.NewPaymentPoller(coreSvc, nil)
	return s, nil
}

func (s *Service) WithPostgres(pg *pgxpool.Pool) *Service { s.svc = s.svc.WithPostgres(pg); return s }

func (s *Service) WithRedis(rd *redis.Client) *Service {
	s.rd = rd
	if rd != nil {
		s.svc = s.svc.WithEphemeralStore(redisstore.NewKV(rd), core.EphemeralRedis)
	}
	return s
}

func (s *Service) WithProviders(r core.ProviderResolver) *Service {
	s.svc = s.svc.WithProviders(r)
	return s
}

func (s *Service) WithNotifier(n core.Notifier) *Service {
	s.svc = s.svc.WithNotifier(n)
	s.actPoll = poll.NewActivationPoller(s.svc, n, s.svc.Options().PollInterval)
	s.payPoll = poll.NewPaymentPoller(s.svc, n)
	return s
}

func (s *Service) WithRateLimiter(rl RateLimiter) *Service { s.rl = rl; return s }
func (s *Service) DisableRateLimiter() *Service            { s.rl = nil; return s }

func (s *Service) WithClientIPFunc(fn ClientIPFunc) *Service {
	if fn == nil {
		s.clientIP = DefaultClientIP()
		return s
	}
	s.clientIP = fn
	return s
}

func (s *Service) WithPaytm(cfg payments.PaytmConfig, hc *http.Client) *Service {
	s.paytm = payments.NewPaytm(cfg, hc)
	return s
}

func (s *Service) WithCryptomus(cfg payments.CryptomusConfig, hc *http.Client) *Service {
	s.cryptomus = payments.NewCryptomus(cfg, hc)
	return s
}

func (s *Service) WithEphemeralStore(store core.EphemeralStore, mode core.EphemeralMode) *Service {
	s.svc = s.svc.WithEphemeralStore(store, mode)
	return s
}

func (s *Service) Core() *core.Service { return s.svc }

// Shutdown stops all activation and payment pollers, waiting for in-flight
// ticks to finish.
func (s *Service) Shutdown() {
	s.actPoll.Shutdown()
	s.payPoll.Shutdown()
}

func (s *Service) allow(r *http.Request, bucket string) bool {
	if s == nil || s.rl == nil {
		return true
	}
	ipFn := s.clientIP
	if ipFn == nil {
		ipFn = DefaultClientIP()
	}
	ip := ipFn(r)
	if strings.TrimSpace(ip) == "" {
		return true
	}
	key := "otp:" + bucket + ":ip:" + ip
	ok, err := s.rl.AllowNamed(bucket, key)
	if err != nil {
		return true
	}
	return ok
}
