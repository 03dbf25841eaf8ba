package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"sova-txcore/caching"
	"sova-txcore/goutils/settings"
)

type Topic string

const (
	TopicBalance   Topic = "balance"
	TopicAllowance Topic = "allowance"
	TopicQueue     Topic = "queue"
	TopicStaking   Topic = "staking"
)

// Tick is one dispatch of a topic. Keys lists the reads a kick asked for and is
// empty on a scheduled tick.
type Tick struct {
	Topic     Topic
	Keys      []caching.Key
	Scheduled bool
}

type Handler func(ctx context.Context, tick Tick)

// DefaultDebounce is how long a kick waits for more kicks before dispatching.
const DefaultDebounce = 200 * time.Millisecond

type topic struct {
	name     Topic
	interval time.Duration
	kick     chan struct{}

	// guarded by Scheduler.mu
	pending  map[caching.Key]struct{}
	handlers []Handler
}

// Scheduler emits refresh ticks per topic. Consumers subscribe instead of owning
// timers; kicks from confirmed transactions are coalesced.
type Scheduler struct {
	mu          sync.Mutex
	topics      map[Topic]*topic
	limiter     *rate.Limiter
	concurrency int
	debounce    time.Duration
}

// Intervals maps the configured refresh intervals to topics.
func Intervals(r *settings.Refresh) map[Topic]time.Duration {
	return map[Topic]time.Duration{
		TopicBalance:   time.Duration(r.BalanceIntervalSeconds) * time.Second,
		TopicAllowance: time.Duration(r.AllowanceIntervalSeconds) * time.Second,
		TopicQueue:     time.Duration(r.QueueIntervalSeconds) * time.Second,
		TopicStaking:   time.Duration(r.StakingIntervalSeconds) * time.Second,
	}
}

func NewScheduler(intervals map[Topic]time.Duration, concurrency int, debounce time.Duration) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}

	s := &Scheduler{
		topics: make(map[Topic]*topic, len(intervals)),
		// bounds dispatches across all topics
		limiter:     rate.NewLimiter(rate.Limit(10), concurrency),
		concurrency: concurrency,
		debounce:    debounce,
	}

	for name, interval := range intervals {
		s.topics[name] = &topic{
			name:     name,
			interval: interval,
			kick:     make(chan struct{}, 1),
			pending:  make(map[caching.Key]struct{}),
		}
	}

	return s
}

func (s *Scheduler) Subscribe(name Topic, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[name]
	if !ok {
		log.WithField("topic", name).Warn("subscribe to unknown refresh topic")

		return
	}

	t.handlers = append(t.handlers, handler)
}

// TopicFor maps a cached read to the topic that refreshes it.
func TopicFor(kind caching.ReadKind) Topic {
	switch kind {
	case caching.ReadAllowance:
		return TopicAllowance
	case caching.ReadQueueDelay, caching.ReadRedemption:
		return TopicQueue
	case caching.ReadStakingRate, caching.ReadStakingTotal, caching.ReadStakingUser, caching.ReadStakingEarned, caching.ReadStakingFinishTime:
		return TopicStaking
	default:
		return TopicBalance
	}
}

// Refresh kicks the topics owning keys. It never blocks.
func (s *Scheduler) Refresh(keys ...caching.Key) {
	kicked := make(map[Topic]*topic)

	s.mu.Lock()
	for _, key := range keys {
		t, ok := s.topics[TopicFor(key.Kind)]
		if !ok {
			continue
		}

		t.pending[key] = struct{}{}
		kicked[t.name] = t
	}
	s.mu.Unlock()

	for _, t := range kicked {
		select {
		case t.kick <- struct{}{}:
		default:
			// a kick is already queued and will pick up the new keys
		}
	}
}

// Run drives every topic until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	wg := new(sync.WaitGroup)

	for _, t := range s.topics {
		wg.Add(1)

		go func(t *topic) {
			defer wg.Done()

			s.runTopic(ctx, t)
		}(t)
	}

	wg.Wait()
}

func (s *Scheduler) runTopic(ctx context.Context, t *topic) {
	// a topic without an interval only runs on kicks
	var scheduled <-chan time.Time

	if t.interval > 0 {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		scheduled = ticker.C
	}

	log.WithField("topic", t.name).WithField("interval", t.interval).Debug("refresh topic started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-scheduled:
			s.dispatch(ctx, t, true)
		case <-t.kick:
			if s.debounce > 0 {
				timer := time.NewTimer(s.debounce)
				select {
				case <-ctx.Done():
					timer.Stop()

					return
				case <-timer.C:
				}
			}

			// drain a kick that arrived during the debounce window
			select {
			case <-t.kick:
			default:
			}

			s.dispatch(ctx, t, false)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, t *topic, scheduled bool) {
	s.mu.Lock()
	keys := make([]caching.Key, 0, len(t.pending))
	for key := range t.pending {
		keys = append(keys, key)
	}
	t.pending = make(map[caching.Key]struct{})
	handlers := make([]Handler, len(t.handlers))
	copy(handlers, t.handlers)
	s.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	tick := Tick{Topic: t.name, Keys: keys, Scheduled: scheduled}
	swg := sizedwaitgroup.New(s.concurrency)

	for _, handler := range handlers {
		swg.Add()

		go func(handler Handler) {
			defer swg.Done()

			handler(ctx, tick)
		}(handler)
	}

	swg.Wait()
}
