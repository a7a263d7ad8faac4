package denycache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/store"
)

const keyPrefix = "security:deny"

// Manager looks up and records cached denies. It is advisory: every failure is logged
// and reported as a miss, never as a deny.
type Manager struct {
	backend Backend
	cfg     core.DenyCacheConfig
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewManager creates a manager over backend using the key strategy in cfg.
func NewManager(backend Backend, cfg core.DenyCacheConfig, log logrus.FieldLogger, now func() time.Time) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{backend: backend, cfg: cfg, log: log, now: now}
}

// New picks the backend named by cfg.DenyCache.Backend.
func New(cfg *core.Config, kv store.KV, log logrus.FieldLogger, now func() time.Time) (*Manager, error) {
	var backend Backend
	switch cfg.DenyCache.Backend {
	case core.DenyCacheKV, "":
		backend = NewKVBackend(kv, log)
	case core.DenyCacheMemory:
		backend = NewMemoryBackend(now)
	default:
		return nil, fmt.Errorf("%w: unknown deny cache backend %q", core.ErrInvalidConfig, cfg.DenyCache.Backend)
	}
	return NewManager(backend, cfg.DenyCache, log, now), nil
}

// Backend returns the underlying backend.
func (m *Manager) Backend() Backend { return m.backend }

// Start begins periodic pruning when the backend is in-process. The returned function
// stops it.
func (m *Manager) Start() func() {
	mem, ok := m.backend.(*MemoryBackend)
	if !ok {
		return func() {}
	}
	stop, err := mem.StartPruning(m.cfg.PruneSchedule, m.log)
	if err != nil {
		m.log.WithError(err).WithField("schedule", m.cfg.PruneSchedule).Warn("deny cache pruning disabled")
		return func() {}
	}
	return stop
}

// Key builds security:deny:<reason>:<ip>[:<path>][:<uahash>].
func (m *Manager) Key(reason Reason, sc *core.SecurityContext) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteByte(':')
	b.WriteString(string(reason))
	b.WriteByte(':')
	b.WriteString(sc.IP)
	if m.cfg.IncludePath {
		b.WriteByte(':')
		b.WriteString(sc.Path)
	}
	if m.cfg.IncludeUserAgent {
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(xxhash.Sum64String(sc.UserAgent), 16))
	}
	return b.String()
}

// Check returns the first live entry for sc in reason order. Expired entries found on the
// way are deleted.
func (m *Manager) Check(ctx context.Context, sc *core.SecurityContext) (entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("deny cache lookup failed")
			entry = nil
		}
	}()

	now := m.now().UnixMilli()
	for _, reason := range Order {
		key := m.Key(reason, sc)
		e, ok := m.backend.Get(ctx, key)
		if !ok {
			continue
		}
		if e.Live(now) {
			return e
		}
		m.backend.Delete(ctx, key)
	}
	return nil
}

// Store records a deny for reason built from the blocked check.
func (m *Manager) Store(ctx context.Context, sc *core.SecurityContext, reason Reason, check *core.Check) (entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("deny cache store failed")
			entry = nil
		}
	}()

	ttl := reason.TTL()
	if ttl <= 0 {
		m.log.WithField("reason", reason).Warn("no ttl for deny reason")
		return nil
	}
	now := m.now().UnixMilli()
	e := &Entry{
		Reason:    reason,
		Until:     now + ttl.Milliseconds(),
		IP:        sc.IP,
		Path:      sc.Path,
		CreatedAt: now,
	}
	if check != nil {
		e.Evidence = check.Details
		e.RuleID = check.RuleID
		e.Severity = check.Severity
		e.Message = check.Reason
	}
	m.backend.Put(ctx, m.Key(reason, sc), e, ttl)
	m.log.WithFields(logrus.Fields{"reason": reason, "ip": sc.IP, "until": e.Until}).Debug("deny cached")
	return e
}
