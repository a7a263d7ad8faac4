// Package rules holds the security rules evaluated by the engine. Rules are grouped into
// categories only for registration; the engine evaluates them as one list ordered by priority.
package rules

import (
	"context"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/store"
)

// Rule is a prioritized predicate over one request.
type Rule interface {
	Name() string
	Description() string
	// Priority orders evaluation: higher runs earlier
	Priority() int
	Enabled() bool
	Type() core.CheckType
	// Evaluate returns a Check, or nil when the rule has no opinion
	Evaluate(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error)
}

// EvalFunc is the evaluation body of a rule.
type EvalFunc func(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error)

// Options are shared by every rule evaluated for one request.
type Options struct {
	Config    *core.Config
	Logger    logrus.FieldLogger
	Store     store.KV
	Cache     *Cache
	Scheduler store.Scheduler
}

// Defer runs a bookkeeping write in the background.
func (o *Options) Defer(work func(ctx context.Context)) {
	store.Async(o.Scheduler, work)
}

func (o *Options) log(rule string, sc *core.SecurityContext) logrus.FieldLogger {
	return o.Logger.WithFields(logrus.Fields{"rule": rule, "ip": sc.IP, "path": sc.Path})
}

type rule struct {
	name        string
	description string
	priority    int
	checkType   core.CheckType
	enabled     bool
	eval        EvalFunc
}

// New creates an enabled rule.
func New(name, description string, priority int, checkType core.CheckType, eval EvalFunc) Rule {
	return &rule{
		name:        name,
		description: description,
		priority:    priority,
		checkType:   checkType,
		enabled:     true,
		eval:        eval,
	}
}

func (r *rule) Name() string         { return r.name }
func (r *rule) Description() string  { return r.description }
func (r *rule) Priority() int        { return r.priority }
func (r *rule) Enabled() bool        { return r.enabled }
func (r *rule) Type() core.CheckType { return r.checkType }

func (r *rule) Evaluate(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	return r.eval(ctx, sc, opts)
}

// All returns every built-in rule from the four categories.
func All() []Rule {
	var all []Rule
	all = append(all, RateLimitRules()...)
	all = append(all, AuthFailureRules()...)
	all = append(all, BotRules()...)
	all = append(all, DDoSRules()...)
	return all
}

// Sort orders rules by descending priority, keeping registration order for ties.
func Sort(rs []Rule) []Rule {
	out := append([]Rule(nil), rs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// eventMember is a unique sorted-set member for an event at ts.
func eventMember(ts int64) string {
	return strconv.FormatInt(ts, 10) + "-" + uuid.NewString()
}
