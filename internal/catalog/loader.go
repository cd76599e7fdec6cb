// Package catalog loads the remote metric catalog once per dashboard
// lifetime. Failures keep the built-in catalog.
package catalog

import (
	"context"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/climagrid/internal/abortable"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/model"
	"github.com/tphakala/climagrid/internal/observability/metrics"
	"github.com/tphakala/climagrid/internal/state"
)

// ErrInvalidCatalog is returned by Parse for payloads that are not a usable
// catalog object.
var ErrInvalidCatalog = errors.NewStd("metric catalog payload is not a usable object")

// API fetches the raw catalog document.
type API interface {
	MetricCatalog(ctx context.Context) ([]byte, error)
}

// Deps are the collaborators of a Loader.
type Deps struct {
	Scheduler abortable.Poster
	Writer    *state.CatalogWriter
	API       API
	Metrics   *metrics.ClientMetrics
	Logger    logger.Logger
}

// Loader replaces the catalog with the server's copy. Load and Close must
// be called on the event loop.
type Loader struct {
	deps    Deps
	slot    *abortable.Slot
	log     logger.Logger
	started bool
}

// New creates a loader.
func New(deps Deps) *Loader {
	log := deps.Logger
	if log == nil {
		log = logger.Global().Module("catalog")
	}
	return &Loader{
		deps: deps,
		slot: abortable.NewSlot(metrics.CoordinatorCatalog, deps.Metrics),
		log:  log,
	}
}

// Load fetches the catalog bound to ctx. Only the first call does anything;
// there is no retry.
func (l *Loader) Load(ctx context.Context) {
	if l.started {
		return
	}
	l.started = true

	gen := l.slot.Supersede()
	h := abortable.Start(ctx, l.deps.Scheduler,
		func(ctx context.Context) (model.MetricCatalog, error) {
			body, err := l.deps.API.MetricCatalog(ctx)
			if err != nil {
				return nil, err
			}
			return Parse(body)
		},
		func(catalog model.MetricCatalog, err error) {
			l.complete(gen, catalog, err)
		})
	l.slot.Fly(gen, h)
}

// Close cancels a load still in flight.
func (l *Loader) Close() {
	l.slot.Abort()
}

// Phase returns the phase of the load.
func (l *Loader) Phase() abortable.Phase {
	return l.slot.Phase()
}

func (l *Loader) complete(gen uint64, catalog model.MetricCatalog, err error) {
	if !l.slot.Current(gen) {
		return
	}
	if err != nil {
		if abortable.IsAbort(err) {
			l.slot.Settle(gen, metrics.OutcomeAborted)
			return
		}
		l.log.Warn("Metric catalog unavailable, keeping built-in metrics", logger.Error(err))
		l.slot.Settle(gen, metrics.OutcomeFailed)
		return
	}

	l.deps.Writer.Replace(catalog)
	l.slot.Settle(gen, metrics.OutcomeCommitted)
	l.log.Info("Metric catalog loaded", logger.Int("metrics", len(catalog)))
}

// Parse decodes a catalog document. Any JSON object is accepted and replaces
// the catalog wholesale, even when it yields no entries. Members map metric
// keys to objects with string label and unit; a missing label falls back to
// the key and a missing unit is empty. Entries of any other shape are skipped.
func Parse(body []byte) (model.MetricCatalog, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, errors.New(ErrInvalidCatalog).
			Component("catalog").
			Category(errors.CategoryParsing).
			Priority(errors.PriorityLow).
			Context("operation", "parse_catalog").
			Build()
	}

	catalog := make(model.MetricCatalog)
	for key, value := range obj.Map() {
		if key == "" {
			continue
		}
		entry, err := value.Object()
		if err != nil {
			continue
		}
		descriptor, ok := parseEntry(key, entry)
		if !ok {
			continue
		}
		catalog[key] = descriptor
	}

	return catalog, nil
}

func parseEntry(key string, entry *jason.Object) (model.MetricDescriptor, bool) {
	d := model.MetricDescriptor{Key: key, Label: key}
	members := entry.Map()

	if v, ok := members["label"]; ok {
		label, err := v.String()
		if err != nil {
			return d, false
		}
		if label != "" {
			d.Label = label
		}
	}
	if v, ok := members["unit"]; ok {
		unit, err := v.String()
		if err != nil {
			return d, false
		}
		d.Unit = unit
	}
	return d, true
}
