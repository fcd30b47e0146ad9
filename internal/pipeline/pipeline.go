// Package pipeline applies ordered handler chains to probe samples.
// The handler set is closed: an index handler derives the grouping key
// and a store handler commits the sample to a bounded store. Samples
// move by value so sibling chains never observe each other's changes.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/netpulsehq/collector/internal/events"
	"github.com/netpulsehq/collector/internal/metrics"
	"github.com/netpulsehq/collector/internal/store"
	"github.com/netpulsehq/collector/pkg/types"
)

// ErrMissingIndexField signals a sample whose payload lacks the
// configured index field. The sample is dropped from the chain.
var ErrMissingIndexField = errors.New("index field missing from payload")

// ErrUnkeyedSample signals a store handler reached before any index
// handler assigned a key.
var ErrUnkeyedSample = errors.New("sample has no key")

// Handler transforms or commits one sample. Implementations must not
// retain the sample past the call.
type Handler interface {
	Name() string
	Handle(sample types.Sample) (types.Sample, error)
}

// IndexHandler derives the sample key from a payload field.
type IndexHandler struct {
	field string
}

func NewIndexHandler(field string) (*IndexHandler, error) {
	if field == "" {
		return nil, errors.New("index handler requires a field")
	}
	return &IndexHandler{field: field}, nil
}

func (h *IndexHandler) Name() string { return "index" }

func (h *IndexHandler) Handle(sample types.Sample) (types.Sample, error) {
	if sample.Payload == nil {
		return sample, fmt.Errorf("field %q: %w", h.field, ErrMissingIndexField)
	}
	value, ok := sample.Payload.Field(h.field)
	if !ok || value == "" {
		return sample, fmt.Errorf("field %q: %w", h.field, ErrMissingIndexField)
	}
	sample.Key = value
	return sample, nil
}

// StoreHandler commits keyed samples into a bounded store.
type StoreHandler struct {
	store *store.Store
}

func NewStoreHandler(s *store.Store) (*StoreHandler, error) {
	if s == nil {
		return nil, errors.New("store handler requires a store")
	}
	return &StoreHandler{store: s}, nil
}

func (h *StoreHandler) Name() string { return "store" }

func (h *StoreHandler) Handle(sample types.Sample) (types.Sample, error) {
	if sample.Key == "" {
		return sample, ErrUnkeyedSample
	}
	h.store.Write(sample.Key, sample)
	return sample, nil
}

// Store exposes the handler's bounded store for the query facade.
func (h *StoreHandler) Store() *store.Store { return h.store }

// Chain is the ordered handler list for one data type.
type Chain struct {
	dataType string
	handlers []Handler

	logger     *slog.Logger
	metricsRec metrics.PipelineRecorder
	eventsRec  events.Recorder
}

type ChainOption func(*Chain)

func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetricsRecorder(rec metrics.PipelineRecorder) ChainOption {
	return func(c *Chain) {
		if rec != nil {
			c.metricsRec = rec
		}
	}
}

func WithEventRecorder(rec events.Recorder) ChainOption {
	return func(c *Chain) {
		if rec != nil {
			c.eventsRec = rec
		}
	}
}

func NewChain(dataType string, handlers []Handler, opts ...ChainOption) (*Chain, error) {
	if dataType == "" {
		return nil, errors.New("chain requires a data type")
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("chain for %q has no handlers", dataType)
	}
	c := &Chain{
		dataType:   dataType,
		handlers:   handlers,
		metricsRec: metrics.NoopPipelineRecorder{},
		eventsRec:  events.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Chain) DataType() string { return c.dataType }

// Process runs the sample through the chain in declared order. A
// handler error drops the sample from this chain only.
func (c *Chain) Process(sample types.Sample) error {
	current := sample
	for _, h := range c.handlers {
		next, err := h.Handle(current)
		if err != nil {
			c.metricsRec.IncHandlerDrops(c.dataType)
			c.eventsRec.Record(types.Event{
				Type:      types.EventSampleDrop,
				Timestamp: time.Now().UTC(),
				ProbeName: sample.ProbeName,
				Key:       current.Key,
				Details:   map[string]any{"handler": h.Name(), "error": err.Error()},
			})
			if c.logger != nil {
				c.logger.Warn("sample dropped from chain",
					"data_type", c.dataType,
					"handler", h.Name(),
					"probe", sample.ProbeName,
					"error", err,
				)
			}
			return fmt.Errorf("handler %s: %w", h.Name(), err)
		}
		if _, ok := h.(*StoreHandler); ok {
			c.metricsRec.IncStoreWrites(c.dataType)
		}
		current = next
	}
	return nil
}

// Dispatcher fans emitted samples out to every chain declared for the
// sample's data type. Chains are independent: a drop in one never
// affects its siblings.
type Dispatcher struct {
	chains map[string][]*Chain
}

func NewDispatcher(chains ...*Chain) *Dispatcher {
	d := &Dispatcher{chains: make(map[string][]*Chain)}
	for _, c := range chains {
		if c == nil {
			continue
		}
		d.chains[c.dataType] = append(d.chains[c.dataType], c)
	}
	return d
}

// Dispatch routes each sample to all chains of dataType. Samples with
// no matching chain are ignored.
func (d *Dispatcher) Dispatch(dataType string, samples []types.Sample) {
	chains := d.chains[dataType]
	if len(chains) == 0 {
		return
	}
	for _, sample := range samples {
		for _, chain := range chains {
			_ = chain.Process(sample)
		}
	}
}

// DataTypes returns the data types with at least one chain.
func (d *Dispatcher) DataTypes() []string {
	out := make([]string, 0, len(d.chains))
	for dt := range d.chains {
		out = append(out, dt)
	}
	return out
}
