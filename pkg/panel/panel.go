package panel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Nickm615/personalization-custom-app-example/pkg/personalization"
)

// LoadingState is the lifecycle of a Panel.
type LoadingState string

const (
	StateIdle    LoadingState = "idle"
	StateLoading LoadingState = "loading"
	StateSuccess LoadingState = "success"
	StateError   LoadingState = "error"
)

// State is what the panel currently shows. Snapshot is set only in
// StateSuccess and Error only in StateError.
type State struct {
	Loading    LoadingState `json:"loadingState"`
	Snapshot   *Snapshot    `json:"data,omitempty"`
	Error      string       `json:"error,omitempty"`
	Generation uint64       `json:"generation"`
}

var (
	// ErrStale is returned by Refresh when a newer refresh started before
	// this one finished. Its result was discarded.
	ErrStale = errors.New("panel: refresh superseded")
	// ErrMissingParams is returned when the environment, item or language
	// id is empty. No fetch is made.
	ErrMissingParams = errors.New("panel: environment, item and language ids are required")
)

// SnapshotLoader loads one snapshot.
type SnapshotLoader interface {
	Load(ctx context.Context, environmentID, itemID, languageID string) (*Snapshot, error)
}

// RefreshObserver is told how each refresh ended.
type RefreshObserver interface {
	ObserveRefresh(state string)
}

// Panel publishes the result of the most recent refresh. Starting a refresh
// cancels the one in flight, and results of superseded refreshes never
// replace newer state.
type Panel struct {
	loader   SnapshotLoader
	logger   *zap.Logger
	observer RefreshObserver

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc

	state atomic.Pointer[State]
}

// PanelOption configures a Panel.
type PanelOption func(*Panel)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PanelOption {
	return func(p *Panel) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRefreshObserver reports refresh outcomes to o.
func WithRefreshObserver(o RefreshObserver) PanelOption {
	return func(p *Panel) { p.observer = o }
}

// NewPanel creates an idle Panel.
func NewPanel(loader SnapshotLoader, opts ...PanelOption) *Panel {
	p := &Panel{loader: loader, logger: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	p.state.Store(&State{Loading: StateIdle})
	return p
}

// State returns the published state.
func (p *Panel) State() State {
	return *p.state.Load()
}

// Refresh loads a new snapshot and publishes it, or publishes the error. The
// state is replaced as a whole; a failed refresh never leaves parts of the
// previous snapshot visible.
func (p *Panel) Refresh(ctx context.Context, environmentID, itemID, languageID string) (*Snapshot, error) {
	if environmentID == "" || itemID == "" || languageID == "" {
		return nil, ErrMissingParams
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.state.Store(&State{Loading: StateLoading, Generation: gen})
	p.mu.Unlock()

	snap, err := p.loader.Load(ctx, environmentID, itemID, languageID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		p.logger.Debug("discarding stale panel refresh",
			zap.String("item_id", itemID), zap.Uint64("generation", gen))
		p.observe("stale")
		return nil, ErrStale
	}
	p.cancel = nil

	if err != nil {
		p.state.Store(&State{Loading: StateError, Error: errorMessage(err), Generation: gen})
		p.observe(string(StateError))
		return nil, err
	}
	p.state.Store(&State{Loading: StateSuccess, Snapshot: snap, Generation: gen})
	p.observe(string(StateSuccess))
	return snap, nil
}

// Close cancels the refresh in flight, if any.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Panel) observe(state string) {
	if p.observer != nil {
		p.observer.ObserveRefresh(state)
	}
}

// errorMessage is the text shown in the error state.
func errorMessage(err error) string {
	var fe *personalization.FetchError
	if errors.As(err, &fe) {
		return fe.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
