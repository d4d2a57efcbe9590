package detector

import (
	"context"
	"sort"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownModel = errors.New("unknown model")

// Loader builds the detector for one model. It is called at most once per
// model label for the lifetime of a Registry.
type Loader func(ctx context.Context, label, modelPath string) (Detector, error)

// Registry hands out detectors by model label, loading each on first use
// and keeping it until Close. There is no eviction.
type Registry struct {
	paths  map[string]string
	load   Loader
	logger golog.Logger

	group singleflight.Group

	mu     sync.Mutex
	loaded map[string]Detector
}

func NewRegistry(paths map[string]string, load Loader, logger golog.Logger) *Registry {
	cp := make(map[string]string, len(paths))
	for k, v := range paths {
		cp[k] = v
	}

	return &Registry{
		paths:  cp,
		load:   load,
		logger: logger,
		loaded: make(map[string]Detector),
	}
}

// Get returns the detector for label, loading it if needed. Concurrent
// first calls for the same label share a single load; loads of other
// labels and Loaded never wait on it.
func (r *Registry) Get(ctx context.Context, label string) (Detector, error) {
	path, ok := r.paths[label]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownModel, "%q", label)
	}

	if det, ok := r.lookup(label); ok {
		return det, nil
	}

	v, err, _ := r.group.Do(label, func() (interface{}, error) {
		if det, ok := r.lookup(label); ok {
			return det, nil
		}

		r.logger.Infow("loading model", "model", label, "path", path)
		det, err := r.load(ctx, label, path)
		if err != nil {
			return nil, errors.Wrapf(err, "load model %q", label)
		}

		r.mu.Lock()
		r.loaded[label] = det
		r.mu.Unlock()
		return det, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Detector), nil
}

func (r *Registry) lookup(label string) (Detector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	det, ok := r.loaded[label]
	return det, ok
}

// Loaded reports whether label has already been loaded.
func (r *Registry) Loaded(label string) bool {
	_, ok := r.lookup(label)
	return ok
}

// Labels returns every known model label in lexical order.
func (r *Registry) Labels() []string {
	labels := make([]string, 0, len(r.paths))
	for label := range r.paths {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Close closes every loaded detector.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for label, det := range r.loaded {
		err = multierr.Append(err, errors.Wrapf(det.Close(), "close %q", label))
		delete(r.loaded, label)
	}
	return err
}

// RemoteLoader loads models on the inference server at host and wraps them
// with score filtering and non-maximum suppression at iouThreshold.
func RemoteLoader(host string, iouThreshold float64, logger golog.Logger) Loader {
	return func(ctx context.Context, label, modelPath string) (Detector, error) {
		remote := NewRemoteDetector(host, modelPath, logger.Named(label))
		if err := remote.Load(ctx); err != nil {
			return nil, multierr.Append(err, remote.Close())
		}
		return WithPostprocessors(remote, NewNMSFilter(iouThreshold)), nil
	}
}
