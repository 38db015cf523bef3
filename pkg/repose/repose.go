// Package repose models resources of a remote REST API.
//
// A Kind declares fields of a resource and endpoint templates it is reachable at.
// Registering kinds with an Api binds them to a transport. Managers of a kind fetch
// single resources and lists of them, and resources keep track of their own changes
// so that only modified fields are sent back when saved.
package repose

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/sre-norns/repose/pkg/api"
)

// Api binds resource kinds to a transport
type Api struct {
	client api.Client
	logger log.Logger

	mu    sync.RWMutex
	kinds map[string]*Kind
}

type ApiOption func(a *Api)

func WithLogger(logger log.Logger) ApiOption {
	return func(a *Api) {
		a.logger = logger
	}
}

func NewApi(client api.Client, options ...ApiOption) *Api {
	a := &Api{
		client: client,
		logger: log.NewNopLogger(),
		kinds:  make(map[string]*Kind),
	}
	for _, option := range options {
		option(a)
	}

	return a
}

func (a *Api) Client() api.Client {
	return a.client
}

// Register binds kinds, and kinds their fields refer to, to this Api.
// Kind names are case-insensitive and must be unique within an Api.
func (a *Api) Register(kinds ...*Kind) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, k := range kinds {
		if err := a.register(k); err != nil {
			return err
		}
	}

	return nil
}

func (a *Api) register(k *Kind) error {
	key := strings.ToLower(k.name)
	if existing, ok := a.kinds[key]; ok {
		if existing == k {
			return nil
		}
		return fmt.Errorf("%w: kind %q is already registered", ErrInvalidKind, k.name)
	}

	a.kinds[key] = k
	k.api = a

	for _, def := range k.fields {
		if ref, ok := def.Field.(kindReference); ok {
			if err := a.register(ref.referencedKind()); err != nil {
				return err
			}
		}
	}

	return nil
}

// Kind looks up a registered kind by name
func (a *Api) Kind(name string) (*Kind, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	k, ok := a.kinds[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}

	return k, nil
}

// Kinds returns all registered kinds
func (a *Api) Kinds() []*Kind {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]*Kind, 0, len(a.kinds))
	for _, k := range a.kinds {
		result = append(result, k)
	}

	return result
}
