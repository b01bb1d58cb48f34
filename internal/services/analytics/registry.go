package analytics

import (
	"fmt"
	"sort"

	domsvc "github.com/carolinacraus/market-state-api/internal/domain/service"
)

var constructors = map[string]func(Inputs) domsvc.Classifier{
	"threshold":  func(in Inputs) domsvc.Classifier { return NewThreshold(in) },
	"distance":   func(in Inputs) domsvc.Classifier { return NewDistance(in) },
	"hysteresis": func(in Inputs) domsvc.Classifier { return NewHysteresis(in) },
}

// New builds the classifier registered under name.
func New(name string, in Inputs) (domsvc.Classifier, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown classifier %q", name)
	}
	return ctor(in), nil
}

// NewSet builds classifiers in the given order.
func NewSet(names []string, in Inputs) ([]domsvc.Classifier, error) {
	out := make([]domsvc.Classifier, 0, len(names))
	for _, n := range names {
		c, err := New(n, in)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Names lists the registered classifier names.
func Names() []string {
	out := make([]string, 0, len(constructors))
	for n := range constructors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
