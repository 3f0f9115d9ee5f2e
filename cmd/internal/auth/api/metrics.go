package authapi

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type outcomeCounter struct {
	vec *prometheus.CounterVec
}

func newOutcomeCounter(reg prometheus.Registerer) (*outcomeCounter, error) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskman",
		Subsystem: "auth",
		Name:      "outcomes_total",
		Help:      "Auth endpoint outcomes by operation.",
	}, []string{"op", "outcome"})

	if reg == nil {
		return &outcomeCounter{vec: vec}, nil
	}
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return &outcomeCounter{vec: existing}, nil
			}
		}
		return nil, err
	}
	return &outcomeCounter{vec: vec}, nil
}

func (c *outcomeCounter) inc(op, outcome string) {
	if c == nil || c.vec == nil {
		return
	}
	c.vec.WithLabelValues(op, outcome).Inc()
}
