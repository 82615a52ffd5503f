package stage

import (
	"context"
)

// Checker is implemented by pipeline phases that can report readiness.
type Checker interface {
	HealthCheck(context.Context) Health
}

// CheckAll runs every checker and returns the results in order.
func CheckAll(ctx context.Context, checkers ...Checker) []Health {
	results := make([]Health, 0, len(checkers))
	for _, c := range checkers {
		if c == nil {
			continue
		}
		results = append(results, c.HealthCheck(ctx))
	}
	return results
}
