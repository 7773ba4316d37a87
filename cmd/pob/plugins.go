package main

import (
	"github.com/pobuild/pob/pkg/hooks"
)

// hookTable is the explicit registration table for build pipeline hooks.
// Platform teams extend this slice; the binary registers exactly what is
// listed here, nothing is discovered at runtime.
var hookTable = []hooks.Hook{}

func newHookRegistry() (*hooks.Registry, error) {
	registry := hooks.NewRegistry()
	for _, h := range hookTable {
		if err := registry.Register(h); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
