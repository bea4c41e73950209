/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/testbed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := core.DefaultConfig()
	if err != nil {
		return err
	}
	switch cfg.Application.Backend {
	case core.BackendOpenGL:
		return engine.RunOpenGL(cfg, testbed.NewGL(cfg))
	default:
		return engine.RunVulkan(cfg, testbed.New(cfg))
	}
}
