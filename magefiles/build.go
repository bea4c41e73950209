//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// Compiles every GLSL source under assets/shaders to SPIR-V next to it.
func (Build) Shaders() error {
	for _, ext := range []string{"*.vert", "*.frag", "*.comp"} {
		sources, err := filepath.Glob(filepath.Join(shaderDir, ext))
		if err != nil {
			return err
		}
		for _, src := range sources {
			out := src + ".spv"
			if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Builds the testbed binary into bin/.
func (Build) Testbed() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "testbed"), "."), withStream())
	return err
}
