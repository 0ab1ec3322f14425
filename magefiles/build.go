//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// Compiles every GLSL stage under assets/shaders to SPIR-V next to its source.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Building engine...")
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "lumen"), "."), withEnv("CGO_ENABLED=1"), withStream()); err != nil {
		return err
	}
	return nil
}

// buildShaders skips stages whose .spv is newer than the stage and the shared
// include.
func buildShaders() error {
	var sources []string
	for _, pattern := range []string{"*.vert", "*.frag"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, pattern))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return errors.Newf("no shader sources in %s", shaderDir)
	}
	common := filepath.Join(shaderDir, "common.glsl")
	for _, src := range sources {
		out := src + ".spv"
		stale, err := target.Path(out, src, common)
		if err != nil {
			return errors.Wrapf(err, "checking %s", out)
		}
		if !stale {
			continue
		}
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", "-I", shaderDir, src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}
