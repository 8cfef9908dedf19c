//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the GLSL shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	if _, err := executeCmd("glslc", withArgs("shader.vert", "-o", "vert.spv"), withDir("shaders"), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("glslc", withArgs("shader.frag", "-o", "frag.spv"), withDir("shaders"), withStream()); err != nil {
		return err
	}
	return nil
}
