//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "dcs-presence"

// Runs go mod download and then builds the binary.
func Build() error {
	if err := sh.Run("go", "mod", "download"); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-o", "dist/"+binary, "./cmd/"+binary)
}

// Runs the tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Build the windows binary, the platform the simulator runs on.
func Windows() error {
	mg.Deps(Test)
	env := map[string]string{"GOOS": "windows", "GOARCH": "amd64"}
	return sh.RunWithV(env, "go", "build", "-o", "dist/"+binary+".exe", "./cmd/"+binary)
}
