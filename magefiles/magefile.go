//go:build mage

// Package main contains Mage build targets for blogscope developer tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "blogscope"
	cmdPkg  = "./cmd/blogscope"
	modPath = "github.com/IshaanNene/blogscope"
)

// Default target when none is given.
var Default = Build

// Build compiles the CLI binary into bin/, stamping the version from git.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	out := filepath.Join(binDir, binName)
	ldflags := fmt.Sprintf("-s -w -X %s/internal/config.Version=%s", modPath, version)
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Generate regenerates mocks.
func Generate() error {
	return sh.RunV("go", "generate", "./...")
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Integration runs the container-backed tests. Requires Docker.
func Integration() error {
	mg.Deps(Test)
	return sh.RunV("go", "test", "-tags", "integration", "-count=1", "./internal/cache/...", "./internal/notify/...")
}

// Lint runs go vet.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}
