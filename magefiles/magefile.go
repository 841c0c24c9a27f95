//go:build mage

// Package main provides build targets for the courtside project using Mage.
//
// Usage:
//
//	mage build          Compile courtside binary to bin/
//	mage test           Run all tests with the race detector
//	mage testShort      Run tests, skipping the ones that start servers
//	mage cover          Write coverage to bin/coverage.out and print totals
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install courtside to GOPATH/bin
//	mage stats          Print Go lines of code per package
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo       = "go"
	binLint     = "golangci-lint"
	binaryName  = "courtside"
	binaryDir   = "bin"
	cmdDir      = "./cmd/courtside"
	versionPkg  = "github.com/mesh-intelligence/courtside/pkg/courtside"
	coverOutput = "coverage.out"
)

// version reports the git description of HEAD, or "dev" outside a checkout.
func version() string {
	v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || v == "" {
		return "dev"
	}
	return strings.TrimPrefix(v, "v")
}

// Build compiles the courtside binary to bin/ with the version stamped in.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	ldflags := fmt.Sprintf("-X %s.Version=%s", versionPkg, version())
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags, "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests with the race detector.
func Test() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// TestShort runs tests in -short mode.
func TestShort() error {
	return sh.RunV(binGo, "test", "-short", "./...")
}

// Cover runs the tests with coverage and prints the per-function summary.
func Cover() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	out := filepath.Join(binaryDir, coverOutput)
	if err := sh.RunV(binGo, "test", "-coverprofile", out, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func", out)
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

// Stats prints production and test lines of Go per top-level package dir.
func Stats() error {
	prod := map[string]int{}
	tests := map[string]int{}

	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			switch path {
			case "vendor", ".git", binaryDir, "magefiles", "_examples":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		count, err := countLines(path)
		if err != nil {
			return nil
		}
		dir := filepath.Dir(path)
		if strings.HasSuffix(path, "_test.go") {
			tests[dir] += count
		} else {
			prod[dir] += count
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(prod))
	for d := range prod {
		dirs = append(dirs, d)
	}
	for d := range tests {
		if _, ok := prod[d]; !ok {
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)

	var totalProd, totalTest int
	for _, d := range dirs {
		fmt.Printf("%-28s %6d %6d\n", d, prod[d], tests[d])
		totalProd += prod[d]
		totalTest += tests[d]
	}
	fmt.Printf("%-28s %6d %6d\n", "total", totalProd, totalTest)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
