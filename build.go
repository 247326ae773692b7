//go:build ignore

// build.go - Toughest Places Index build script
// Usage: go run build.go [-target=TARGET] [-verbose]
// Targets: all, build, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	version = "1.0.0"
	module  = "github.com/ONEcampaign/toughest-places-index"
	binary  = "tpi"
)

var (
	rootDir string
	distDir string

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func init() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("Failed to get current directory: %v", err))
	}
	rootDir = cwd
	distDir = filepath.Join(rootDir, "dist")
	if runtime.GOOS == "windows" && os.Getenv("WT_SESSION") == "" {
		colorReset, colorRed, colorGreen, colorYellow, colorCyan = "", "", "", "", ""
	}
}

func main() {
	target := flag.String("target", "all", "Build target (all, build, test, clean, release)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	printHeader()

	var err error
	switch *target {
	case "all":
		if err = clean(*verbose); err == nil {
			if err = runTests(*verbose); err == nil {
				err = build(*verbose, runtime.GOOS, runtime.GOARCH)
			}
		}
	case "build":
		err = build(*verbose, runtime.GOOS, runtime.GOARCH)
	case "test":
		err = runTests(*verbose)
	case "clean":
		err = clean(*verbose)
	case "release":
		err = release(*verbose)
	default:
		err = fmt.Errorf("unknown target: %s", *target)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	printSuccess("Done")
}

func printHeader() {
	fmt.Printf("%s== Toughest Places Index build %s ==%s\n", colorCyan, version, colorReset)
}

func printInfo(msg string)    { fmt.Printf("%s-> %s%s\n", colorCyan, msg, colorReset) }
func printSuccess(msg string) { fmt.Printf("%sOK %s%s\n", colorGreen, msg, colorReset) }
func printError(msg string)   { fmt.Fprintf(os.Stderr, "%sERROR %s%s\n", colorRed, msg, colorReset) }
func printWarning(msg string) { fmt.Printf("%sWARN %s%s\n", colorYellow, msg, colorReset) }

func ldflags() string {
	buildTime := time.Now().UTC().Format(time.RFC3339)
	return strings.Join([]string{
		"-s", "-w",
		fmt.Sprintf("-X %s/internal/app.Version=%s", module, version),
		fmt.Sprintf("-X %s/internal/app.BuildTime=%s", module, buildTime),
	}, " ")
}

func build(verbose bool, goos, goarch string) error {
	name := binary
	if goos == "windows" {
		name += ".exe"
	}
	out := filepath.Join(distDir, goos+"_"+goarch, name)
	printInfo(fmt.Sprintf("Building %s for %s/%s", name, goos, goarch))

	args := []string{"build", "-trimpath", "-ldflags", ldflags(), "-o", out}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "./cmd/tpi")

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "GOOS="+goos, "GOARCH="+goarch, "CGO_ENABLED=0")
	if err := run(cmd, verbose); err != nil {
		return fmt.Errorf("build %s/%s failed: %w", goos, goarch, err)
	}
	printSuccess("Built " + out)
	return nil
}

func runTests(verbose bool) error {
	printInfo("Running tests")
	args := []string{"test", "-race", "./..."}
	if verbose {
		args = append(args, "-v")
	}
	if err := run(exec.Command("go", args...), true); err != nil {
		return fmt.Errorf("tests failed: %w", err)
	}
	return nil
}

func clean(verbose bool) error {
	printInfo("Cleaning " + distDir)
	if err := os.RemoveAll(distDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", distDir, err)
	}
	for _, dir := range []string{"output", "logs"} {
		if _, err := os.Stat(filepath.Join(rootDir, dir)); err == nil && verbose {
			printWarning(fmt.Sprintf("Keeping %s/, remove it by hand if needed", dir))
		}
	}
	return nil
}

func release(verbose bool) error {
	targets := [][2]string{{"linux", "amd64"}, {"linux", "arm64"}, {"darwin", "arm64"}, {"windows", "amd64"}}
	for _, t := range targets {
		if err := build(verbose, t[0], t[1]); err != nil {
			return err
		}
	}
	return nil
}

func run(cmd *exec.Cmd, verbose bool) error {
	cmd.Dir = rootDir
	if verbose {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
