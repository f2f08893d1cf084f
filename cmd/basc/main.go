package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"

	"github.com/minghu6/bas/pkg/cache"
	"github.com/minghu6/bas/pkg/cli"
	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/driver"
	"github.com/minghu6/bas/pkg/util"
)

const manifestName = "bas.toml"

func main() {
	app := cli.NewApp("basc")
	app.Synopsis = "[options] <input.bas> ..."
	app.Description = "A compiler for the bas language, emitting native code through QBE or LLVM."
	app.Version = "0.1.0"
	app.Repository = "<https://github.com/minghu6/bas>"

	var (
		outFile    string
		backend    string
		target     string
		entry      string
		emit       string
		jobs       string
		cacheDir   string
		runtimeLib string
		manifest   string
		linkerArgs []string
		warnFlags  []string
		featFlags  []string
		noCache    bool
		dumpMIR    bool
		verbose    bool
	)

	cfg := config.NewConfig()

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>.", "file")
	fs.String(&backend, "backend", "b", "", "Select the backend: qbe or llvm.", "name")
	fs.String(&target, "target", "t", "", "Set the QBE target ABI.", "target")
	fs.String(&entry, "entry", "", "", "Name of the entry function.", "name")
	fs.String(&emit, "emit", "", "", "Stop after producing ir, asm, obj or exe.", "kind")
	fs.String(&jobs, "jobs", "j", "", "Compile up to <n> files in parallel.", "n")
	fs.String(&cacheDir, "cache-dir", "", "", "Directory of the build cache.", "dir")
	fs.String(&runtimeLib, "runtime", "", "", "Path of the runtime library to link.", "file")
	fs.String(&manifest, "manifest", "m", "", "Read project settings from <file> (default ./"+manifestName+").", "file")
	fs.List(&linkerArgs, "linker-arg", "L", []string{}, "Pass an argument to the linker.", "arg")
	fs.Bool(&noCache, "no-cache", "", false, "Do not read or write the build cache.")
	fs.Bool(&dumpMIR, "dump-mir", "", false, "Print the lowered scope tree of every file.")
	fs.Bool(&verbose, "verbose", "v", false, "Print progress information.")
	fs.Special(&warnFlags, "W", "Enable (-W<name>) or disable (-Wno-<name>) a warning.", "warning")
	fs.Special(&featFlags, "F", "Enable (-F<name>) or disable (-Fno-<name>) a feature.", "feature")

	var warnEntries, featEntries []cli.FlagGroupEntry
	for i := config.Warning(0); i < config.WarnCount; i++ {
		info := cfg.Warnings[i]
		warnEntries = append(warnEntries, cli.FlagGroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	for i := config.Feature(0); i < config.FeatCount; i++ {
		info := cfg.Features[i]
		featEntries = append(featEntries, cli.FlagGroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	fs.AddFlagGroup("Warnings", "W", "warning", "Available Warnings:", warnEntries)
	fs.AddFlagGroup("Features", "F", "feature", "Available Features:", featEntries)

	app.Action = func(inputFiles []string) error {
		util.SetVerbose(verbose)

		// The manifest supplies defaults; flags below override it.
		if manifest == "" {
			if _, err := os.Stat(manifestName); err == nil {
				manifest = manifestName
			}
		}
		if manifest != "" {
			if err := cfg.LoadFile(manifest); err != nil {
				util.Fatal("%v", err)
			}
			util.Info("using manifest '%s'", manifest)
		}

		if backend != "" {
			if err := cfg.SetBackend(backend); err != nil {
				util.Fatal("%v", err)
			}
		}
		cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target)
		err := cfg.ProcessFlags(func(visit func(name string)) {
			for _, w := range warnFlags {
				visit("W" + w)
			}
			for _, f := range featFlags {
				visit("F" + f)
			}
		})
		if err != nil {
			util.Fatal("%v", err)
		}

		if outFile != "" {
			cfg.Output = outFile
		}
		if entry != "" {
			cfg.Entry = entry
		}
		if emit != "" {
			cfg.Emit = emit
		}
		if cacheDir != "" {
			cfg.CacheDir = cacheDir
		}
		if runtimeLib != "" {
			cfg.RuntimeLib = runtimeLib
		}
		if jobs != "" {
			n, err := strconv.Atoi(jobs)
			if err != nil || n < 1 {
				util.Fatal("invalid job count '%s'", jobs)
			}
			cfg.Jobs = n
		}
		cfg.LinkerArgs = append(cfg.LinkerArgs, linkerArgs...)
		cfg.DumpMIR = dumpMIR

		if len(inputFiles) == 0 {
			util.Fatal("no input files specified.")
		}

		var c *cache.Cache
		if !noCache {
			if c, err = cache.Open(cfg.CacheDir); err != nil {
				util.Warn("build cache disabled: %v", err)
				c = nil
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		util.Info("compiling %d source file(s) with %d job(s)", len(inputFiles), cfg.Jobs)
		units, err := driver.CompileAll(ctx, inputFiles, cfg, c)
		for _, u := range units {
			if u == nil {
				continue
			}
			os.Stderr.Write(u.Diagnostics.Bytes())
			os.Stdout.Write(u.MIR.Bytes())
		}
		if err != nil {
			var failed int
			for _, u := range units {
				if u == nil || u.Err == nil {
					continue
				}
				failed++
				if u.Diagnostics.Len() == 0 {
					util.Error("%v", u.Err)
				}
			}
			return fmt.Errorf("%d of %d file(s) failed to compile", failed, len(inputFiles))
		}

		if err := driver.NewToolchain(cfg).Finish(units); err != nil {
			return err
		}
		util.Info("done")
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return
		}
		util.Error("%v", err)
		os.Exit(1)
	}
}
