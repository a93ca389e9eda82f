// Command forge is a thin CLI driver over the forge package: it loads
// a project's Forge.toml (and Forge.lock, if present), dispatches to
// one of a handful of subcommands, and prints the resulting
// diagnostics. Rendering/formatting beyond this is out of scope; the
// driver exists so the rest of the module has something to execute
// end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/forgelang/forge"
	"github.com/forgelang/forge/internal/cache"
	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/resolve"
)

type command interface {
	Name() string
	ShortHelp() string
	Register(*flag.FlagSet)
	Run(ctx *forge.Ctx, args []string) error
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	errLogger := log.New(os.Stderr, "", 0)

	commands := []command{
		&resolveCommand{},
		&buildCommand{},
		&gcCommand{},
	}

	if len(args) < 2 {
		usage(commands)
		return 1
	}

	var cmd command
	for _, c := range commands {
		if c.Name() == args[1] {
			cmd = c
			break
		}
	}
	if cmd == nil {
		errLogger.Printf("forge: unknown command %q", args[1])
		usage(commands)
		return 1
	}

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.Register(fs)
	if err := fs.Parse(args[2:]); err != nil {
		return 1
	}

	cacheDir := os.Getenv("FORGE_CACHE_DIR")
	ctx, err := forge.NewContext(cacheDir)
	if err != nil {
		errLogger.Printf("forge: %v", err)
		return 1
	}
	defer ctx.Close()

	if err := cmd.Run(ctx, fs.Args()); err != nil {
		errLogger.Printf("forge %s: %v", cmd.Name(), err)
		return 1
	}

	for _, d := range ctx.Diagnostics.SortBySpan() {
		fmt.Fprintln(os.Stderr, d.String())
	}
	if ctx.Diagnostics.HasErrors() {
		return 1
	}
	return 0
}

func usage(commands []command) {
	fmt.Fprintln(os.Stderr, "usage: forge <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.Name(), c.ShortHelp())
	}
}

// resolveCommand runs the dependency solver and (re)writes Forge.lock.
type resolveCommand struct {
	update    bool
	updateAll bool
}

func (c *resolveCommand) Name() string      { return "resolve" }
func (c *resolveCommand) ShortHelp() string { return "resolve dependencies and write Forge.lock" }
func (c *resolveCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&c.update, "update", false, "allow named packages to move to a newer version")
	fs.BoolVar(&c.updateAll, "update-all", false, "ignore the existing lockfile entirely")
}

func (c *resolveCommand) Run(ctx *forge.Ctx, args []string) error {
	proj, err := ctx.LoadProject("")
	if err != nil {
		return err
	}

	var toChange []ident.PackageName
	if c.update {
		for _, name := range args {
			toChange = append(toChange, ident.PackageName(name))
		}
	}

	sources := forge.NewSourceSet(ctx)
	graph, err := proj.Resolve(forge.ResolveOptions{
		Sources:    sources,
		ChangeAll:  c.updateAll,
		ToChange:   toChange,
		IncludeDev: true,
		Ordering:   resolve.MaximumVersionsFirst,
	})
	if err != nil {
		return err
	}

	changed, err := proj.WriteLock(graph, sources)
	if err != nil {
		return err
	}
	if changed {
		fmt.Fprintln(os.Stdout, "wrote", forge.LockName)
	} else {
		fmt.Fprintln(os.Stdout, forge.LockName, "unchanged")
	}
	return nil
}

// buildCommand resolves dependencies (rewriting Forge.lock if the
// result changed) and runs the scheduler over the resulting unit graph.
type buildCommand struct {
	jobs int
}

func (c *buildCommand) Name() string      { return "build" }
func (c *buildCommand) ShortHelp() string { return "build the project and its dependencies" }
func (c *buildCommand) Register(fs *flag.FlagSet) {
	fs.IntVar(&c.jobs, "jobs", 4, "maximum number of concurrent build jobs")
}

func (c *buildCommand) Run(ctx *forge.Ctx, args []string) error {
	proj, err := ctx.LoadProject("")
	if err != nil {
		return err
	}

	sources := forge.NewSourceSet(ctx)
	graph, err := proj.Resolve(forge.ResolveOptions{
		Sources:    sources,
		IncludeDev: false,
		Ordering:   resolve.MaximumVersionsFirst,
	})
	if err != nil {
		return err
	}
	if _, err := proj.WriteLock(graph, sources); err != nil {
		return err
	}

	return proj.Build(context.Background(), forge.BuildOptions{
		Graph:        graph,
		Sources:      sources,
		HostPlatform: hostPlatform(),
		Jobs:         c.jobs,
		Compiler:     "forge-rustc-shim 0.0.0",
	})
}

// gcCommand evicts stale entries from the global cache.
type gcCommand struct {
	maxSrcAge     string
	maxDownloadAge string
}

func (c *gcCommand) Name() string      { return "gc" }
func (c *gcCommand) ShortHelp() string { return "evict stale entries from the global cache" }
func (c *gcCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.maxSrcAge, "max-src-age", "", "evict extracted sources older than this (e.g. \"90 days\")")
	fs.StringVar(&c.maxDownloadAge, "max-download-age", "", "evict downloaded archives older than this")
}

func (c *gcCommand) Run(ctx *forge.Ctx, args []string) error {
	var opts cache.GCOptions
	if c.maxSrcAge != "" {
		d, err := cache.ParseAge(c.maxSrcAge)
		if err != nil {
			return err
		}
		opts.MaxSrcAge = d
	}
	if c.maxDownloadAge != "" {
		d, err := cache.ParseAge(c.maxDownloadAge)
		if err != nil {
			return err
		}
		opts.MaxDownloadAge = d
	}

	evicted, err := ctx.GC(opts, func(cache.EntryKind, string) bool { return false }, func(kind cache.EntryKind, key string) error {
		return nil // the cache's on-disk blobs are out of this driver's scope; only the tracker record is removed
	})
	if err != nil {
		return err
	}
	for _, e := range evicted {
		fmt.Fprintf(os.Stdout, "evicted %s %s (%s)\n", e.Entry.Kind, e.Entry.Key, e.Reason)
	}
	return nil
}
