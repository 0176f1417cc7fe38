package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/specql/specql/compiler"
	"github.com/specql/specql/compiler/ast"
	"github.com/specql/specql/compiler/configres"
	"github.com/specql/specql/compiler/emitter"
	"github.com/specql/specql/internal/config"
	"github.com/specql/specql/internal/dbapply"
	"github.com/specql/specql/internal/pkg/logger"
)

func main() {
	logger.Init(compiler.Version)

	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cmd := os.Args[1]

	switch cmd {
	case "build":
		runBuild(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "apply":
		runApply(os.Args[2:])
	case "explain":
		runExplain(os.Args[2:])
	case "version":
		runVersion()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("SpecQL, a declarative mutation compiler for PostgreSQL, v%s\n", compiler.Version)
	fmt.Println("\nUsage:")
	fmt.Println("  specql build     Compile an AST bundle into PL/pgSQL functions")
	fmt.Println("  specql validate  Validate an AST bundle without emitting SQL")
	fmt.Println("  specql apply     Compile and apply to a database (requires DATABASE_URL)")
	fmt.Println("  specql explain   Explain a compiler error code")
	fmt.Println("  specql version   Print compiler and schema version")
}

func fail(label string, err error) {
	fmt.Printf("%s FAILED: %v\n", label, err)
	if code := compiler.ErrorCode(err); code != "" {
		fmt.Printf("Run 'specql explain %s' for details.\n", code)
	}
	os.Exit(1)
}

type buildOptions struct {
	BundlePath   string
	ConfigPath   string
	OutputDir    string
	TemplatesDir string
}

func parseBuildOptions(name string, args []string) (buildOptions, error) {
	env, err := config.Load()
	if err != nil {
		return buildOptions{}, err
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	bundle := fs.String("bundle", "actions.yaml", "AST bundle to compile")
	cfgPath := fs.String("config", env.ConfigPath, "project config file")
	out := fs.String("out", env.OutputDir, "output directory for generated SQL")
	if err := fs.Parse(args); err != nil {
		return buildOptions{}, err
	}
	if fs.NArg() > 0 {
		*bundle = fs.Arg(0)
	}
	return buildOptions{
		BundlePath:   *bundle,
		ConfigPath:   *cfgPath,
		OutputDir:    *out,
		TemplatesDir: env.TemplatesDir,
	}, nil
}

func newEmitter(opts buildOptions) *emitter.Emitter {
	em := emitter.New(opts.OutputDir)
	em.TemplatesDir = opts.TemplatesDir
	em.Version = compiler.Version
	return em
}

func compileBundle(opts buildOptions) ([]compiler.CompiledAction, error) {
	bundle, err := ast.LoadBundle(opts.BundlePath)
	if err != nil {
		return nil, compiler.WrapContractError(compiler.StageAST, compiler.ErrCodeASTBundleDecode,
			opts.BundlePath, err)
	}

	appCfg, err := configres.Load(opts.ConfigPath)
	if err != nil {
		return nil, compiler.WrapContractError(compiler.StageResolve, compiler.ErrCodeResolveConfigLoad,
			opts.ConfigPath, err)
	}

	return compiler.CompileBundle(bundle, compiler.Options{
		AppConfig: appCfg,
		WarningSink: func(w compiler.Warning) {
			fmt.Fprintf(os.Stderr, "warning [%s] %s.%s: %s\n", w.Code, w.Entity, w.Action, w.Message)
		},
	})
}

func runBuild(args []string) {
	opts, err := parseBuildOptions("build", args)
	if err != nil {
		fail("Build", err)
	}

	actions, err := compileBundle(opts)
	if err != nil {
		fail("Build", err)
	}

	em := newEmitter(opts)
	if _, err := em.WriteFoundation(); err != nil {
		fail("Build", err)
	}
	for _, ca := range actions {
		path, err := em.WriteFunction(ca.Entity, ca.Action, ca.SQL)
		if err != nil {
			fail("Build", err)
		}
		if ca.CDC {
			fmt.Printf("  %s (event: %s)\n", path, ca.EventType)
		} else {
			fmt.Printf("  %s\n", path)
		}
	}
	fmt.Printf("\nBuild SUCCESSFUL: %d functions.\n", len(actions))
}

func runValidate(args []string) {
	opts, err := parseBuildOptions("validate", args)
	if err != nil {
		fail("Validation", err)
	}

	actions, err := compileBundle(opts)
	if err != nil {
		fail("Validation", err)
	}
	fmt.Printf("Validation SUCCESSFUL: %d actions.\n", len(actions))
}

func runApply(args []string) {
	env, err := config.Load()
	if err != nil {
		fail("Apply", err)
	}
	if env.DatabaseURL == "" {
		fmt.Println("Apply FAILED: DATABASE_URL is required")
		os.Exit(1)
	}

	opts, err := parseBuildOptions("apply", args)
	if err != nil {
		fail("Apply", err)
	}

	actions, err := compileBundle(opts)
	if err != nil {
		fail("Apply", err)
	}

	em := newEmitter(opts)
	foundation, err := em.RenderFoundation()
	if err != nil {
		fail("Apply", err)
	}

	scripts := make([]string, 0, len(actions)+1)
	scripts = append(scripts, foundation)
	for _, ca := range actions {
		scripts = append(scripts, ca.SQL)
	}

	runner := &dbapply.Runner{URL: env.DatabaseURL}
	if err := runner.Apply(context.Background(), scripts); err != nil {
		fail("Apply", err)
	}
	fmt.Printf("Apply SUCCESSFUL: %d functions installed.\n", len(actions))
}

func runVersion() {
	fmt.Printf("SpecQL version %s (Schema v%s)\n", compiler.Version, compiler.SchemaVersion)
}
