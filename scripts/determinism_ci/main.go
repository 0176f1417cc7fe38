package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sort"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "determinism check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK: two builds of examples/blog produced identical SQL")
}

func run() error {
	projectRoot, err := os.Getwd()
	if err != nil {
		return err
	}
	tmpDir, err := os.MkdirTemp("", "specql-determinism-ci-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	bundle := filepath.Join(projectRoot, "examples", "blog", "actions.yaml")
	config := filepath.Join(projectRoot, "examples", "blog", "specql.yaml")

	out1 := filepath.Join(tmpDir, "run1")
	out2 := filepath.Join(tmpDir, "run2")
	for _, out := range []string{out1, out2} {
		if err := runCmd(projectRoot, "go", "run", "./cmd/specql", "build",
			"-bundle", bundle, "-config", config, "-out", out); err != nil {
			return err
		}
	}

	h1, err := hashTree(out1)
	if err != nil {
		return err
	}
	h2, err := hashTree(out2)
	if err != nil {
		return err
	}
	if len(h1) == 0 {
		return fmt.Errorf("build produced no SQL files under %s", out1)
	}
	if !reflect.DeepEqual(h1, h2) {
		return fmt.Errorf("drift detected between two builds of the same bundle")
	}
	return nil
}

func runCmd(dir string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w", name, args, err)
	}
	return nil
}

// hashTree maps each .sql file's relative path to the hex sha256 of its
// content, sorted by path for stable comparison output.
func hashTree(root string) (map[string]string, error) {
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		out[rel] = hex.EncodeToString(sum[:])
		return nil
	})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s  %s\n", out[k][:12], k)
	}
	return out, nil
}
