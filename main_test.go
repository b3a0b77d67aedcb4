package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/phobologic/rsuml/internal/errors"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createSampleCrate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "src/geom.rs", `pub struct Point {
    pub x: i32,
    y: i32,
}

impl Point {
    pub fn new(x: i32, y: i32) -> Self {
        Point { x, y }
    }
}

impl<T> Trait<T> for Point {
    fn area(&self) -> i32 {
        0
    }
}
`)
	writeTestFile(t, dir, "src/player.rs", `pub struct Player {
    name: String,
    pos: Point,
}

pub enum Color {
    White,
    Black,
}
`)
	writeTestFile(t, dir, "src/gen/out.rs", "pub struct Generated { p: Point }\n")
	writeTestFile(t, dir, "target/debug/build.rs", "struct Build;\n")
	return dir
}

func TestRunBasic(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if !strings.HasPrefix(out, "@startuml\n") || !strings.HasSuffix(out, "@enduml\n") {
		t.Errorf("missing diagram markers:\n%s", out)
	}
	for _, want := range []string{
		"class Point {",
		"  pub x: i32\n",
		"  new(x: i32, y: i32) -> Self\n",
		"  Trait<T>::area(&self) -> i32\n",
		"class Player {",
		"  name: String\n",
		"enum Color {",
		"  White\n",
		`"Point" --* Player`,
		`"Point" --* Generated`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, `"String" --*`) {
		t.Error("String field should not produce an edge")
	}
	if strings.Contains(out, "Build") {
		t.Error("target/ should be skipped")
	}
	if strings.Contains(out, "level=") {
		t.Error("diagnostics leaked into the diagram stream")
	}
	if !strings.Contains(stderr.String(), "struct Point") {
		t.Errorf("expected per-type progress on stderr, got:\n%s", stderr.String())
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if stdout.String() != "rsuml dev\n" {
		t.Errorf("version output: %q", stdout.String())
	}
}

func TestRunExclude(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-x", "src/gen/*.rs", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if strings.Contains(stdout.String(), "Generated") {
		t.Errorf("excluded file still rendered:\n%s", stdout.String())
	}
}

func TestRunMaxTypes(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--max-types", "1", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "class Point {") {
		t.Errorf("most referenced type missing:\n%s", out)
	}
	if n := strings.Count(out, " {\n  .. fields .."); n != 1 {
		t.Errorf("expected 1 entity block, got %d:\n%s", n, out)
	}
}

func TestRunOutputFile(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)
	outPath := filepath.Join(t.TempDir(), "model.puml")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-o", outPath, dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should be empty with --output, got:\n%s", stdout.String())
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "@startuml") {
		t.Errorf("output file content:\n%s", data)
	}
}

func TestRunConfigFile(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)
	cfgPath := filepath.Join(dir, "rsuml.toml")
	writeTestFile(t, dir, "rsuml.toml", `
source_root = "src"
exclude = ["gen/**"]

[log]
level = "error"
format = "json"
`)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--config", cfgPath}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "class Player {") {
		t.Errorf("source_root from config not used:\n%s", stdout.String())
	}
	if strings.Contains(stdout.String(), "Generated") {
		t.Error("exclude from config not applied")
	}
	if stderr.Len() != 0 {
		t.Errorf("log level error should silence progress, got:\n%s", stderr.String())
	}
}

func TestRunLogFormatJSON(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--log-format", "json", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stderr.String(), `"msg":"struct Point"`) {
		t.Errorf("expected JSON diagnostics, got:\n%s", stderr.String())
	}
}

func TestRunOnConflictError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "a.rs", "struct Point;\n")
	writeTestFile(t, dir, "b.rs", "struct Point;\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{"--on-conflict", "error", dir}, &stdout, &stderr)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("no diagram expected on failure, got:\n%s", stdout.String())
	}

	stdout.Reset()
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("default policy should replace: %v", err)
	}
	if !strings.Contains(stderr.String(), "type redefined") {
		t.Errorf("expected a redefinition warning, got:\n%s", stderr.String())
	}
}

func TestRunErrors(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)
	file := filepath.Join(dir, "src", "geom.rs")

	tests := []struct {
		name string
		args []string
	}{
		{"missing root", []string{filepath.Join(dir, "nope")}},
		{"root is a file", []string{file}},
		{"bad policy", []string{"--on-conflict", "merge", dir}},
		{"negative max types", []string{"--max-types", "-1", dir}},
		{"missing config", []string{"--config", filepath.Join(dir, "none.toml"), dir}},
		{"too many args", []string{dir, dir}},
		{"missing queries dir", []string{"--queries", filepath.Join(dir, "nope"), dir}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			if err := run(tt.args, &stdout, &stderr); err == nil {
				t.Errorf("expected an error, got output:\n%s", stdout.String())
			}
		})
	}
}

func TestQueryCommand(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"query", "ImplBlock", "--param", "type_name=Point", dir}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{
		"query: ImplBlock",
		"params[1]{name,value}:",
		"  type_name,Point",
		"captures[",
		"src/geom.rs,0,6,11,function.name,new",
		"trait.name,Trait",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestQueryCommandPattern(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"query", "Impl", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "query: Impl\nkind: pattern\n") {
		t.Errorf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, ",trait,Trait<T>") {
		t.Errorf("expected the trait impl header:\n%s", out)
	}
	if strings.Contains(out, "params[") {
		t.Errorf("pattern query has no params:\n%s", out)
	}
}

func TestQueryCommandStdin(t *testing.T) {
	t.Parallel()

	src := "struct Point { x: i32 }\nimpl Point {\n    fn new() -> Self { Point { x: 0 } }\n}\n"

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetIn(strings.NewReader(src))
	root.SetArgs([]string{"query", "--stdin", "ImplBlock", "-p", "type_name=Point"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{
		"query: ImplBlock",
		"  type_name,Point",
		"<stdin>,",
		",2,7,function.name,new",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	for _, args := range [][]string{
		{"query", "--stdin", "ImplBlock", "-p", "type_name=Point", t.TempDir()},
		{"query", "--stdin", "--list"},
	} {
		root := newRootCmd(&stdout, &stderr)
		root.SetIn(strings.NewReader(src))
		root.SetArgs(args)
		if err := root.ExecuteContext(context.Background()); err == nil {
			t.Errorf("%v should fail", args)
		}
	}
}

func TestQueryCommandErrors(t *testing.T) {
	t.Parallel()
	dir := createSampleCrate(t)

	tests := []struct {
		name string
		args []string
		code apperrors.ErrorCode
	}{
		{"unknown query", []string{"query", "Nope", dir}, apperrors.CodeNotFound},
		{"missing param", []string{"query", "ImplBlock", dir}, apperrors.CodeInvalidParameter},
		{"injection", []string{"query", "ImplBlock", "-p", `type_name=Point") (#eq? @x "y`, dir}, apperrors.CodeInvalidParameter},
		{"malformed param", []string{"query", "ImplBlock", "-p", "type_name", dir}, apperrors.CodeInvalidParameter},
		{"extra param", []string{"query", "Struct", "-p", "type_name=Point", dir}, apperrors.CodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			if !apperrors.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"query"}, &stdout, &stderr); err == nil {
		t.Error("query without a name should fail")
	}
}

func TestQueryList(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"query", "--list"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{
		"queries[7]{name,kind,extractor,params,source}:",
		"  ImplBlock,programmatic,impl,type_name,impl_blocks.toml",
		"  Struct,programmatic,struct,\"\",structs.toml",
		"  Function,pattern,\"\",\"\",patterns/functions.scm",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseParams(t *testing.T) {
	t.Parallel()

	args, err := parseParams([]string{"type_name=Point", "other=a=b"})
	if err != nil {
		t.Fatal(err)
	}
	if args["type_name"] != "Point" || args["other"] != "a=b" {
		t.Errorf("parseParams: %v", args)
	}

	for _, bad := range [][]string{{"novalue"}, {"=x"}, {"a=1", "a=2"}} {
		if _, err := parseParams(bad); !apperrors.IsCode(err, apperrors.CodeInvalidParameter) {
			t.Errorf("parseParams(%v): expected INVALID_PARAMETER, got %v", bad, err)
		}
	}
}
