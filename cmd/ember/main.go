package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/peterh/liner"
	"gopkg.in/yaml.v3"

	"github.com/ember-lang/ember"
	"github.com/ember-lang/ember/stdlib/mathlib"
)

const (
	title         = "ember"
	promptPrefix  = ">>> "
	promptPrefix2 = "... "
)

// manifest is the shape of an optional -modules yaml file: a list of
// named script files Create compiles together as one linked program,
// matching §6's "an ordered list of named source modules" — this is
// the ambient config-file surface a host embedding ember would want,
// grounded on the teacher's CLI flags (cmd/ugo's main.go) generalized
// from single-script-argument to the multi-module Create accepts.
type manifest struct {
	Modules []struct {
		Name string `yaml:"name"`
		Path string `yaml:"path"`
	} `yaml:"modules"`
}

func loadManifest(path string) ([]ember.NamedSource, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var man manifest
	if err := yaml.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	out := make([]ember.NamedSource, 0, len(man.Modules))
	for _, m := range man.Modules {
		p := m.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		src, err := ioutil.ReadFile(p)
		if err != nil {
			return nil, err
		}
		name := m.Name
		if name == "" {
			name = m.Path
		}
		out = append(out, ember.NamedSource{Name: name, Src: string(src)})
	}
	return out, nil
}

func main() {
	flagset := flag.NewFlagSet("ember", flag.ExitOnError)
	manifestPath := flagset.String("modules", "", "path to a YAML module manifest")
	noMath := flagset.Bool("no-math", false, "do not register the mathlib demonstration module")
	flagset.Usage = func() {
		fmt.Fprint(flagset.Output(),
			"Usage: ember [flags] [script file]\n\n",
			"If no script file is given, a REPL terminal starts.\n",
			"Use - to read a script from stdin.\n\nFlags:\n")
		flagset.PrintDefaults()
	}
	if err := flagset.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	var regs []ember.Registration
	if !*noMath {
		regs = append(regs, mathlib.Registrations()...)
	}

	if *manifestPath != "" {
		modules, err := loadManifest(*manifestPath)
		checkErr(err)
		vm, err := ember.Create(modules, regs, nil)
		checkErr(err)
		defer vm.Destroy()
		indices := make([]int, len(modules))
		for i := range indices {
			indices[i] = i
		}
		if err := vm.Run(indices...); err != nil {
			fmt.Fprintln(os.Stderr, vm.Err())
			os.Exit(1)
		}
		return
	}

	args := flagset.Args()
	filePath := ""
	if len(args) == 1 {
		filePath = args[0]
	} else if hasInputRedirection() {
		filePath = "-"
	}

	if filePath != "" {
		var (
			src  []byte
			err  error
			name = filePath
		)
		if filePath == "-" {
			name = "(stdin)"
			src, err = ioutil.ReadAll(os.Stdin)
		} else {
			src, err = ioutil.ReadFile(filePath)
		}
		checkErr(err)

		vm, err := ember.Create([]ember.NamedSource{{Name: name, Src: string(src)}}, regs, nil)
		checkErr(err)
		defer vm.Destroy()
		if err := vm.Run(0); err != nil {
			fmt.Fprintln(os.Stderr, vm.Err())
			os.Exit(1)
		}
		return
	}

	r := newREPL(os.Stdout, regs)
	if err := r.run(); err != nil {
		checkErr(err)
	}
}

// repl keeps a growing buffer of every accepted line; each new line is
// checked against the whole buffer by recreating the VM from scratch
// (ember's Value model ties Values to the Heap that produced them, so
// there is no cheaper way to keep earlier bindings visible than
// recompiling everything entered so far), grounded on the shape of the
// teacher's repl type (cmd/ugo's main.go) but without its persistent
// incremental-compile Eval, which has no equivalent in this design's
// one-shot Create/Run.
type repl struct {
	out     io.Writer
	regs    []ember.Registration
	buf     *bytes.Buffer
	isMulti bool
}

func newREPL(out io.Writer, regs []ember.Registration) *repl {
	return &repl{out: out, regs: regs, buf: bytes.NewBuffer(nil)}
}

func (r *repl) prefix() string {
	if r.isMulti {
		return promptPrefix2
	}
	return promptPrefix
}

func (r *repl) run() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetMultiLineMode(true)

	r.printInfo()

	for {
		str, err := line.Prompt(r.prefix())
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !r.isMulti && str == ".exit" {
			return nil
		}
		if !r.isMulti && str == ".reset" {
			r.buf.Reset()
			continue
		}
		if strings.HasSuffix(str, "\\") {
			r.isMulti = true
			r.buf.WriteString(str[:len(str)-1])
			r.buf.WriteString("\n")
			continue
		}
		r.buf.WriteString(str)
		r.buf.WriteString("\n")
		r.isMulti = false
		if v := strings.TrimSpace(str); v != "" {
			line.AppendHistory(v)
		}
		r.executeBuffered()
	}
}

// executeBuffered compiles and runs everything entered so far. A
// trailing line that looks like a bare expression is wrapped in
// print(...) so the REPL echoes a result the way an interactive
// session is expected to, without the language itself gaining an
// implicit "last expression" feature.
func (r *repl) executeBuffered() {
	src := r.buf.String()
	wrapped := wrapLastExprInPrint(src)

	vm, err := ember.Create([]ember.NamedSource{{Name: "(repl)", Src: wrapped}}, r.regs, nil)
	if err != nil {
		fmt.Fprintf(r.out, "!   %v\n", err)
		return
	}
	defer vm.Destroy()
	if err := vm.Run(0); err != nil {
		fmt.Fprintf(r.out, "!   %s\n", vm.Err())
	}
}

func wrapLastExprInPrint(src string) string {
	lines := strings.Split(strings.TrimRight(src, "\n"), "\n")
	if len(lines) == 0 {
		return src
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" || looksLikeStatement(last) {
		return src
	}
	lines[len(lines)-1] = "print(" + last + ")"
	return strings.Join(lines, "\n")
}

func looksLikeStatement(line string) bool {
	for _, kw := range []string{"if", "while", "for", "func", "break", "continue", "return", "}"} {
		if strings.HasPrefix(line, kw) {
			return true
		}
	}
	return strings.Contains(line, ":=") || strings.Contains(line, "=") && !strings.Contains(line, "==")
}

func (r *repl) printInfo() {
	fmt.Fprintln(r.out, title, "-", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintln(r.out, "Write .exit to quit, .reset to clear bindings")
	fmt.Fprintln(r.out)
}

func hasInputRedirection() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeNamedPipe == os.ModeNamedPipe || info.Size() > 0
}

func checkErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
