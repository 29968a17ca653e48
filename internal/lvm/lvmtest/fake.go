// Package lvmtest provides an in-memory lvm for tests.
//
// FakeLVM implements lvm.Runner and understands exactly the command lines
// produced by lvm.Dispatcher and lvm.Cache, so code under test can be driven
// end to end without a volume group.
package lvmtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jbweber/strata/internal/lvm"
)

// LV is a fake logical volume.
type LV struct {
	Size    int64
	PoolLV  string
	Attr    string
	Origin  string
	Percent float64
	Data    string
}

// FakeLVM is an in-memory lvm.
type FakeLVM struct {
	mu       sync.Mutex
	lvs      map[string]*LV
	calls    [][]string
	failures []failure

	// Legacy makes "lvcreate --help" omit --setactivationskip.
	Legacy bool
}

type failure struct {
	match  func(argv []string) bool
	stderr string
	code   int
	once   bool
}

// New returns an empty FakeLVM.
func New() *FakeLVM {
	return &FakeLVM{lvs: map[string]*LV{}}
}

// AddThinPool adds a thin pool vg/pool of size bytes.
func (f *FakeLVM) AddThinPool(vg, pool string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lvs[vg+"/"+pool] = &LV{Size: size, Attr: "twi-aotz--", Percent: 0}
}

// AddVolume adds an arbitrary logical volume.
func (f *FakeLVM) AddVolume(name string, lv LV) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := lv
	f.lvs[name] = &cp
}

// Get returns a copy of the named volume.
func (f *FakeLVM) Get(name string) (LV, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lv, ok := f.lvs[name]
	if !ok {
		return LV{}, false
	}
	return *lv, true
}

// Names returns every volume name, sorted.
func (f *FakeLVM) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.lvs))
	for name := range f.lvs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Write sets the content of a volume.
func (f *FakeLVM) Write(name, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lv, ok := f.lvs[name]
	if !ok {
		return fmt.Errorf("no such volume %s", name)
	}
	lv.Data = data
	return nil
}

// Read returns the content of a volume.
func (f *FakeLVM) Read(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lv, ok := f.lvs[name]
	if !ok {
		return "", fmt.Errorf("no such volume %s", name)
	}
	return lv.Data, nil
}

// SetActive toggles the state column of a volume's lv_attr.
func (f *FakeLVM) SetActive(name string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lv, ok := f.lvs[name]
	if !ok {
		return
	}
	attr := []byte(lv.Attr)
	if len(attr) > 4 {
		if active {
			attr[4] = 'a'
		} else {
			attr[4] = '-'
		}
	}
	lv.Attr = string(attr)
}

// SetPercent sets data_percent of a volume.
func (f *FakeLVM) SetPercent(name string, pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lv, ok := f.lvs[name]; ok {
		lv.Percent = pct
	}
}

// FailWhen makes every command whose argv contains all of words exit with
// code 5 and stderr.
func (f *FakeLVM) FailWhen(stderr string, words ...string) {
	f.addFailure(stderr, false, words)
}

// FailOnceWhen is FailWhen for the next matching command only.
func (f *FakeLVM) FailOnceWhen(stderr string, words ...string) {
	f.addFailure(stderr, true, words)
}

func (f *FakeLVM) addFailure(stderr string, once bool, words []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure{
		match: func(argv []string) bool {
			for _, w := range words {
				found := false
				for _, a := range argv {
					if a == w {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			}
			return true
		},
		stderr: stderr,
		code:   5,
		once:   once,
	})
}

// ClearFailures removes all injected failures.
func (f *FakeLVM) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = nil
}

// Calls returns every argv run so far.
func (f *FakeLVM) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the argvs whose lvm subcommand (lvcreate, lvremove, ...) is sub.
func (f *FakeLVM) CallsTo(sub string) [][]string {
	var out [][]string
	for _, argv := range f.Calls() {
		if args := stripPrefix(argv); len(args) > 0 && args[0] == sub {
			out = append(out, argv)
		}
	}
	return out
}

// ResetCalls forgets recorded calls.
func (f *FakeLVM) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func stripPrefix(argv []string) []string {
	if len(argv) > 0 && argv[0] == "sudo" {
		argv = argv[1:]
	}
	if len(argv) > 0 && argv[0] == "lvm" {
		argv = argv[1:]
	}
	return argv
}

// Run implements lvm.Runner.
func (f *FakeLVM) Run(ctx context.Context, name string, args ...string) (lvm.Result, error) {
	if err := ctx.Err(); err != nil {
		return lvm.Result{}, err
	}

	argv := append([]string{name}, args...)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, argv)

	for i, fl := range f.failures {
		if fl.match(argv) {
			if fl.once {
				f.failures = append(f.failures[:i], f.failures[i+1:]...)
			}
			return lvm.Result{Stderr: fl.stderr, ExitCode: fl.code}, nil
		}
	}

	cmd := stripPrefix(argv)
	if len(cmd) == 0 {
		return fail("no command"), nil
	}

	switch cmd[0] {
	case "lvs":
		return lvm.Result{Stdout: f.lvsOutput()}, nil
	case "lvcreate":
		if len(cmd) == 2 && cmd[1] == "--help" {
			if f.Legacy {
				return lvm.Result{Stdout: "lvcreate --snapshot ..."}, nil
			}
			return lvm.Result{Stdout: "lvcreate --setactivationskip y|n ..."}, nil
		}
		return f.lvcreate(cmd[1:]), nil
	case "lvremove":
		return f.lvremove(cmd[1:]), nil
	case "lvrename":
		return f.lvrename(cmd[1:]), nil
	case "lvextend":
		return f.lvextend(cmd[1:]), nil
	case "lvchange":
		return f.lvchange(cmd[1:]), nil
	}

	return fail("unknown command " + cmd[0]), nil
}

func fail(msg string) lvm.Result {
	return lvm.Result{Stderr: "  " + msg + "\n", ExitCode: 5}
}

func notFound(name string) lvm.Result {
	return fail(fmt.Sprintf("Failed to find logical volume \"%s\"", name))
}

func normalize(name string) string {
	return strings.TrimPrefix(name, "/dev/")
}

func (f *FakeLVM) lvsOutput() string {
	names := make([]string, 0, len(f.lvs))
	for name := range f.lvs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		lv := f.lvs[name]
		vg, lvName, _ := strings.Cut(name, "/")
		fmt.Fprintf(&b, "  %s;%s;%s;%dB;%.2f;%s;%s\n",
			vg, lv.PoolLV, lvName, lv.Size, lv.Percent, lv.Attr, lv.Origin)
	}
	return b.String()
}

func flagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func (f *FakeLVM) lvcreate(args []string) lvm.Result {
	dst := flagValue(args, "-n")
	if dst == "" {
		return fail("missing --name")
	}

	if src := flagValue(args, "-s"); src != "" {
		src = normalize(src)
		origin, ok := f.lvs[src]
		if !ok {
			return notFound(src)
		}
		vg, srcLV, _ := strings.Cut(src, "/")
		if !strings.Contains(dst, "/") {
			dst = vg + "/" + dst
		}
		if _, exists := f.lvs[dst]; exists {
			return fail(fmt.Sprintf("Logical Volume \"%s\" already exists in volume group \"%s\"", dst, vg))
		}
		f.lvs[dst] = &LV{
			Size:    origin.Size,
			PoolLV:  origin.PoolLV,
			Attr:    "Vwi-a-tz--",
			Origin:  srcLV,
			Percent: origin.Percent,
			Data:    origin.Data,
		}
		return lvm.Result{Stdout: fmt.Sprintf("  Logical volume \"%s\" created.\n", dst)}
	}

	pool := flagValue(args, "-T")
	if pool == "" {
		return fail("missing --thinpool")
	}
	if _, ok := f.lvs[pool]; !ok {
		return notFound(pool)
	}
	size, err := strconv.ParseInt(strings.TrimSuffix(flagValue(args, "-V"), "B"), 10, 64)
	if err != nil {
		return fail("invalid virtual size")
	}

	vg, poolLV, _ := strings.Cut(pool, "/")
	if !strings.Contains(dst, "/") {
		dst = vg + "/" + dst
	}
	if _, exists := f.lvs[dst]; exists {
		return fail(fmt.Sprintf("Logical Volume \"%s\" already exists in volume group \"%s\"", dst, vg))
	}
	f.lvs[dst] = &LV{Size: size, PoolLV: poolLV, Attr: "Vwi-a-tz--"}
	return lvm.Result{Stdout: fmt.Sprintf("  Logical volume \"%s\" created.\n", dst)}
}

func (f *FakeLVM) lvremove(args []string) lvm.Result {
	if len(args) != 2 || args[0] != "-f" {
		return fail("unexpected lvremove arguments")
	}
	name := normalize(args[1])
	if _, ok := f.lvs[name]; !ok {
		return notFound(name)
	}
	delete(f.lvs, name)
	return lvm.Result{Stdout: fmt.Sprintf("  Logical volume \"%s\" successfully removed\n", name)}
}

func (f *FakeLVM) lvrename(args []string) lvm.Result {
	if len(args) != 2 {
		return fail("unexpected lvrename arguments")
	}
	oldName, newName := normalize(args[0]), normalize(args[1])
	lv, ok := f.lvs[oldName]
	if !ok {
		return notFound(oldName)
	}
	if !strings.Contains(newName, "/") {
		newName = strings.SplitN(oldName, "/", 2)[0] + "/" + newName
	}
	if _, exists := f.lvs[newName]; exists {
		return fail(fmt.Sprintf("Logical Volume \"%s\" already exists", newName))
	}
	delete(f.lvs, oldName)
	f.lvs[newName] = lv
	return lvm.Result{Stdout: fmt.Sprintf("  Renamed \"%s\" to \"%s\"\n", oldName, newName)}
}

func (f *FakeLVM) lvextend(args []string) lvm.Result {
	if len(args) != 2 || !strings.HasPrefix(args[0], "-L") || !strings.HasSuffix(args[0], "m") {
		return fail("unexpected lvextend arguments")
	}
	mib, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(args[0], "-L"), "m"), 10, 64)
	if err != nil {
		return fail("invalid size")
	}
	name := normalize(args[1])
	lv, ok := f.lvs[name]
	if !ok {
		return notFound(name)
	}
	size := mib * lvm.MiB
	if size < lv.Size {
		return fail("New size given is smaller than the current size")
	}
	lv.Size = size
	return lvm.Result{Stdout: fmt.Sprintf("  Logical volume %s successfully resized.\n", name)}
}

func (f *FakeLVM) lvchange(args []string) lvm.Result {
	if len(args) != 2 || args[0] != "-ay" {
		return fail("unexpected lvchange arguments")
	}
	name := normalize(args[1])
	lv, ok := f.lvs[name]
	if !ok {
		return notFound(name)
	}
	attr := []byte(lv.Attr)
	if len(attr) > 4 {
		attr[4] = 'a'
	}
	lv.Attr = string(attr)
	return lvm.Result{}
}
