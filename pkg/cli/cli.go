// Package cli is the flag parser and help renderer of the basc driver.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const (
	sectionIndent = "    "
	entryIndent   = "        "
)

// value is the storage behind one flag.
type value interface {
	Set(string) error
}

type stringValue struct{ p *string }

func (v stringValue) Set(s string) error {
	*v.p = s
	return nil
}

type boolValue struct{ p *bool }

// Set accepts an empty string as "true" so that a bare -v switches the flag on.
func (v boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = b
	return nil
}

type listValue struct{ p *[]string }

func (v listValue) Set(s string) error {
	*v.p = append(*v.p, s)
	return nil
}

type flag struct {
	name      string
	shorthand string
	usage     string
	value     value
	def       string
	argName   string
}

func (fl *flag) isBool() bool {
	_, ok := fl.value.(boolValue)
	return ok
}

// spelling is the left column of the flag's help line.
func (fl *flag) spelling() string {
	switch {
	case fl.shorthand != "" && fl.isBool():
		return fmt.Sprintf("-%s, --%s", fl.shorthand, fl.name)
	case fl.shorthand != "":
		return fmt.Sprintf("-%s <%s>, --%s <%s>", fl.shorthand, fl.argName, fl.name, fl.argName)
	case fl.isBool() || fl.argName == "":
		return "--" + fl.name
	}
	return fmt.Sprintf("--%s=%s", fl.name, fl.argName)
}

// FlagGroupEntry documents one name accepted by a prefix flag such as -W.
type FlagGroupEntry struct {
	Name    string
	Usage   string
	Enabled bool
}

type flagGroup struct {
	title   string
	prefix  string
	kind    string
	header  string
	entries []FlagGroupEntry
}

// FlagSet holds long flags, their one-letter shorthands and the prefix
// flags that collect everything following the prefix.
type FlagSet struct {
	name       string
	long       map[string]*flag
	short      map[string]*flag
	prefixes   map[string]*flag
	groups     []flagGroup
	positional []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:     name,
		long:     make(map[string]*flag),
		short:    make(map[string]*flag),
		prefixes: make(map[string]*flag),
	}
}

// Args returns the positional arguments of the last Parse.
func (f *FlagSet) Args() []string { return f.positional }

func (f *FlagSet) String(p *string, name, shorthand, def, usage, argName string) {
	*p = def
	f.define(stringValue{p}, name, shorthand, usage, def, argName)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, def bool, usage string) {
	*p = def
	f.define(boolValue{p}, name, shorthand, usage, "", "")
}

// List appends every occurrence of the flag to p.
func (f *FlagSet) List(p *[]string, name, shorthand string, def []string, usage, argName string) {
	*p = def
	f.define(listValue{p}, name, shorthand, usage, strings.Join(def, ","), argName)
}

// Special collects every `-<prefix><value>` argument into p, in order.
func (f *FlagSet) Special(p *[]string, prefix, usage, argName string) {
	*p = []string{}
	f.define(listValue{p}, prefix, "", usage, "", argName)
	f.prefixes[prefix] = f.long[prefix]
}

// AddFlagGroup documents the names a Special prefix accepts.
func (f *FlagSet) AddFlagGroup(title, prefix, kind, header string, entries []FlagGroupEntry) {
	f.groups = append(f.groups, flagGroup{title: title, prefix: prefix, kind: kind, header: header, entries: entries})
}

func (f *FlagSet) define(v value, name, shorthand, usage, def, argName string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.long[name]; ok {
		panic("flag redefined: " + name)
	}
	fl := &flag{name: name, shorthand: shorthand, usage: usage, value: v, def: def, argName: argName}
	f.long[name] = fl
	if shorthand == "" {
		return
	}
	if _, ok := f.short[shorthand]; ok {
		panic("shorthand flag redefined: " + shorthand)
	}
	f.short[shorthand] = fl
}

// Parse reads arguments. Everything after "--" is positional.
func (f *FlagSet) Parse(arguments []string) error {
	f.positional = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.positional = append(f.positional, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			f.positional = append(f.positional, arg)
			continue
		}

		fl, spelled, inline, hasInline, err := f.resolve(arg)
		if err != nil {
			return err
		}
		switch {
		case hasInline:
			err = fl.value.Set(inline)
		case fl.isBool():
			err = fl.value.Set("")
		case i+1 < len(arguments):
			i++
			err = fl.value.Set(arguments[i])
		default:
			return fmt.Errorf("flag needs an argument: %s", spelled)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// resolve finds the flag arg names and how it was spelled. A prefix flag and
// a shorthand carry their value glued to the name (-Wall, -ofile); long
// flags use "=".
func (f *FlagSet) resolve(arg string) (fl *flag, spelled, inline string, hasInline bool, err error) {
	if rest, ok := strings.CutPrefix(arg, "--"); ok {
		name, val, found := strings.Cut(rest, "=")
		if name == "" {
			return nil, "", "", false, fmt.Errorf("empty flag name")
		}
		fl = f.long[name]
		if fl == nil {
			return nil, "", "", false, fmt.Errorf("unknown flag: --%s", name)
		}
		return fl, "--" + name, val, found, nil
	}

	body := arg[1:]
	name, val, found := strings.Cut(body, "=")
	if fl := f.long[name]; fl != nil && f.prefixes[name] == nil {
		return fl, "-" + name, val, found, nil
	}
	for prefix, fl := range f.prefixes {
		if strings.HasPrefix(body, prefix) && len(body) > len(prefix) {
			return fl, "-" + prefix, body[len(prefix):], true, nil
		}
	}
	short := body[:1]
	fl = f.short[short]
	if fl == nil {
		return nil, "", "", false, fmt.Errorf("unknown shorthand flag: -%s", short)
	}
	if fl.isBool() || len(body) == 1 {
		return fl, "-" + short, "", false, nil
	}
	return fl, "-" + short, body[1:], true, nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Version     string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error

	Stdout, Stderr io.Writer
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// ErrHelp is returned by Run when the help or version page was shown.
var ErrHelp = fmt.Errorf("help requested")

// Run parses arguments and calls Action with the positional ones.
func (a *App) Run(arguments []string) error {
	var help, version bool
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")
	if a.Version != "" {
		a.FlagSet.Bool(&version, "version", "", false, "Print the version and exit")
	}

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(a.Stderr, err)
		a.writeUsage(a.Stderr)
		return err
	}
	switch {
	case help:
		a.writeHelp(a.Stdout)
		return ErrHelp
	case version:
		fmt.Fprintf(a.Stdout, "%s %s\n", a.Name, a.Version)
		return ErrHelp
	case a.Action != nil:
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// options returns the non-prefix flags sorted by name.
func (a *App) options() []*flag {
	var out []*flag
	for name, fl := range a.FlagSet.long {
		if a.FlagSet.prefixes[name] == nil {
			out = append(out, fl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// layout is the column geometry shared by every entry of a page.
type layout struct {
	term  int
	left  int
	usage int
}

func (a *App) measure(withGroups bool) layout {
	l := layout{term: terminalWidth()}
	widen := func(left, usage string) {
		l.left = max(l.left, runewidth.StringWidth(left))
		l.usage = max(l.usage, runewidth.StringWidth(usage))
	}
	for _, fl := range a.options() {
		widen(fl.spelling(), fl.usage)
	}
	if !withGroups {
		return l
	}
	for _, g := range a.FlagSet.groups {
		on, off := g.spellings()
		widen(on, "")
		widen(off, "")
		for _, e := range g.entries {
			widen(e.Name, e.Usage)
		}
	}
	return l
}

func (a *App) writeUsage(w io.Writer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	if opts := a.options(); len(opts) > 0 {
		l := a.measure(false)
		fmt.Fprintf(&sb, "\n%sOptions\n", sectionIndent)
		for _, fl := range opts {
			l.entry(&sb, fl.spelling(), fl.usage, fl.defaultCell())
		}
	}
	fmt.Fprintf(&sb, "\nRun '%s --help' for all available options and flags.\n", a.Name)
	io.WriteString(w, sb.String())
}

func (a *App) writeHelp(w io.Writer) {
	var sb strings.Builder
	l := a.measure(true)

	if a.Version != "" {
		fmt.Fprintf(&sb, "\n%s%s %s\n", sectionIndent, a.Name, a.Version)
	}
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", sectionIndent, a.Repository)
	}
	if a.Synopsis != "" {
		synopsis := strings.NewReplacer("[", "<", "]", ">").Replace(a.Synopsis)
		fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", sectionIndent, entryIndent, a.Name, synopsis)
	}
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n%s%s\n", sectionIndent, entryIndent, a.Description)
	}
	if opts := a.options(); len(opts) > 0 {
		fmt.Fprintf(&sb, "\n%sOptions\n", sectionIndent)
		for _, fl := range opts {
			l.entry(&sb, fl.spelling(), fl.usage, fl.defaultCell())
		}
	}

	groups := append([]flagGroup(nil), a.FlagSet.groups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].title < groups[j].title })
	for _, g := range groups {
		g.write(&sb, l)
	}
	io.WriteString(w, sb.String())
}

// defaultCell shows a non-empty default of a valued flag as |value|.
func (fl *flag) defaultCell() string {
	if fl.def == "" || fl.isBool() {
		return ""
	}
	return "|" + fl.def + "|"
}

func (g flagGroup) kindName() string {
	if g.kind == "" {
		return "flag"
	}
	return g.kind
}

func (g flagGroup) spellings() (on, off string) {
	kind := g.kindName()
	return fmt.Sprintf("-%s<%s>", g.prefix, kind), fmt.Sprintf("-%sno-<%s>", g.prefix, kind)
}

func (g flagGroup) write(sb *strings.Builder, l layout) {
	kind := g.kindName()
	on, off := g.spellings()
	fmt.Fprintf(sb, "\n%s%s\n", sectionIndent, g.title)
	fmt.Fprintf(sb, "%s%-*s Enable a specific %s\n", entryIndent, l.left, on, kind)
	fmt.Fprintf(sb, "%s%-*s Disable a specific %s\n", entryIndent, l.left, off, kind)
	if g.header != "" {
		fmt.Fprintf(sb, "%s%s\n", sectionIndent, g.header)
	}

	entries := append([]FlagGroupEntry(nil), g.entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, e := range entries {
		state := "|-|"
		if e.Enabled {
			state = "|x|"
		}
		l.entry(sb, e.Name, e.Usage, state)
	}
}

// entry writes one help line, wrapping usage to the terminal width.
// Continuation lines start under the usage column.
func (l layout) entry(sb *strings.Builder, left, usage, right string) {
	room := l.term - runewidth.StringWidth(entryIndent) - l.left - 3 - runewidth.StringWidth(right)
	room = max(room, 10)
	lines := wrapText(usage, room)

	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	if right == "" {
		fmt.Fprintf(sb, "%s%-*s %s\n", entryIndent, l.left, left, first)
	} else {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", entryIndent, l.left, left, min(l.usage, room), first, right)
	}

	pad := strings.Repeat(" ", l.left+1)
	for _, line := range lines[min(1, len(lines)):] {
		fmt.Fprintf(sb, "%s%s%s\n", entryIndent, pad, line)
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

// wrapText breaks text into lines of at most width display columns. A word
// wider than width gets a line of its own.
func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	var lines []string
	var line strings.Builder
	used := 0
	for _, word := range strings.Fields(text) {
		n := runewidth.StringWidth(word)
		if used > 0 && used+n+1 > width {
			lines = append(lines, line.String())
			line.Reset()
			used = 0
		}
		if used > 0 {
			line.WriteByte(' ')
			used++
		}
		line.WriteString(word)
		used += n
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
