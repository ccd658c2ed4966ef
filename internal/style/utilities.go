package style

import (
	"fmt"
	"sort"
	"strings"
)

// utility is one generated rule: the class name and its declarations.
type utility struct {
	class string
	decls string
}

// baseLayer replaces @tailwind base.
const baseLayer = `*, ::before, ::after {
  box-sizing: border-box;
  border-width: 0;
  border-style: solid;
  border-color: #e5e7eb;
}
html {
  line-height: 1.5;
  -webkit-text-size-adjust: 100%;
  tab-size: 4;
  font-family: ui-sans-serif, system-ui, -apple-system, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
}
body {
  margin: 0;
  line-height: inherit;
}
h1, h2, h3, h4, h5, h6 {
  font-size: inherit;
  font-weight: inherit;
}
`

// componentTable backs @tailwind components. Only classes found in the
// component sources are emitted.
var componentTable = []utility{
	{"container", "width: 100%; margin-right: auto; margin-left: auto; padding-right: 1rem; padding-left: 1rem;"},
	{"sr-only", "position: absolute; width: 1px; height: 1px; padding: 0; margin: -1px; overflow: hidden; clip: rect(0, 0, 0, 0); white-space: nowrap; border-width: 0;"},
}

// utilityTable backs @tailwind utilities, in emission order.
var utilityTable = buildUtilityTable()

var spacingScale = []struct {
	key   string
	value string
}{
	{"0", "0"}, {"1", "0.25rem"}, {"2", "0.5rem"}, {"3", "0.75rem"}, {"4", "1rem"},
	{"6", "1.5rem"}, {"8", "2rem"}, {"12", "3rem"}, {"16", "4rem"}, {"auto", "auto"},
}

var colorScale = []struct {
	name  string
	value string
}{
	{"white", "#ffffff"}, {"black", "#000000"},
	{"gray-100", "#f3f4f6"}, {"gray-300", "#d1d5db"}, {"gray-500", "#6b7280"},
	{"gray-700", "#374151"}, {"gray-900", "#111827"},
	{"blue-500", "#3b82f6"}, {"blue-600", "#2563eb"},
	{"green-500", "#10b981"}, {"red-500", "#ef4444"}, {"yellow-500", "#f59e0b"},
}

func buildUtilityTable() []utility {
	table := []utility{
		{"block", "display: block;"},
		{"inline", "display: inline;"},
		{"inline-block", "display: inline-block;"},
		{"flex", "display: flex;"},
		{"inline-flex", "display: inline-flex;"},
		{"grid", "display: grid;"},
		{"hidden", "display: none;"},
		{"flex-row", "flex-direction: row;"},
		{"flex-col", "flex-direction: column;"},
		{"flex-wrap", "flex-wrap: wrap;"},
		{"items-start", "align-items: flex-start;"},
		{"items-center", "align-items: center;"},
		{"items-end", "align-items: flex-end;"},
		{"justify-start", "justify-content: flex-start;"},
		{"justify-center", "justify-content: center;"},
		{"justify-between", "justify-content: space-between;"},
		{"justify-end", "justify-content: flex-end;"},
		{"relative", "position: relative;"},
		{"absolute", "position: absolute;"},
		{"fixed", "position: fixed;"},
		{"sticky", "position: sticky;"},
		{"w-full", "width: 100%;"},
		{"w-1/2", "width: 50%;"},
		{"w-1/3", "width: 33.333333%;"},
		{"w-1/4", "width: 25%;"},
		{"h-full", "height: 100%;"},
		{"h-screen", "height: 100vh;"},
		{"text-xs", "font-size: 0.75rem; line-height: 1rem;"},
		{"text-sm", "font-size: 0.875rem; line-height: 1.25rem;"},
		{"text-base", "font-size: 1rem; line-height: 1.5rem;"},
		{"text-lg", "font-size: 1.125rem; line-height: 1.75rem;"},
		{"text-xl", "font-size: 1.25rem; line-height: 1.75rem;"},
		{"text-2xl", "font-size: 1.5rem; line-height: 2rem;"},
		{"text-3xl", "font-size: 1.875rem; line-height: 2.25rem;"},
		{"font-normal", "font-weight: 400;"},
		{"font-medium", "font-weight: 500;"},
		{"font-semibold", "font-weight: 600;"},
		{"font-bold", "font-weight: 700;"},
		{"text-left", "text-align: left;"},
		{"text-center", "text-align: center;"},
		{"text-right", "text-align: right;"},
		{"border", "border-width: 1px;"},
		{"border-2", "border-width: 2px;"},
		{"rounded", "border-radius: 0.25rem;"},
		{"rounded-md", "border-radius: 0.375rem;"},
		{"rounded-lg", "border-radius: 0.5rem;"},
		{"rounded-full", "border-radius: 9999px;"},
		{"shadow", "box-shadow: 0 1px 3px 0 rgba(0, 0, 0, 0.1), 0 1px 2px 0 rgba(0, 0, 0, 0.06);"},
		{"shadow-md", "box-shadow: 0 4px 6px -1px rgba(0, 0, 0, 0.1), 0 2px 4px -1px rgba(0, 0, 0, 0.06);"},
		{"shadow-lg", "box-shadow: 0 10px 15px -3px rgba(0, 0, 0, 0.1), 0 4px 6px -2px rgba(0, 0, 0, 0.05);"},
		{"underline", "text-decoration-line: underline;"},
		{"cursor-pointer", "cursor: pointer;"},
	}

	spacing := []struct {
		prefix string
		props  []string
	}{
		{"p", []string{"padding"}},
		{"px", []string{"padding-left", "padding-right"}},
		{"py", []string{"padding-top", "padding-bottom"}},
		{"m", []string{"margin"}},
		{"mx", []string{"margin-left", "margin-right"}},
		{"my", []string{"margin-top", "margin-bottom"}},
		{"mt", []string{"margin-top"}},
		{"mb", []string{"margin-bottom"}},
		{"gap", []string{"gap"}},
	}
	for _, s := range spacing {
		for _, step := range spacingScale {
			if step.key == "auto" && !strings.HasPrefix(s.prefix, "m") {
				continue
			}
			var decls []string
			for _, prop := range s.props {
				decls = append(decls, fmt.Sprintf("%s: %s;", prop, step.value))
			}
			table = append(table, utility{s.prefix + "-" + step.key, strings.Join(decls, " ")})
		}
	}

	for _, c := range colorScale {
		table = append(table,
			utility{"text-" + c.name, "color: " + c.value + ";"},
			utility{"bg-" + c.name, "background-color: " + c.value + ";"},
			utility{"border-" + c.name, "border-color: " + c.value + ";"},
		)
	}

	return table
}

// statePseudo maps state variants to the pseudo-class they add.
var statePseudo = map[string]string{
	"hover":  ":hover",
	"focus":  ":focus",
	"active": ":active",
}

// breakpoints lists responsive variants in emission order.
var breakpoints = []struct {
	prefix   string
	minWidth string
}{
	{"sm", "640px"}, {"md", "768px"}, {"lg", "1024px"}, {"xl", "1280px"},
}

var (
	utilityIndex   = indexTable(utilityTable)
	componentIndex = indexTable(componentTable)
)

func indexTable(table []utility) map[string]int {
	idx := make(map[string]int, len(table))
	for i, u := range table {
		idx[u.class] = i
	}
	return idx
}

// variantClass splits a class into its responsive breakpoint, state
// variant and base utility. ok is false when any part is unknown.
func variantClass(class string) (breakpoint, state, base string, ok bool) {
	base = class
	if i := strings.Index(base, ":"); i > 0 {
		prefix := base[:i]
		for _, bp := range breakpoints {
			if bp.prefix == prefix {
				breakpoint = prefix
				base = base[i+1:]
				break
			}
		}
	}
	if i := strings.Index(base, ":"); i > 0 {
		if _, known := statePseudo[base[:i]]; !known {
			return "", "", "", false
		}
		state = base[:i]
		base = base[i+1:]
	}
	if strings.Contains(base, ":") {
		return "", "", "", false
	}
	_, ok = utilityIndex[base]
	return breakpoint, state, base, ok
}

// escapeClass escapes a class name for use in a selector.
func escapeClass(class string) string {
	var b strings.Builder
	for _, r := range class {
		switch r {
		case ':', '/', '.', '[', ']', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func ruleFor(class, pseudo, decls string) string {
	return "." + escapeClass(class) + pseudo + " { " + decls + " }\n"
}

// renderComponents emits the component classes that appear in used.
func renderComponents(used map[string]bool) string {
	var b strings.Builder
	for _, c := range componentTable {
		if used[c.class] {
			b.WriteString(ruleFor(c.class, "", c.decls))
		}
	}
	return b.String()
}

// renderUtilities emits one rule per known utility in used. Plain
// utilities come first in table order, then state variants, then one media
// block per breakpoint, so the output depends only on the set of classes.
func renderUtilities(used map[string]bool) string {
	type variant struct {
		class, state, base string
	}

	var plain []string
	var states []variant
	responsive := make(map[string][]variant)

	for class := range used {
		if _, isComponent := componentIndex[class]; isComponent {
			continue
		}
		bp, state, base, ok := variantClass(class)
		if !ok {
			continue
		}
		v := variant{class: class, state: state, base: base}
		switch {
		case bp != "":
			responsive[bp] = append(responsive[bp], v)
		case state != "":
			states = append(states, v)
		default:
			plain = append(plain, class)
		}
	}

	byTable := func(vs []variant) {
		sort.Slice(vs, func(i, j int) bool {
			a, b := utilityIndex[vs[i].base], utilityIndex[vs[j].base]
			if a != b {
				return a < b
			}
			return vs[i].class < vs[j].class
		})
	}

	sort.Slice(plain, func(i, j int) bool {
		return utilityIndex[plain[i]] < utilityIndex[plain[j]]
	})
	byTable(states)

	var b strings.Builder
	for _, class := range plain {
		b.WriteString(ruleFor(class, "", utilityTable[utilityIndex[class]].decls))
	}
	for _, v := range states {
		b.WriteString(ruleFor(v.class, statePseudo[v.state], utilityTable[utilityIndex[v.base]].decls))
	}
	for _, bp := range breakpoints {
		vs := responsive[bp.prefix]
		if len(vs) == 0 {
			continue
		}
		byTable(vs)
		fmt.Fprintf(&b, "@media (min-width: %s) {\n", bp.minWidth)
		for _, v := range vs {
			b.WriteString("  " + ruleFor(v.class, statePseudo[v.state], utilityTable[utilityIndex[v.base]].decls))
		}
		b.WriteString("}\n")
	}
	return b.String()
}
