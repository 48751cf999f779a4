package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"bslanalyzer/internal/entity"
	"bslanalyzer/internal/typeindex"
)

var typeCmd = &cobra.Command{
	Use:   "type <name>",
	Short: "Describe a type: members, ancestors and references",
	Long: `Look a type up by qualified or display name and print its resolved
members (own and inherited), ancestors, descendants and references.

Examples:
  bsl-index type Справочники.Товары
  bsl-index type СправочникОбъект --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runType,
}

var assignableCmd = &cobra.Command{
	Use:   "assignable <from> <to>",
	Short: "Check whether a value of one type can be used where another is expected",
	Args:  cobra.ExactArgs(2),
	RunE:  runAssignable,
}

func init() {
	rootCmd.AddCommand(typeCmd, assignableCmd)
}

// TypeResponseCLI describes one resolved type.
type TypeResponseCLI struct {
	Entity       *entity.Entity    `json:"entity"`
	Methods      []entity.Method   `json:"methods"`
	Properties   []entity.Property `json:"properties"`
	Ancestors    []string          `json:"ancestors"`
	Descendants  []string          `json:"descendants"`
	References   []string          `json:"references"`
	ReferencedBy []string          `json:"referencedBy"`
}

// AssignableResponseCLI is the assignable command output.
type AssignableResponseCLI struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Assignable bool   `json:"assignable"`
}

// loadIndex returns the cached index, building it when needed.
func loadIndex(e *env) (*typeindex.Index, error) {
	b, err := e.builder()
	if err != nil {
		return nil, err
	}
	ctx, cancel := signalContext()
	defer cancel()
	idx, _, err := b.LoadOrBuild(ctx, e.request())
	return idx, err
}

func runType(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	idx, err := loadIndex(e)
	if err != nil {
		return err
	}
	ent, err := idx.Lookup(args[0])
	if err != nil {
		return err
	}
	name := ent.QualifiedName

	resp := &TypeResponseCLI{
		Entity:       ent,
		Ancestors:    qualifiedNames(idx.GetAncestors(name)),
		Descendants:  qualifiedNames(idx.GetDescendants(name)),
		References:   qualifiedNames(idx.GetReferences(name)),
		ReferencedBy: qualifiedNames(idx.GetReferencedBy(name)),
	}
	for _, m := range idx.GetAllMethods(name) {
		resp.Methods = append(resp.Methods, m)
	}
	sort.Slice(resp.Methods, func(i, j int) bool { return resp.Methods[i].Name < resp.Methods[j].Name })
	for _, p := range idx.GetAllProperties(name) {
		resp.Properties = append(resp.Properties, p)
	}
	sort.Slice(resp.Properties, func(i, j int) bool { return resp.Properties[i].Name < resp.Properties[j].Name })
	return printResponse(resp)
}

func runAssignable(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	idx, err := loadIndex(e)
	if err != nil {
		return err
	}
	return printResponse(&AssignableResponseCLI{From: args[0], To: args[1], Assignable: idx.IsAssignable(args[0], args[1])})
}

func qualifiedNames(es []*entity.Entity) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.QualifiedName)
	}
	return out
}

// Human implements humanFormatter.
func (r *TypeResponseCLI) Human() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %s)\n", r.Entity.QualifiedName, r.Entity.Kind, r.Entity.Category)
	if r.Entity.Documentation != "" {
		fmt.Fprintf(&b, "  %s\n", strings.ReplaceAll(r.Entity.Documentation, "\n", "\n  "))
	}
	writeList(&b, "Ancestors", r.Ancestors)
	if len(r.Properties) > 0 {
		fmt.Fprintf(&b, "Properties (%d):\n", len(r.Properties))
		for _, p := range r.Properties {
			if p.Type != "" {
				fmt.Fprintf(&b, "  %s: %s\n", p.Name, p.Type)
			} else {
				fmt.Fprintf(&b, "  %s\n", p.Name)
			}
		}
	}
	if len(r.Methods) > 0 {
		fmt.Fprintf(&b, "Methods (%d):\n", len(r.Methods))
		for _, m := range r.Methods {
			params := make([]string, 0, len(m.Parameters))
			for _, p := range m.Parameters {
				params = append(params, p.Name)
			}
			fmt.Fprintf(&b, "  %s(%s)", m.Name, strings.Join(params, ", "))
			if m.ReturnType != "" {
				fmt.Fprintf(&b, ": %s", m.ReturnType)
			}
			b.WriteString("\n")
		}
	}
	writeList(&b, "Descendants", r.Descendants)
	writeList(&b, "References", r.References)
	writeList(&b, "Referenced by", r.ReferencedBy)
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", title, len(items))
	for _, it := range items {
		fmt.Fprintf(b, "  %s\n", it)
	}
}

// Human implements humanFormatter.
func (r *AssignableResponseCLI) Human() string {
	if r.Assignable {
		return fmt.Sprintf("%s is assignable to %s", r.From, r.To)
	}
	return fmt.Sprintf("%s is not assignable to %s", r.From, r.To)
}
