// Package entity defines the value types describing platform and project
// types stored in the type index.
package entity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// idNamespace seeds deterministic entity IDs.
var idNamespace = uuid.MustParse("6f1c9a52-3b7e-4d0a-9c1f-8e2b5d4a7c10")

// SourceKind records where an entity was obtained.
type SourceKind string

const (
	SourcePlatformArchive SourceKind = "platform_archive"
	SourceConfigXML       SourceKind = "config_xml"
	SourceFormXML         SourceKind = "form_xml"
	SourceModule          SourceKind = "module"
	SourceTextReport      SourceKind = "text_report"
	SourceLegacyJSON      SourceKind = "legacy_json"
)

// Source is the provenance tag of an entity. It is used for diagnostics and
// cache partitioning, never for identity.
type Source struct {
	Kind    SourceKind `json:"kind"`
	Version string     `json:"version,omitempty"` // platform version for platform_archive
	Path    string     `json:"path,omitempty"`
}

// ExecutionContext is a place where a type or member is available.
type ExecutionContext string

const (
	ContextClient             ExecutionContext = "client"
	ContextServer             ExecutionContext = "server"
	ContextThinClient         ExecutionContext = "thin_client"
	ContextWebClient          ExecutionContext = "web_client"
	ContextMobileClient       ExecutionContext = "mobile_client"
	ContextMobileServer       ExecutionContext = "mobile_server"
	ContextThickClient        ExecutionContext = "thick_client"
	ContextExternalConnection ExecutionContext = "external_connection"
)

// Parameter describes one method parameter in call-site order.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Method describes a callable member.
type Method struct {
	Name          string             `json:"name"`
	NameEn        string             `json:"name_en,omitempty"`
	Parameters    []Parameter        `json:"parameters,omitempty"`
	ReturnType    string             `json:"return_type,omitempty"`
	Documentation string             `json:"documentation,omitempty"`
	Contexts      []ExecutionContext `json:"contexts,omitempty"`
}

// Property describes a data member.
type Property struct {
	Name          string             `json:"name"`
	NameEn        string             `json:"name_en,omitempty"`
	Type          string             `json:"type,omitempty"`
	ReadOnly      bool               `json:"read_only,omitempty"`
	Indexed       bool               `json:"indexed,omitempty"`
	Documentation string             `json:"documentation,omitempty"`
	Contexts      []ExecutionContext `json:"contexts,omitempty"`
}

// Event describes an event a type raises.
type Event struct {
	Name          string      `json:"name"`
	NameEn        string      `json:"name_en,omitempty"`
	Parameters    []Parameter `json:"parameters,omitempty"`
	Documentation string      `json:"documentation,omitempty"`
}

// Interface holds the members an entity declares itself.
type Interface struct {
	Methods    map[string]Method   `json:"methods,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
	Events     map[string]Event    `json:"events,omitempty"`
}

// AddMethod declares m, replacing any method with the same name.
func (i *Interface) AddMethod(m Method) {
	if i.Methods == nil {
		i.Methods = make(map[string]Method)
	}
	i.Methods[m.Name] = m
}

// AddProperty declares p, replacing any property with the same name.
func (i *Interface) AddProperty(p Property) {
	if i.Properties == nil {
		i.Properties = make(map[string]Property)
	}
	i.Properties[p.Name] = p
}

// AddEvent declares ev, replacing any event with the same name.
func (i *Interface) AddEvent(ev Event) {
	if i.Events == nil {
		i.Events = make(map[string]Event)
	}
	i.Events[ev.Name] = ev
}

// MergeMissing copies members from other that i does not declare yet.
// Existing members win.
func (i *Interface) MergeMissing(other Interface) {
	for name, m := range other.Methods {
		if _, ok := i.Methods[name]; !ok {
			i.AddMethod(m)
		}
	}
	for name, p := range other.Properties {
		if _, ok := i.Properties[name]; !ok {
			i.AddProperty(p)
		}
	}
	for name, ev := range other.Events {
		if _, ok := i.Events[name]; !ok {
			i.AddEvent(ev)
		}
	}
}

// Constraints restrict how a type relates to others and what values it holds.
type Constraints struct {
	ParentTypes []string `json:"parent_types,omitempty"`
	Implements  []string `json:"implements,omitempty"`
	MaxLength   int      `json:"max_length,omitempty"`
	Precision   int      `json:"precision,omitempty"`
	Scale       int      `json:"scale,omitempty"`
	NonNegative bool     `json:"non_negative,omitempty"`
}

// Relationships describes structural links to other entities by name.
type Relationships struct {
	Owner           string   `json:"owner,omitempty"`
	TabularSections []string `json:"tabular_sections,omitempty"`
	Attributes      []string `json:"attributes,omitempty"`
	Forms           []string `json:"forms,omitempty"`
	References      []string `json:"references,omitempty"`
	ReferencedBy    []string `json:"referenced_by,omitempty"`
}

// Lifecycle tracks availability across platform versions.
type Lifecycle struct {
	IntroducedIn string `json:"introduced_in,omitempty"`
	DeprecatedIn string `json:"deprecated_in,omitempty"`
	RemovedIn    string `json:"removed_in,omitempty"`
	ReplacedBy   string `json:"replaced_by,omitempty"`
}

// Entity is one indexed type: a platform builtin, configuration object,
// form or module.
type Entity struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	QualifiedName string             `json:"qualified_name"`
	NameEn        string             `json:"name_en,omitempty"`
	Category      Category           `json:"category"`
	Kind          Kind               `json:"kind"`
	Source        Source             `json:"source"`
	Interface     Interface          `json:"interface"`
	Constraints   Constraints        `json:"constraints"`
	Relationships Relationships      `json:"relationships"`
	Documentation string             `json:"documentation,omitempty"`
	Contexts      []ExecutionContext `json:"contexts,omitempty"`
	Lifecycle     Lifecycle          `json:"lifecycle"`
}

// New creates an entity with a deterministic ID and a display name derived
// from the qualified name.
func New(category Category, kind Kind, qualifiedName string) *Entity {
	return &Entity{
		ID:            NewID(category, qualifiedName),
		Name:          DisplayNameOf(qualifiedName),
		QualifiedName: qualifiedName,
		Category:      category,
		Kind:          kind,
	}
}

// NewID returns the stable identifier for a qualified name in a category.
func NewID(category Category, qualifiedName string) string {
	return uuid.NewSHA1(idNamespace, []byte(string(category)+"\x00"+qualifiedName)).String()
}

// DisplayNameOf returns the segment after the last dot, or the whole name.
func DisplayNameOf(qualifiedName string) string {
	if i := strings.LastIndexByte(qualifiedName, '.'); i >= 0 {
		return qualifiedName[i+1:]
	}
	return qualifiedName
}

// QualifiedNameFor builds "<CategoryPrefix>.<name>" for configuration kinds,
// or returns name unchanged when the kind has no prefix.
func QualifiedNameFor(kind Kind, name string) string {
	if p := CategoryPrefix(kind); p != "" {
		return p + "." + name
	}
	return name
}

// MethodNames returns the declared method names, sorted.
func (e *Entity) MethodNames() []string {
	names := make([]string, 0, len(e.Interface.Methods))
	for n := range e.Interface.Methods {
		names = append(names, n)
	}
	sortStrings(names)
	return names
}

// PropertyNames returns the declared property names, sorted.
func (e *Entity) PropertyNames() []string {
	names := make([]string, 0, len(e.Interface.Properties))
	for n := range e.Interface.Properties {
		names = append(names, n)
	}
	sortStrings(names)
	return names
}

// HasParent reports whether name is a declared parent or implemented interface.
func (e *Entity) HasParent(name string) bool {
	for _, p := range e.Constraints.ParentTypes {
		if p == name {
			return true
		}
	}
	for _, p := range e.Constraints.Implements {
		if p == name {
			return true
		}
	}
	return false
}

// AvailableIn reports whether the entity is usable in ctx. An empty context
// list means everywhere.
func (e *Entity) AvailableIn(ctx ExecutionContext) bool {
	if len(e.Contexts) == 0 {
		return true
	}
	for _, c := range e.Contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// Validate checks the fields every indexed entity must carry.
func (e *Entity) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("entity %q: empty id", e.QualifiedName)
	case e.QualifiedName == "":
		return fmt.Errorf("entity %s: empty qualified name", e.ID)
	case !e.Category.Valid():
		return fmt.Errorf("entity %q: unknown category %q", e.QualifiedName, e.Category)
	case e.Kind == "":
		return fmt.Errorf("entity %q: empty kind", e.QualifiedName)
	}
	if e.Name == "" {
		e.Name = DisplayNameOf(e.QualifiedName)
	}
	return nil
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Interface = Interface{}
	for _, m := range e.Interface.Methods {
		m.Parameters = append([]Parameter(nil), m.Parameters...)
		m.Contexts = append([]ExecutionContext(nil), m.Contexts...)
		c.Interface.AddMethod(m)
	}
	for _, p := range e.Interface.Properties {
		p.Contexts = append([]ExecutionContext(nil), p.Contexts...)
		c.Interface.AddProperty(p)
	}
	for _, ev := range e.Interface.Events {
		ev.Parameters = append([]Parameter(nil), ev.Parameters...)
		c.Interface.AddEvent(ev)
	}
	c.Constraints.ParentTypes = copyStrings(e.Constraints.ParentTypes)
	c.Constraints.Implements = copyStrings(e.Constraints.Implements)
	c.Relationships.TabularSections = copyStrings(e.Relationships.TabularSections)
	c.Relationships.Attributes = copyStrings(e.Relationships.Attributes)
	c.Relationships.Forms = copyStrings(e.Relationships.Forms)
	c.Relationships.References = copyStrings(e.Relationships.References)
	c.Relationships.ReferencedBy = copyStrings(e.Relationships.ReferencedBy)
	c.Contexts = append([]ExecutionContext(nil), e.Contexts...)
	return &c
}

// AppendUnique appends values not already in list.
func AppendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, x := range list {
			if x == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func sortStrings(s []string) {
	sort.Strings(s)
}
