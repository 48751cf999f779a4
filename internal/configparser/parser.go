// Package configparser turns a configuration dump (the XML tree produced by
// the platform's "dump configuration to files") into entities.
package configparser

import (
	"path"
	"strings"

	"bslanalyzer/internal/entity"
)

// Parser reads a configuration dump.
type Parser interface {
	// ParseConfiguration reads the root descriptor and lists its objects.
	ParseConfiguration(root string) (*Configuration, error)
	// ParseObject reads one object and returns its entity followed by the
	// entities of its forms and modules.
	ParseObject(root string, ref ObjectRef) ([]*entity.Entity, error)
}

// Configuration is the content of the root descriptor.
type Configuration struct {
	Name    string
	Synonym string
	Version string
	Objects []ObjectRef
}

// ObjectRef names one top-level metadata object.
type ObjectRef struct {
	Kind entity.Kind
	Name string
}

// QualifiedName returns "<CategoryPrefix>.<Name>".
func (o ObjectRef) QualifiedName() string {
	return entity.QualifiedNameFor(o.Kind, o.Name)
}

// Path returns the object descriptor path relative to the root, slash-separated.
func (o ObjectRef) Path() string {
	return entity.DumpDir(o.Kind) + "/" + o.Name + ".xml"
}

// Dir returns the object's own directory relative to the root.
func (o ObjectRef) Dir() string {
	return entity.DumpDir(o.Kind) + "/" + o.Name
}

// String implements fmt.Stringer.
func (o ObjectRef) String() string {
	return o.QualifiedName()
}

// ObjectForPath maps a dump path such as "Catalogs/Items.xml" or
// "Catalogs/Items/Ext/ObjectModule.bsl" to the object it belongs to. Root
// descriptors and unknown directories return false.
func ObjectForPath(rel string) (ObjectRef, bool) {
	rel = strings.TrimPrefix(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "./")
	parts := strings.SplitN(rel, "/", 3)
	if len(parts) < 2 {
		return ObjectRef{}, false
	}
	kind, ok := entity.KindForDir(parts[0])
	if !ok {
		return ObjectRef{}, false
	}
	name := parts[1]
	if len(parts) == 2 {
		if !strings.EqualFold(path.Ext(name), ".xml") {
			return ObjectRef{}, false
		}
		name = name[:len(name)-len(".xml")]
	}
	if name == "" {
		return ObjectRef{}, false
	}
	return ObjectRef{Kind: kind, Name: name}, true
}

// FormQualifiedName returns "<owner>.Формы.<form>".
func FormQualifiedName(owner, form string) string {
	return owner + "." + formsSegment + "." + form
}

// CategoryFor returns the entity category of a top-level object kind.
func CategoryFor(kind entity.Kind) entity.Category {
	switch kind {
	case entity.KindCommonModule:
		return entity.CategoryModule
	case entity.KindCommonForm:
		return entity.CategoryForm
	default:
		return entity.CategoryConfiguration
	}
}
