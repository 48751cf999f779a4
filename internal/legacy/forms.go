package legacy

import (
	"fmt"
	"strings"

	"bslanalyzer/internal/configparser"
	"bslanalyzer/internal/entity"
)

// formExport is one form in a form export file. Owner is the qualified name
// of the owning object; a form without owner is a common form.
//
//	{"owner": "Справочники.Товары", "name": "ФормаЭлемента",
//	 "attributes": [{"name": "Объект", "type": "cfg:CatalogObject.Товары", "main": true}],
//	 "methods": [{"name": "ПриОткрытии"}]}
type formExport struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	Attributes []struct {
		Name string   `json:"name"`
		Type typeList `json:"type"`
		Main bool     `json:"main"`
	} `json:"attributes"`
	Methods []exportMethod `json:"methods"`
}

func convertForms(data []byte, rel string) ([]*entity.Entity, error) {
	exports, err := decodeList[formExport](data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([]*entity.Entity, 0, len(exports))
	for i, f := range exports {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("form %d: missing name", i)
		}

		var e *entity.Entity
		if owner := strings.TrimSpace(f.Owner); owner != "" {
			if _, _, ok := splitQualified(owner); !ok {
				return nil, fmt.Errorf("form %d: unrecognized owner %q", i, owner)
			}
			e = entity.New(entity.CategoryForm, entity.KindManagedForm, configparser.FormQualifiedName(owner, name))
			e.Relationships.Owner = owner
		} else {
			e = entity.New(entity.CategoryForm, entity.KindCommonForm, entity.QualifiedNameFor(entity.KindCommonForm, name))
		}
		e.Source = entity.Source{Kind: entity.SourceLegacyJSON, Path: rel}
		e.Constraints.ParentTypes = []string{configparser.ManagedFormType}

		for _, a := range f.Attributes {
			if a.Name == "" {
				continue
			}
			e.Interface.AddProperty(entity.Property{Name: a.Name, Type: a.Type.platformName()})
			e.Relationships.References = entity.AppendUnique(e.Relationships.References, a.Type.references()...)
		}
		for _, m := range f.Methods {
			if m.Name != "" {
				e.Interface.AddMethod(m.toMethod())
			}
		}
		out = append(out, e)
	}
	return out, nil
}
