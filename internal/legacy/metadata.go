package legacy

import (
	"fmt"
	"strings"

	"bslanalyzer/internal/configparser"
	"bslanalyzer/internal/entity"
)

// metadataExport is one object in a metadata export file:
//
//	{"full_name": "Справочники.Товары", "synonym": "...",
//	 "attributes": [{"name": "Код", "type": "xs:string"}],
//	 "tabular_sections": [{"name": "Состав", "attributes": [...]}],
//	 "methods": [{"name": "Заполнить", "params": [{"name": "Данные"}]}]}
//
// "type" + "name" may replace "full_name".
type metadataExport struct {
	FullName        string            `json:"full_name"`
	Type            string            `json:"type"`
	Name            string            `json:"name"`
	Synonym         string            `json:"synonym"`
	Comment         string            `json:"comment"`
	Attributes      []exportAttribute `json:"attributes"`
	TabularSections []exportSection   `json:"tabular_sections"`
	Methods         []exportMethod    `json:"methods"`
	Forms           []string          `json:"forms"`
}

type exportAttribute struct {
	Name    string   `json:"name"`
	Type    typeList `json:"type"`
	Synonym string   `json:"synonym"`
}

type exportSection struct {
	Name       string            `json:"name"`
	Synonym    string            `json:"synonym"`
	Attributes []exportAttribute `json:"attributes"`
}

type exportMethod struct {
	Name       string `json:"name"`
	ReturnType string `json:"return_type"`
	Params     []struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Optional bool   `json:"optional"`
	} `json:"params"`
	Description string   `json:"description"`
	Contexts    []string `json:"contexts"`
}

func (m exportMethod) toMethod() entity.Method {
	out := entity.Method{
		Name:          m.Name,
		ReturnType:    m.ReturnType,
		Documentation: m.Description,
	}
	for _, p := range m.Params {
		out.Parameters = append(out.Parameters, entity.Parameter{Name: p.Name, Type: p.Type, Optional: p.Optional})
	}
	for _, c := range m.Contexts {
		out.Contexts = append(out.Contexts, entity.ExecutionContext(c))
	}
	return out
}

func (m metadataExport) ref() (configparser.ObjectRef, error) {
	if m.FullName != "" {
		kind, name, ok := splitQualified(m.FullName)
		if !ok {
			return configparser.ObjectRef{}, fmt.Errorf("unrecognized full_name %q", m.FullName)
		}
		return configparser.ObjectRef{Kind: kind, Name: name}, nil
	}
	kind, ok := resolveKind(m.Type)
	if !ok || strings.TrimSpace(m.Name) == "" {
		return configparser.ObjectRef{}, fmt.Errorf("object needs full_name or type and name (got type %q, name %q)", m.Type, m.Name)
	}
	return configparser.ObjectRef{Kind: kind, Name: strings.TrimSpace(m.Name)}, nil
}

func convertMetadata(data []byte, rel string) ([]*entity.Entity, error) {
	exports, err := decodeList[metadataExport](data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([]*entity.Entity, 0, len(exports))
	for i, m := range exports {
		ref, err := m.ref()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		e := entity.New(configparser.CategoryFor(ref.Kind), ref.Kind, ref.QualifiedName())
		e.Source = entity.Source{Kind: entity.SourceLegacyJSON, Path: rel}
		e.Documentation = joinDoc(m.Synonym, m.Comment)
		if parent := entity.ObjectTypeName(ref.Kind); parent != "" {
			e.Constraints.ParentTypes = []string{parent}
		}

		for _, a := range m.Attributes {
			if a.Name == "" {
				continue
			}
			e.Interface.AddProperty(entity.Property{Name: a.Name, Type: a.Type.platformName(), Documentation: a.Synonym})
			e.Relationships.Attributes = entity.AppendUnique(e.Relationships.Attributes, a.Name)
			e.Relationships.References = entity.AppendUnique(e.Relationships.References, a.Type.references()...)
		}
		for _, ts := range m.TabularSections {
			if ts.Name == "" {
				continue
			}
			e.Interface.AddProperty(entity.Property{Name: ts.Name, Type: "ТабличнаяЧасть", ReadOnly: true, Documentation: ts.Synonym})
			e.Relationships.TabularSections = entity.AppendUnique(e.Relationships.TabularSections, ts.Name)
			for _, a := range ts.Attributes {
				e.Relationships.References = entity.AppendUnique(e.Relationships.References, a.Type.references()...)
			}
		}
		for _, method := range m.Methods {
			if method.Name != "" {
				e.Interface.AddMethod(method.toMethod())
			}
		}
		for _, f := range m.Forms {
			if f = strings.TrimSpace(f); f != "" {
				e.Relationships.Forms = entity.AppendUnique(e.Relationships.Forms, configparser.FormQualifiedName(e.QualifiedName, f))
			}
		}
		out = append(out, e)
	}
	return out, nil
}
