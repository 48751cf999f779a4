package platformcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
)

// docParam, docMethod and friends mirror the type descriptions found in an
// extracted documentation tree. A file is JSON or YAML and holds one type
// or a list of types.
type docParam struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Optional    bool   `json:"optional" yaml:"optional"`
	Default     string `json:"default" yaml:"default"`
	Description string `json:"description" yaml:"description"`
}

type docMethod struct {
	Name        string     `json:"name" yaml:"name"`
	NameEn      string     `json:"name_en" yaml:"name_en"`
	Description string     `json:"description" yaml:"description"`
	Params      []docParam `json:"params" yaml:"params"`
	ReturnType  string     `json:"return_type" yaml:"return_type"`
	Contexts    []string   `json:"contexts" yaml:"contexts"`
}

type docProperty struct {
	Name        string   `json:"name" yaml:"name"`
	NameEn      string   `json:"name_en" yaml:"name_en"`
	Type        string   `json:"type" yaml:"type"`
	ReadOnly    bool     `json:"read_only" yaml:"read_only"`
	Description string   `json:"description" yaml:"description"`
	Contexts    []string `json:"contexts" yaml:"contexts"`
}

type docEvent struct {
	Name        string     `json:"name" yaml:"name"`
	NameEn      string     `json:"name_en" yaml:"name_en"`
	Description string     `json:"description" yaml:"description"`
	Params      []docParam `json:"params" yaml:"params"`
}

type docType struct {
	Name        string        `json:"name" yaml:"name"`
	NameEn      string        `json:"name_en" yaml:"name_en"`
	Kind        string        `json:"kind" yaml:"kind"`
	Description string        `json:"description" yaml:"description"`
	Parent      string        `json:"parent" yaml:"parent"`
	Parents     []string      `json:"parents" yaml:"parents"`
	Implements  []string      `json:"implements" yaml:"implements"`
	Contexts    []string      `json:"contexts" yaml:"contexts"`
	Methods     []docMethod   `json:"methods" yaml:"methods"`
	Properties  []docProperty `json:"properties" yaml:"properties"`
	Events      []docEvent    `json:"events" yaml:"events"`
	Since       string        `json:"since" yaml:"since"`
	Deprecated  string        `json:"deprecated" yaml:"deprecated"`
	ReplacedBy  string        `json:"replaced_by" yaml:"replaced_by"`
}

// kindsByEnglishName maps well-known English type names to kinds.
var kindsByEnglishName = map[string]entity.Kind{
	"String":             entity.KindString,
	"Number":             entity.KindNumber,
	"Boolean":            entity.KindBoolean,
	"Date":               entity.KindDate,
	"Undefined":          entity.KindUndefined,
	"Null":               entity.KindNull,
	"Type":               entity.KindType,
	"Array":              entity.KindArray,
	"Structure":          entity.KindStructure,
	"Map":                entity.KindMap,
	"ValueList":          entity.KindValueList,
	"ValueTable":         entity.KindValueTable,
	"ValueTree":          entity.KindValueTree,
	"FixedArray":         entity.KindFixedArray,
	"FixedStructure":     entity.KindFixedStructure,
	"FixedMap":           entity.KindFixedMap,
	"GlobalContext":      entity.KindGlobalContext,
	"Global context":     entity.KindGlobalContext,
	"ГлобальныйКонтекст": entity.KindGlobalContext,
}

// LoadDocsTree converts every type description file (*.json, *.yaml, *.yml)
// under dir into platform entities, ordered by file path. The first
// description of a type name wins.
func LoadDocsTree(dir, version string) ([]*entity.Entity, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isDocFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, missingError(version)
		}
		return nil, bslerrors.New(bslerrors.CacheIO, "walking platform documentation", err)
	}
	sort.Strings(files)

	var entities []*entity.Entity
	seen := make(map[string]bool)
	for _, path := range files {
		types, err := readDocFile(path)
		if err != nil {
			return nil, bslerrors.New(
				bslerrors.PlatformCacheCorrupt,
				fmt.Sprintf("platform documentation %s is unreadable", path),
				err,
			)
		}
		rel, _ := filepath.Rel(dir, path)
		for _, dt := range types {
			if dt.Name == "" || seen[dt.Name] {
				continue
			}
			seen[dt.Name] = true
			entities = append(entities, dt.toEntity(version, filepath.ToSlash(rel)))
		}
	}

	if len(entities) == 0 {
		return nil, missingError(version)
	}
	return entities, nil
}

func isDocFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func readDocFile(path string) ([]docType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		return readYAMLDoc(data)
	}
	if len(data) > 0 && data[0] == '[' {
		var types []docType
		if err := json.Unmarshal(data, &types); err != nil {
			return nil, err
		}
		return types, nil
	}
	var dt docType
	if err := json.Unmarshal(data, &dt); err != nil {
		return nil, err
	}
	return []docType{dt}, nil
}

func readYAMLDoc(data []byte) ([]docType, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		var types []docType
		if err := node.Decode(&types); err != nil {
			return nil, err
		}
		return types, nil
	case yaml.MappingNode:
		var dt docType
		if err := node.Decode(&dt); err != nil {
			return nil, err
		}
		return []docType{dt}, nil
	default:
		return nil, fmt.Errorf("line %d: expected a type or a list of types", node.Line)
	}
}

func (dt docType) kind() entity.Kind {
	if dt.Kind != "" {
		return entity.Kind(dt.Kind)
	}
	if k, ok := kindsByEnglishName[dt.NameEn]; ok {
		return k
	}
	if k, ok := kindsByEnglishName[dt.Name]; ok {
		return k
	}
	return entity.KindPlatformType
}

func (dt docType) toEntity(version, relPath string) *entity.Entity {
	e := entity.New(entity.CategoryPlatform, dt.kind(), dt.Name)
	e.NameEn = dt.NameEn
	e.Documentation = dt.Description
	e.Source = entity.Source{Kind: entity.SourcePlatformArchive, Version: version, Path: relPath}
	e.Contexts = contexts(dt.Contexts)
	e.Lifecycle = entity.Lifecycle{
		IntroducedIn: dt.Since,
		DeprecatedIn: dt.Deprecated,
		ReplacedBy:   dt.ReplacedBy,
	}

	if dt.Parent != "" {
		e.Constraints.ParentTypes = append(e.Constraints.ParentTypes, dt.Parent)
	}
	e.Constraints.ParentTypes = entity.AppendUnique(e.Constraints.ParentTypes, dt.Parents...)
	e.Constraints.Implements = entity.AppendUnique(nil, dt.Implements...)

	for _, m := range dt.Methods {
		e.Interface.AddMethod(entity.Method{
			Name:          m.Name,
			NameEn:        m.NameEn,
			Parameters:    params(m.Params),
			ReturnType:    m.ReturnType,
			Documentation: m.Description,
			Contexts:      contexts(m.Contexts),
		})
	}
	for _, p := range dt.Properties {
		e.Interface.AddProperty(entity.Property{
			Name:          p.Name,
			NameEn:        p.NameEn,
			Type:          p.Type,
			ReadOnly:      p.ReadOnly,
			Documentation: p.Description,
			Contexts:      contexts(p.Contexts),
		})
	}
	for _, ev := range dt.Events {
		e.Interface.AddEvent(entity.Event{
			Name:          ev.Name,
			NameEn:        ev.NameEn,
			Parameters:    params(ev.Params),
			Documentation: ev.Description,
		})
	}
	return e
}

func params(in []docParam) []entity.Parameter {
	if len(in) == 0 {
		return nil
	}
	out := make([]entity.Parameter, len(in))
	for i, p := range in {
		out[i] = entity.Parameter{
			Name:        p.Name,
			Type:        p.Type,
			Optional:    p.Optional,
			Default:     p.Default,
			Description: p.Description,
		}
	}
	return out
}

func contexts(in []string) []entity.ExecutionContext {
	if len(in) == 0 {
		return nil
	}
	out := make([]entity.ExecutionContext, len(in))
	for i, c := range in {
		out[i] = entity.ExecutionContext(c)
	}
	return out
}
