package configparser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/slogutil"
)

// maxDescriptorSize bounds a single XML file read.
const maxDescriptorSize = 64 << 20

const (
	// ManagedFormType is the platform type every managed form extends.
	ManagedFormType = "ФормаКлиентскогоПриложения"

	formsSegment        = "Формы"
	objectModuleName    = "МодульОбъекта"
	managerModuleName   = "МодульМенеджера"
	formModuleName      = "Модуль"
	tabularSectionType  = "ТабличнаяЧасть"
	enumValueTypePrefix = "ПеречислениеСсылка."
)

// XMLParser reads the XML dump layout:
//
//	Configuration.xml
//	<Dir>/<Name>.xml
//	<Dir>/<Name>/Ext/ObjectModule.bsl, ManagerModule.bsl, Module.bsl
//	<Dir>/<Name>/Forms/<Form>/Ext/Form.xml, Form/Module.bsl
//	CommonForms/<Name>/Ext/Form.xml, Form/Module.bsl
type XMLParser struct {
	logger *slog.Logger
}

// NewXMLParser creates a parser. A nil logger discards output.
func NewXMLParser(logger *slog.Logger) *XMLParser {
	return &XMLParser{logger: slogutil.Component(slogutil.OrDiscard(logger), "config-parser")}
}

// ParseConfiguration reads Configuration.xml. Child objects of kinds that do
// not map to an entity kind (languages, roles, subsystems) are skipped.
func (p *XMLParser) ParseConfiguration(root string) (*Configuration, error) {
	path := filepath.Join(root, "Configuration.xml")
	var doc configurationFile
	if err := decodeFile(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, bslerrors.New(bslerrors.ConfigNotFound,
				fmt.Sprintf("Configuration.xml not found in %s", root), err)
		}
		return nil, bslerrors.New(bslerrors.ConfigInvalid, fmt.Sprintf("parsing %s", path), err)
	}

	props := doc.Configuration.Properties
	cfg := &Configuration{
		Name:    strings.TrimSpace(props.Name),
		Synonym: props.Synonym.Text(),
		Version: strings.TrimSpace(props.Version),
	}
	if cfg.Name == "" {
		return nil, bslerrors.New(bslerrors.ConfigInvalid, fmt.Sprintf("%s has no configuration name", path), nil)
	}

	skipped := 0
	for _, child := range doc.Configuration.ChildObjects.Items {
		kind, ok := entity.KindForXMLTag(child.XMLName.Local)
		name := strings.TrimSpace(child.Value)
		if !ok || name == "" {
			skipped++
			continue
		}
		cfg.Objects = append(cfg.Objects, ObjectRef{Kind: kind, Name: name})
	}

	p.logger.Debug("Configuration descriptor parsed",
		"name", cfg.Name,
		"objects", len(cfg.Objects),
		"skipped", skipped,
	)
	return cfg, nil
}

// ParseObject reads <Dir>/<Name>.xml and the forms and modules stored next to it.
func (p *XMLParser) ParseObject(root string, ref ObjectRef) ([]*entity.Entity, error) {
	if entity.DumpDir(ref.Kind) == "" {
		return nil, bslerrors.New(bslerrors.ConfigInvalid, fmt.Sprintf("unsupported object kind %q", ref.Kind), nil)
	}

	descriptor := filepath.Join(root, filepath.FromSlash(ref.Path()))
	var doc objectFile
	if err := decodeFile(descriptor, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, bslerrors.New(bslerrors.ConfigNotFound, fmt.Sprintf("%s not found", ref.Path()), err)
		}
		return nil, bslerrors.New(bslerrors.ConfigInvalid, fmt.Sprintf("parsing %s", ref.Path()), err)
	}
	if len(doc.Objects) == 0 {
		return nil, bslerrors.New(bslerrors.ConfigInvalid, fmt.Sprintf("%s has no metadata object", ref.Path()), nil)
	}
	md := doc.Objects[0]

	obj := entity.New(CategoryFor(ref.Kind), ref.Kind, ref.QualifiedName())
	obj.Source = entity.Source{Kind: entity.SourceConfigXML, Path: ref.Path()}
	obj.Documentation = documentation(md.Properties)
	if parent := entity.ObjectTypeName(ref.Kind); parent != "" {
		obj.Constraints.ParentTypes = []string{parent}
	}

	switch ref.Kind {
	case entity.KindCommonModule:
		obj.Contexts = commonModuleContexts(md.Properties)
	case entity.KindEnum:
		for _, v := range md.ChildObjects.EnumValues {
			obj.Interface.AddProperty(entity.Property{
				Name:          v.Properties.Name,
				Type:          enumValueTypePrefix + ref.Name,
				ReadOnly:      true,
				Documentation: documentation(v.Properties),
			})
		}
	}

	for _, group := range [][]mdObject{md.ChildObjects.Attributes, md.ChildObjects.Dimensions, md.ChildObjects.Resources} {
		for _, attr := range group {
			addAttribute(obj, attr)
		}
	}
	for _, ts := range md.ChildObjects.TabularSections {
		name := ts.Properties.Name
		obj.Interface.AddProperty(entity.Property{
			Name:          name,
			Type:          tabularSectionType,
			ReadOnly:      true,
			Documentation: documentation(ts.Properties),
		})
		obj.Relationships.TabularSections = entity.AppendUnique(obj.Relationships.TabularSections, name)
		for _, attr := range ts.ChildObjects.Attributes {
			obj.Relationships.References = entity.AppendUnique(obj.Relationships.References, attr.Properties.Type.references()...)
		}
	}

	entities := []*entity.Entity{obj}

	if ref.Kind == entity.KindCommonForm {
		form, err := p.parseForm(root, obj, ref.Dir()+"/Ext")
		if err != nil {
			return nil, err
		}
		obj.Constraints.ParentTypes = []string{ManagedFormType}
		if form != nil {
			obj.Interface = form.Interface
			obj.Relationships.References = entity.AppendUnique(obj.Relationships.References, form.Relationships.References...)
		}
		entities = append(entities, p.moduleEntity(root, obj, ref.Dir()+"/Ext/Form/Module.bsl", formModuleName, entity.KindFormModule)...)
		return entities, nil
	}

	for _, formName := range md.ChildObjects.Forms {
		formName = strings.TrimSpace(formName)
		if formName == "" {
			continue
		}
		form := entity.New(entity.CategoryForm, entity.KindManagedForm, FormQualifiedName(obj.QualifiedName, formName))
		form.Constraints.ParentTypes = []string{ManagedFormType}
		form.Relationships.Owner = obj.QualifiedName
		formDir := ref.Dir() + "/Forms/" + formName
		form.Source = entity.Source{Kind: entity.SourceFormXML, Path: formDir + "/Ext/Form.xml"}

		content, err := p.parseForm(root, form, formDir+"/Ext")
		if err != nil {
			return nil, err
		}
		if content != nil {
			form.Interface = content.Interface
			form.Relationships.References = content.Relationships.References
		}

		obj.Relationships.Forms = entity.AppendUnique(obj.Relationships.Forms, form.QualifiedName)
		entities = append(entities, form)
		entities = append(entities, p.moduleEntity(root, form, formDir+"/Ext/Form/Module.bsl", formModuleName, entity.KindFormModule)...)
	}

	if ref.Kind == entity.KindCommonModule {
		// The common module is itself the module entity.
		if src := ref.Dir() + "/Ext/Module.bsl"; fileExists(root, src) {
			obj.Source = entity.Source{Kind: entity.SourceModule, Path: src}
		}
		return entities, nil
	}

	entities = append(entities, p.moduleEntity(root, obj, ref.Dir()+"/Ext/ObjectModule.bsl", objectModuleName, entity.KindObjectModule)...)
	entities = append(entities, p.moduleEntity(root, obj, ref.Dir()+"/Ext/ManagerModule.bsl", managerModuleName, entity.KindManagerModule)...)
	return entities, nil
}

// parseForm reads <extDir>/Form.xml. A missing file yields nil.
func (p *XMLParser) parseForm(root string, owner *entity.Entity, extDir string) (*entity.Entity, error) {
	rel := extDir + "/Form.xml"
	var doc formFile
	if err := decodeFile(filepath.Join(root, filepath.FromSlash(rel)), &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bslerrors.New(bslerrors.ConfigInvalid, fmt.Sprintf("parsing %s", rel), err)
	}

	content := &entity.Entity{}
	for _, attr := range doc.Attributes {
		if attr.Name == "" {
			continue
		}
		content.Interface.AddProperty(entity.Property{Name: attr.Name, Type: attr.Type.typeString()})
		content.Relationships.References = entity.AppendUnique(content.Relationships.References, attr.Type.references()...)
	}
	p.logger.Debug("Form parsed", "form", owner.QualifiedName, "attributes", len(doc.Attributes))
	return content, nil
}

// moduleEntity returns the module entity for rel when the file exists.
func (p *XMLParser) moduleEntity(root string, owner *entity.Entity, rel, name string, kind entity.Kind) []*entity.Entity {
	if !fileExists(root, rel) {
		return nil
	}
	m := entity.New(entity.CategoryModule, kind, owner.QualifiedName+"."+name)
	m.Source = entity.Source{Kind: entity.SourceModule, Path: rel}
	m.Relationships.Owner = owner.QualifiedName
	m.Contexts = owner.Contexts
	return []*entity.Entity{m}
}

func addAttribute(obj *entity.Entity, attr mdObject) {
	name := attr.Properties.Name
	if name == "" {
		return
	}
	obj.Interface.AddProperty(entity.Property{
		Name:          name,
		Type:          attr.Properties.Type.typeString(),
		Documentation: documentation(attr.Properties),
	})
	obj.Relationships.Attributes = entity.AppendUnique(obj.Relationships.Attributes, name)
	obj.Relationships.References = entity.AppendUnique(obj.Relationships.References, attr.Properties.Type.references()...)
}

func documentation(props mdProperties) string {
	syn := props.Synonym.Text()
	comment := strings.TrimSpace(props.Comment)
	switch {
	case syn == "":
		return comment
	case comment == "":
		return syn
	default:
		return syn + "\n" + comment
	}
}

func commonModuleContexts(props mdProperties) []entity.ExecutionContext {
	var ctxs []entity.ExecutionContext
	if props.Server || props.ServerCall {
		ctxs = append(ctxs, entity.ContextServer)
	}
	if props.ClientManagedApplication || props.Global {
		ctxs = append(ctxs, entity.ContextClient, entity.ContextThinClient, entity.ContextWebClient)
	}
	if props.ExternalConnection {
		ctxs = append(ctxs, entity.ContextExternalConnection)
	}
	return ctxs
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(io.LimitReader(f, maxDescriptorSize))
	if err != nil {
		return err
	}
	// Dumps are written with a UTF-8 byte order mark.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	decoder := xml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode XML: %w", err)
	}
	return nil
}

func fileExists(root, rel string) bool {
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil && !info.IsDir()
}
