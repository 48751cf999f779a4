package entity

import "strings"

// Category is the coarse provenance class of an entity.
type Category string

const (
	CategoryPlatform      Category = "platform"
	CategoryConfiguration Category = "configuration"
	CategoryForm          Category = "form"
	CategoryModule        Category = "module"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPlatform, CategoryConfiguration, CategoryForm, CategoryModule:
		return true
	}
	return false
}

// Kind is the fine-grained type of an entity. Unknown kinds are carried as
// Other(tag), serialized "other:<tag>".
type Kind string

const (
	// Primitives
	KindString    Kind = "string"
	KindNumber    Kind = "number"
	KindBoolean   Kind = "boolean"
	KindDate      Kind = "date"
	KindUndefined Kind = "undefined"
	KindNull      Kind = "null"
	KindType      Kind = "type"

	// Collections
	KindArray          Kind = "array"
	KindStructure      Kind = "structure"
	KindMap            Kind = "map"
	KindValueList      Kind = "value_list"
	KindValueTable     Kind = "value_table"
	KindValueTree      Kind = "value_tree"
	KindFixedArray     Kind = "fixed_array"
	KindFixedStructure Kind = "fixed_structure"
	KindFixedMap       Kind = "fixed_map"

	// Platform
	KindGlobalContext Kind = "global_context"
	KindPlatformType  Kind = "platform_type"

	// Configuration objects
	KindCatalog                    Kind = "catalog"
	KindDocument                   Kind = "document"
	KindEnum                       Kind = "enum"
	KindConstant                   Kind = "constant"
	KindReport                     Kind = "report"
	KindDataProcessor              Kind = "data_processor"
	KindChartOfCharacteristicTypes Kind = "chart_of_characteristic_types"
	KindChartOfAccounts            Kind = "chart_of_accounts"
	KindChartOfCalculationTypes    Kind = "chart_of_calculation_types"
	KindInformationRegister        Kind = "information_register"
	KindAccumulationRegister       Kind = "accumulation_register"
	KindAccountingRegister         Kind = "accounting_register"
	KindCalculationRegister        Kind = "calculation_register"
	KindBusinessProcess            Kind = "business_process"
	KindTask                       Kind = "task"
	KindExchangePlan               Kind = "exchange_plan"
	KindDocumentJournal            Kind = "document_journal"

	// Modules
	KindCommonModule  Kind = "common_module"
	KindObjectModule  Kind = "object_module"
	KindManagerModule Kind = "manager_module"
	KindFormModule    Kind = "form_module"

	// Forms
	KindManagedForm Kind = "managed_form"
	KindCommonForm  Kind = "common_form"
)

const otherPrefix = "other:"

// Other returns an extension kind carrying tag.
func Other(tag string) Kind {
	return Kind(otherPrefix + tag)
}

// IsOther reports whether k is an extension kind.
func (k Kind) IsOther() bool {
	return strings.HasPrefix(string(k), otherPrefix)
}

// OtherTag returns the tag of an extension kind, or "" for built-in kinds.
func (k Kind) OtherTag() string {
	if !k.IsOther() {
		return ""
	}
	return strings.TrimPrefix(string(k), otherPrefix)
}

type kindInfo struct {
	prefix      string // plural qualified-name prefix, e.g. Справочники
	dir         string // configuration dump directory
	xmlTag      string // element name inside MetaDataObject
	objectType  string // generic platform object type, e.g. СправочникОбъект
	managerType string
}

var kindTable = map[Kind]kindInfo{
	KindCatalog:                    {"Справочники", "Catalogs", "Catalog", "СправочникОбъект", "СправочникМенеджер"},
	KindDocument:                   {"Документы", "Documents", "Document", "ДокументОбъект", "ДокументМенеджер"},
	KindEnum:                       {"Перечисления", "Enums", "Enum", "", "ПеречислениеМенеджер"},
	KindConstant:                   {"Константы", "Constants", "Constant", "КонстантаМенеджерЗначения", "КонстантаМенеджер"},
	KindReport:                     {"Отчеты", "Reports", "Report", "ОтчетОбъект", "ОтчетМенеджер"},
	KindDataProcessor:              {"Обработки", "DataProcessors", "DataProcessor", "ОбработкаОбъект", "ОбработкаМенеджер"},
	KindChartOfCharacteristicTypes: {"ПланыВидовХарактеристик", "ChartsOfCharacteristicTypes", "ChartOfCharacteristicTypes", "ПланВидовХарактеристикОбъект", "ПланВидовХарактеристикМенеджер"},
	KindChartOfAccounts:            {"ПланыСчетов", "ChartsOfAccounts", "ChartOfAccounts", "ПланСчетовОбъект", "ПланСчетовМенеджер"},
	KindChartOfCalculationTypes:    {"ПланыВидовРасчета", "ChartsOfCalculationTypes", "ChartOfCalculationTypes", "ПланВидовРасчетаОбъект", "ПланВидовРасчетаМенеджер"},
	KindInformationRegister:        {"РегистрыСведений", "InformationRegisters", "InformationRegister", "РегистрСведенийНаборЗаписей", "РегистрСведенийМенеджер"},
	KindAccumulationRegister:       {"РегистрыНакопления", "AccumulationRegisters", "AccumulationRegister", "РегистрНакопленияНаборЗаписей", "РегистрНакопленияМенеджер"},
	KindAccountingRegister:         {"РегистрыБухгалтерии", "AccountingRegisters", "AccountingRegister", "РегистрБухгалтерииНаборЗаписей", "РегистрБухгалтерииМенеджер"},
	KindCalculationRegister:        {"РегистрыРасчета", "CalculationRegisters", "CalculationRegister", "РегистрРасчетаНаборЗаписей", "РегистрРасчетаМенеджер"},
	KindBusinessProcess:            {"БизнесПроцессы", "BusinessProcesses", "BusinessProcess", "БизнесПроцессОбъект", "БизнесПроцессМенеджер"},
	KindTask:                       {"Задачи", "Tasks", "Task", "ЗадачаОбъект", "ЗадачаМенеджер"},
	KindExchangePlan:               {"ПланыОбмена", "ExchangePlans", "ExchangePlan", "ПланОбменаОбъект", "ПланОбменаМенеджер"},
	KindDocumentJournal:            {"ЖурналыДокументов", "DocumentJournals", "DocumentJournal", "", "ЖурналДокументовМенеджер"},
	KindCommonModule:               {"ОбщиеМодули", "CommonModules", "CommonModule", "", ""},
	KindCommonForm:                 {"ОбщиеФормы", "CommonForms", "CommonForm", "", ""},
}

// CategoryPrefix returns the qualified-name prefix for a configuration kind
// (e.g. Справочники for catalogs), or "" when the kind has none.
func CategoryPrefix(k Kind) string {
	return kindTable[k].prefix
}

// DumpDir returns the configuration dump directory for a kind (e.g. Catalogs).
func DumpDir(k Kind) string {
	return kindTable[k].dir
}

// ObjectTypeName returns the generic platform type an object of kind k
// inherits from (e.g. СправочникОбъект), or "" when there is none.
func ObjectTypeName(k Kind) string {
	return kindTable[k].objectType
}

// ManagerTypeName returns the generic platform manager type for kind k.
func ManagerTypeName(k Kind) string {
	return kindTable[k].managerType
}

// KindForDir maps a dump directory name to its kind.
func KindForDir(dir string) (Kind, bool) {
	for k, info := range kindTable {
		if info.dir == dir {
			return k, true
		}
	}
	return "", false
}

// KindForXMLTag maps a MetaDataObject child element (e.g. Catalog) to its kind.
func KindForXMLTag(tag string) (Kind, bool) {
	for k, info := range kindTable {
		if info.xmlTag == tag {
			return k, true
		}
	}
	return "", false
}

// KindForPrefix maps a qualified-name prefix (e.g. Документы) to its kind.
func KindForPrefix(prefix string) (Kind, bool) {
	for k, info := range kindTable {
		if info.prefix == prefix {
			return k, true
		}
	}
	return "", false
}

// DumpDirs lists every configuration dump directory, sorted.
func DumpDirs() []string {
	dirs := make([]string, 0, len(kindTable))
	for _, info := range kindTable {
		if info.dir != "" {
			dirs = append(dirs, info.dir)
		}
	}
	sortStrings(dirs)
	return dirs
}

// refTypePrefixes maps reference type prefixes used in XML type declarations
// (CatalogRef.Items) to the kind they point at.
var refTypePrefixes = map[string]Kind{
	"CatalogRef":                    KindCatalog,
	"DocumentRef":                   KindDocument,
	"EnumRef":                       KindEnum,
	"ChartOfCharacteristicTypesRef": KindChartOfCharacteristicTypes,
	"ChartOfAccountsRef":            KindChartOfAccounts,
	"ChartOfCalculationTypesRef":    KindChartOfCalculationTypes,
	"BusinessProcessRef":            KindBusinessProcess,
	"TaskRef":                       KindTask,
	"ExchangePlanRef":               KindExchangePlan,
	"СправочникСсылка":              KindCatalog,
	"ДокументСсылка":                KindDocument,
	"ПеречислениеСсылка":            KindEnum,
}

// ReferenceTarget converts a reference type such as "cfg:CatalogRef.Items"
// or "СправочникСсылка.Товары" to the qualified name it references
// ("Справочники.Items"). ok is false for non-reference types.
func ReferenceTarget(typeName string) (string, bool) {
	t := typeName
	if i := strings.IndexByte(t, ':'); i >= 0 {
		t = t[i+1:]
	}
	dot := strings.IndexByte(t, '.')
	if dot <= 0 || dot == len(t)-1 {
		return "", false
	}
	k, ok := refTypePrefixes[t[:dot]]
	if !ok {
		return "", false
	}
	return CategoryPrefix(k) + "." + t[dot+1:], true
}
