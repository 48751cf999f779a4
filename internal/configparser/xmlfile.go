package configparser

import (
	"encoding/xml"
	"strings"

	"bslanalyzer/internal/entity"
)

// XML shapes of the dump format. Element names are matched without
// namespaces, so v8:Type and Type decode alike.

type localString struct {
	Items []struct {
		Lang    string `xml:"lang"`
		Content string `xml:"content"`
	} `xml:"item"`
}

// Text returns the Russian text, falling back to the first item.
func (s localString) Text() string {
	for _, it := range s.Items {
		if it.Lang == "ru" {
			return strings.TrimSpace(it.Content)
		}
	}
	if len(s.Items) > 0 {
		return strings.TrimSpace(s.Items[0].Content)
	}
	return ""
}

type configurationFile struct {
	Configuration struct {
		Properties struct {
			Name    string      `xml:"Name"`
			Synonym localString `xml:"Synonym"`
			Version string      `xml:"Version"`
		} `xml:"Properties"`
		ChildObjects struct {
			Items []childRef `xml:",any"`
		} `xml:"ChildObjects"`
	} `xml:"Configuration"`
}

type childRef struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type objectFile struct {
	Objects []mdObject `xml:",any"`
}

type mdObject struct {
	XMLName      xml.Name
	Properties   mdProperties   `xml:"Properties"`
	ChildObjects mdChildObjects `xml:"ChildObjects"`
}

type mdProperties struct {
	Name    string      `xml:"Name"`
	Synonym localString `xml:"Synonym"`
	Comment string      `xml:"Comment"`
	Type    mdType      `xml:"Type"`

	// Common module flags
	Global                   bool `xml:"Global"`
	Server                   bool `xml:"Server"`
	ServerCall               bool `xml:"ServerCall"`
	ClientManagedApplication bool `xml:"ClientManagedApplication"`
	ExternalConnection       bool `xml:"ExternalConnection"`
}

type mdType struct {
	Types            []string `xml:"Type"`
	StringQualifiers struct {
		Length int `xml:"Length"`
	} `xml:"StringQualifiers"`
	NumberQualifiers struct {
		Digits         int    `xml:"Digits"`
		FractionDigits int    `xml:"FractionDigits"`
		AllowedSign    string `xml:"AllowedSign"`
	} `xml:"NumberQualifiers"`
}

type mdChildObjects struct {
	Attributes      []mdObject `xml:"Attribute"`
	Dimensions      []mdObject `xml:"Dimension"`
	Resources       []mdObject `xml:"Resource"`
	TabularSections []mdObject `xml:"TabularSection"`
	EnumValues      []mdObject `xml:"EnumValue"`
	Forms           []string   `xml:"Form"`
}

type formFile struct {
	Attributes []struct {
		Name string `xml:"name,attr"`
		Type mdType `xml:"Type"`
		Main bool   `xml:"MainAttribute"`
	} `xml:"Attributes>Attribute"`
}

// primitiveTypes maps XML schema types to platform type names.
var primitiveTypes = map[string]string{
	"xs:string":       "Строка",
	"xs:decimal":      "Число",
	"xs:boolean":      "Булево",
	"xs:dateTime":     "Дата",
	"v8:UUID":         "УникальныйИдентификатор",
	"v8:ValueStorage": "ХранилищеЗначения",
}

// refTypeNames maps dump reference prefixes to platform reference types.
var refTypeNames = map[string]string{
	"CatalogRef":                    "СправочникСсылка",
	"DocumentRef":                   "ДокументСсылка",
	"EnumRef":                       "ПеречислениеСсылка",
	"ChartOfCharacteristicTypesRef": "ПланВидовХарактеристикСсылка",
	"ChartOfAccountsRef":            "ПланСчетовСсылка",
	"ChartOfCalculationTypesRef":    "ПланВидовРасчетаСсылка",
	"BusinessProcessRef":            "БизнесПроцессСсылка",
	"TaskRef":                       "ЗадачаСсылка",
	"ExchangePlanRef":               "ПланОбменаСсылка",
	"CatalogObject":                 "СправочникОбъект",
	"DocumentObject":                "ДокументОбъект",
}

// PlatformTypeName converts one dump type ("xs:string", "cfg:CatalogRef.Items")
// to its platform spelling ("Строка", "СправочникСсылка.Items").
func PlatformTypeName(t string) string {
	t = strings.TrimSpace(t)
	if name, ok := primitiveTypes[t]; ok {
		return name
	}
	bare := t
	if i := strings.IndexByte(bare, ':'); i >= 0 {
		bare = bare[i+1:]
	}
	if dot := strings.IndexByte(bare, '.'); dot > 0 {
		if name, ok := refTypeNames[bare[:dot]]; ok {
			return name + bare[dot:]
		}
	}
	return bare
}

// typeString renders a composite type as "A, B".
func (t mdType) typeString() string {
	names := make([]string, 0, len(t.Types))
	for _, raw := range t.Types {
		names = append(names, PlatformTypeName(raw))
	}
	return strings.Join(names, ", ")
}

// references returns the qualified names of referenced configuration objects.
func (t mdType) references() []string {
	var out []string
	for _, raw := range t.Types {
		if target, ok := entity.ReferenceTarget(strings.TrimSpace(raw)); ok {
			out = entity.AppendUnique(out, target)
		}
	}
	return out
}
