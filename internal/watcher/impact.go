package watcher

import (
	"path"
	"strings"
)

// ChangeImpact classifies how much of the index a set of changes invalidates.
// Values are ordered; a batch takes the impact of its highest member.
type ChangeImpact int

const (
	ImpactNone ChangeImpact = iota
	ImpactMinor
	ImpactModuleUpdate
	ImpactMetadataUpdate
	ImpactFullRebuild
)

// String returns a string representation of the impact
func (c ChangeImpact) String() string {
	switch c {
	case ImpactNone:
		return "none"
	case ImpactMinor:
		return "minor"
	case ImpactModuleUpdate:
		return "module_update"
	case ImpactMetadataUpdate:
		return "metadata_update"
	case ImpactFullRebuild:
		return "full_rebuild"
	default:
		return "unknown"
	}
}

// Max returns the higher of two impacts.
func (c ChangeImpact) Max(other ChangeImpact) ChangeImpact {
	if other > c {
		return other
	}
	return c
}

// Incremental reports whether the builder may patch the index in place.
func (c ChangeImpact) Incremental() bool {
	return c == ImpactModuleUpdate || c == ImpactMetadataUpdate
}

const (
	// ConfigurationFile is the root configuration descriptor.
	ConfigurationFile = "Configuration.xml"
	// DumpInfoFile lists object versions of a dump; it changes on every export.
	DumpInfoFile = "ConfigDumpInfo.xml"
)

// ClassifyPath returns the impact of a change to one tracked file, given as a
// slash-separated path relative to the configuration root.
func ClassifyPath(rel string) ChangeImpact {
	rel = strings.TrimPrefix(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "./")
	switch {
	case rel == ConfigurationFile:
		return ImpactFullRebuild
	case rel == DumpInfoFile:
		return ImpactMinor
	}
	switch strings.ToLower(path.Ext(rel)) {
	case ".xml":
		return ImpactMetadataUpdate
	case ".bsl":
		return ImpactModuleUpdate
	default:
		return ImpactMinor
	}
}

// AnalyzeChangeImpact classifies a batch of changed paths by its
// highest-impact member. An empty batch is ImpactNone.
func AnalyzeChangeImpact(paths []string) ChangeImpact {
	impact := ImpactNone
	for _, p := range paths {
		impact = impact.Max(ClassifyPath(p))
		if impact == ImpactFullRebuild {
			break
		}
	}
	return impact
}
