package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bslanalyzer/internal/configparser"
	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/projectcache"
	"bslanalyzer/internal/typeindex"
	"bslanalyzer/internal/watcher"
)

// Feasibility is the verdict on patching an index from a change report.
type Feasibility struct {
	OK     bool                 `json:"ok"`
	Impact watcher.ChangeImpact `json:"impact"`
	Reason string               `json:"reason"`
}

// UpdateResult lists the entity IDs an incremental update touched.
type UpdateResult struct {
	Objects  []string      `json:"objects"`
	Added    []string      `json:"added,omitempty"`
	Updated  []string      `json:"updated,omitempty"`
	Removed  []string      `json:"removed,omitempty"`
	Duration time.Duration `json:"duration"`
}

// CanUpdateIncrementally decides whether report can be applied as a patch.
// Anything it cannot prove safe is refused so the caller rebuilds.
func (b *Builder) CanUpdateIncrementally(report *watcher.ChangeReport) Feasibility {
	if report.Empty() {
		return Feasibility{OK: true, Impact: watcher.ImpactNone, Reason: "no changes"}
	}
	if report.StructureChanged {
		return Feasibility{Impact: watcher.ImpactFullRebuild, Reason: "set of tracked files changed"}
	}

	paths := report.Paths()
	impact := watcher.AnalyzeChangeImpact(paths)
	if impact == watcher.ImpactFullRebuild {
		return Feasibility{Impact: impact, Reason: watcher.ConfigurationFile + " changed"}
	}
	if b.noIncremental {
		return Feasibility{Impact: impact, Reason: "incremental updates are disabled"}
	}

	for _, p := range paths {
		if watcher.ClassifyPath(p) == watcher.ImpactMinor {
			continue
		}
		if _, ok := configparser.ObjectForPath(p); !ok {
			return Feasibility{Impact: impact, Reason: fmt.Sprintf("cannot map %s to a metadata object", p)}
		}
	}

	total := report.CurrentCount
	if total == 0 {
		total = report.PreviousCount
	}
	if total > 0 {
		percent := len(paths) * 100 / total
		if percent > b.threshold {
			return Feasibility{Impact: impact, Reason: fmt.Sprintf("too many changes (%d%% of tracked files, limit %d%%)", percent, b.threshold)}
		}
	}

	return Feasibility{OK: true, Impact: impact, Reason: fmt.Sprintf("%d file(s) changed", len(paths))}
}

// UpdateIncremental re-parses the objects touched by report and swaps their
// entities in idx. Every affected object is parsed before idx is modified, so
// a parse failure leaves idx unchanged.
func (b *Builder) UpdateIncremental(ctx context.Context, idx *typeindex.Index, configPath string, report *watcher.ChangeReport) (*UpdateResult, error) {
	start := time.Now()
	feas := b.CanUpdateIncrementally(report)
	if !feas.OK {
		return nil, bslerrors.New(bslerrors.IncrementalUnsafe, feas.Reason, nil)
	}
	result := &UpdateResult{}
	if feas.Impact == watcher.ImpactNone {
		return result, nil
	}

	refs := affectedObjects(report.Paths())
	owned := ownedEntities(idx)

	type patch struct {
		ref      configparser.ObjectRef
		entities []*entity.Entity
	}
	patches := make([]patch, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var entities []*entity.Entity
		if _, err := os.Stat(filepath.Join(configPath, filepath.FromSlash(ref.Path()))); err == nil {
			if entities, err = b.parser.ParseObject(configPath, ref); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, bslerrors.New(bslerrors.ConfigInvalid, fmt.Sprintf("reading %s", ref.Path()), err)
		}
		patches = append(patches, patch{ref: ref, entities: entities})
	}

	for _, p := range patches {
		qn := p.ref.QualifiedName()
		result.Objects = append(result.Objects, qn)
		kept := make(map[string]bool, len(p.entities))
		for _, e := range p.entities {
			kept[e.ID] = true
			if idx.FindEntityByID(e.ID) != nil {
				result.Updated = append(result.Updated, e.ID)
			} else {
				result.Added = append(result.Added, e.ID)
			}
			if err := idx.ReplaceEntity(e); err != nil {
				return nil, bslerrors.New(bslerrors.InternalError, "replacing entity "+e.QualifiedName, err)
			}
		}
		for _, id := range owned[qn] {
			if !kept[id] && idx.RemoveEntity(id) {
				result.Removed = append(result.Removed, id)
			}
		}
	}
	idx.BuildInheritanceRelationships()

	result.Duration = time.Since(start)
	b.logger.Info("Incremental update applied",
		"impact", feas.Impact.String(),
		"objects", len(result.Objects),
		"added", len(result.Added),
		"updated", len(result.Updated),
		"removed", len(result.Removed),
		"duration", result.Duration.String(),
	)
	return result, nil
}

// affectedObjects maps changed paths to the distinct objects they belong to.
func affectedObjects(paths []string) []configparser.ObjectRef {
	seen := make(map[configparser.ObjectRef]bool)
	var refs []configparser.ObjectRef
	for _, p := range paths {
		ref, ok := configparser.ObjectForPath(p)
		if !ok || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].QualifiedName() < refs[j].QualifiedName()
	})
	return refs
}

// ownedEntities groups the dump-derived entity IDs by the top-level object
// they belong to: the object itself and every "<object>.<...>" form or
// module. Platform entities and legacy-only entities are left out; a full
// build keeps legacy-only entities whatever the dump holds.
func ownedEntities(idx *typeindex.Index) map[string][]string {
	out := make(map[string][]string)
	for _, e := range idx.Entities() {
		if e.Category == entity.CategoryPlatform || e.Source.Kind == entity.SourceLegacyJSON {
			continue
		}
		owner := topLevelName(e.QualifiedName)
		out[owner] = append(out[owner], e.ID)
	}
	return out
}

// topLevelName returns the "<Prefix>.<Name>" head of a qualified name.
func topLevelName(qn string) string {
	first := strings.IndexByte(qn, '.')
	if first < 0 {
		return qn
	}
	if second := strings.IndexByte(qn[first+1:], '.'); second >= 0 {
		return qn[:first+1+second]
	}
	return qn
}

// RefreshResult describes what Refresh did.
type RefreshResult struct {
	Index       *typeindex.Index      `json:"-"`
	Report      *watcher.ChangeReport `json:"report"`
	Impact      watcher.ChangeImpact  `json:"impact"`
	Incremental bool                  `json:"incremental"`
	Rebuilt     bool                  `json:"rebuilt"`
	Reason      string                `json:"reason"`
	Update      *UpdateResult         `json:"update,omitempty"`
	Stats       *BuildStats           `json:"stats,omitempty"`
}

// Refresh asks w for changes and brings idx up to date, patching when
// feasible and rebuilding otherwise. A nil idx always rebuilds. The
// returned index is idx itself after a patch, or a new index after a rebuild.
// When neither succeeds, or the result cannot be saved, the changes are
// requeued on w so the next Refresh sees them again.
func (b *Builder) Refresh(ctx context.Context, idx *typeindex.Index, req BuildRequest, w *watcher.Watcher) (*RefreshResult, error) {
	started := time.Now()
	report, err := w.CheckForChanges()
	if err != nil {
		return nil, err
	}
	res := &RefreshResult{Index: idx, Report: report, Impact: w.AnalyzeChangeImpact(report)}

	if idx != nil && report.Empty() {
		res.Reason = "no changes"
		return res, nil
	}

	if idx != nil {
		feas := b.CanUpdateIncrementally(report)
		res.Reason = feas.Reason
		if feas.OK {
			update, err := b.UpdateIncremental(ctx, idx, w.Root(), report)
			if err == nil {
				res.Incremental = true
				res.Update = update
				b.persistOrRequeue(req, idx, started, w, report)
				return res, nil
			}
			b.logger.Warn("Incremental update failed, rebuilding", "error", err.Error())
			res.Reason = err.Error()
		}
	} else {
		res.Reason = "no index loaded"
	}

	rebuilt, stats, err := b.Build(ctx, req)
	if err != nil {
		w.Requeue(report)
		return nil, err
	}
	res.Index = rebuilt
	res.Rebuilt = true
	res.Stats = stats
	b.persistOrRequeue(req, rebuilt, started, w, report)
	return res, nil
}

// persistOrRequeue saves idx to the project cache when one is configured. A
// failed save requeues report so the cached index is not left behind the
// watcher baseline.
func (b *Builder) persistOrRequeue(req BuildRequest, idx *typeindex.Index, started time.Time, w *watcher.Watcher, report *watcher.ChangeReport) {
	if err := b.persist(req, idx, started); err != nil {
		b.logger.Warn("Saving project cache failed, changes requeued", "error", err.Error())
		w.Requeue(report)
	}
}

// persist saves idx to the project cache when one is configured.
func (b *Builder) persist(req BuildRequest, idx *typeindex.Index, started time.Time) error {
	if b.cache == nil {
		return nil
	}
	req, err := req.validate()
	if err != nil {
		return err
	}
	info := projectcache.BuildInfo{StartedAt: started, Duration: time.Since(started)}
	_, err = b.cache.Save(req.ConfigPath, req.PlatformVersion, idx, info)
	return err
}
