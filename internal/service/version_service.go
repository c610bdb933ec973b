package service

import (
	"fmt"
	"sort"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/pkg/semver"
	"github.com/qs3c/plugin_go_server/internal/repository"
)

type VersionService struct {
	versionRepo *repository.VersionRepository
	pluginRepo  *repository.PluginRepository
	Deps
}

func NewVersionService(versionRepo *repository.VersionRepository, pluginRepo *repository.PluginRepository, deps Deps) *VersionService {
	return &VersionService{versionRepo: versionRepo, pluginRepo: pluginRepo, Deps: deps.withDefaults()}
}

// Publish 版本号在写入时校验，同一插件内唯一
func (s *VersionService) Publish(pluginID int64, req *dto.PublishVersionRequest) (*model.PluginVersion, error) {
	if err := semver.Validate(req.Number); err != nil {
		return nil, err
	}
	if len(req.Sources) == 0 {
		return nil, fmt.Errorf("version %s has no sources: %w", req.Number, apperr.ErrInvalidArgument)
	}
	plugin, err := s.pluginRepo.GetByID(pluginID)
	if err != nil {
		return nil, err
	}
	if plugin.Status == model.PluginStatusDeprecated {
		return nil, apperr.Transition("plugin", "publish version", plugin.Status)
	}

	releaseDate := s.now()
	if req.ReleaseDate != nil {
		releaseDate = req.ReleaseDate.UTC()
	}
	version := &model.PluginVersion{
		PluginID:     pluginID,
		Number:       req.Number,
		ReleaseDate:  releaseDate,
		ReleaseNotes: req.ReleaseNotes,
	}
	for _, src := range req.Sources {
		version.Sources = append(version.Sources, model.PluginSource{
			OS:        src.OS,
			Arch:      src.Arch,
			URL:       src.URL,
			Checksum:  src.Checksum,
			SizeBytes: src.SizeBytes,
		})
	}
	if err := s.versionRepo.Create(version); err != nil {
		return nil, err
	}

	s.Log.WithField("plugin_id", pluginID).WithField("version", version.Number).Info("version published")
	return version, nil
}

func (s *VersionService) Get(id int64) (*model.PluginVersion, error) {
	return s.versionRepo.GetByID(id)
}

// ListVersions 按语义化版本降序
func (s *VersionService) ListVersions(pluginID int64) ([]*model.PluginVersion, error) {
	if _, err := s.pluginRepo.GetByID(pluginID); err != nil {
		return nil, err
	}
	versions, err := s.versionRepo.ListByPlugin(pluginID)
	if err != nil {
		return nil, err
	}
	sortDesc(versions)
	return versions, nil
}

// Latest includePrerelease 为 false 时跳过预发布版本
func (s *VersionService) Latest(pluginID int64, includePrerelease bool) (*model.PluginVersion, error) {
	versions, err := s.ListVersions(pluginID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if includePrerelease || !semver.IsPrerelease(v.Number) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("plugin %d has no released version: %w", pluginID, apperr.ErrNotFound)
}

// SourcesFor 适用于指定平台的制品
func (s *VersionService) SourcesFor(versionID int64, os, arch string) ([]model.PluginSource, error) {
	version, err := s.versionRepo.GetByID(versionID)
	if err != nil {
		return nil, err
	}
	return matchingSources(version.Sources, os, arch), nil
}

// ResolveEligible 满足范围且有对应平台制品的最高版本
func (s *VersionService) ResolveEligible(pluginID int64, rng, os, arch string) (*model.PluginVersion, error) {
	r, err := semver.ParseRange(rng)
	if err != nil {
		return nil, err
	}
	versions, err := s.ListVersions(pluginID)
	if err != nil {
		return nil, err
	}

	for _, v := range versions {
		parsed, err := semver.Parse(v.Number)
		if err != nil {
			continue
		}
		if parsed.Prerelease != "" && !r.AllowsPrerelease() {
			continue
		}
		if !r.Check(parsed) {
			continue
		}
		if len(matchingSources(v.Sources, os, arch)) == 0 {
			continue
		}
		return v, nil
	}
	return nil, fmt.Errorf("no version of plugin %d satisfies %q on %s/%s: %w", pluginID, rng, os, arch, apperr.ErrNotFound)
}

func (s *VersionService) RecordDownload(versionID int64) error {
	if _, err := s.versionRepo.GetByID(versionID); err != nil {
		return err
	}
	return s.versionRepo.IncrementDownloads(versionID)
}

func matchingSources(sources []model.PluginSource, os, arch string) []model.PluginSource {
	out := make([]model.PluginSource, 0, len(sources))
	for _, src := range sources {
		if src.Matches(os, arch) {
			out = append(out, src)
		}
	}
	return out
}

// sortDesc 无法解析的版本号排在最后
func sortDesc(versions []*model.PluginVersion) {
	sort.SliceStable(versions, func(i, j int) bool {
		a, errA := semver.Parse(versions[i].Number)
		b, errB := semver.Parse(versions[j].Number)
		if errA != nil || errB != nil {
			return errA == nil
		}
		if c := a.Compare(b); c != 0 {
			return c > 0
		}
		return versions[i].ReleaseDate.After(versions[j].ReleaseDate)
	})
}

