// Package respipe 结果管道：模块上报的产物先推到外部制品库，
// 再把元数据落到本地数据库，供 API 按任务/bot/tracker 维度查询。
package respipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/track/botmod"
	"gorm.io/gorm"
)

// ArtifactStore 外部制品库的上传能力，由 mwdbcli.Client 实现。
// 制品库按内容哈希去重，重复推送同一份内容返回同一个 sha256。
type ArtifactStore interface {
	UploadFile(ctx context.Context, name string, content []byte, parent string) (string, error)
	UploadConfig(ctx context.Context, family, configType string, cfg map[string]any, parent string) (string, error)
	UploadBlob(ctx context.Context, name, blobType, content, parent string) (string, error)
	AddTag(ctx context.Context, sha256, tag string) error
}

// Pipeline 结果管道。
type Pipeline struct {
	db    *gorm.DB
	store ArtifactStore
	log   *slog.Logger
}

func New(db *gorm.DB, store ArtifactStore, log *slog.Logger) *Pipeline {
	return &Pipeline{db: db, store: store, log: log}
}

// Session 打开某次任务的上报会话，实现 botmod.Results。
// parent 是该 bot 所属 tracker 的配置哈希，产物在制品库中挂到它名下。
func (p *Pipeline) Session(taskID int64, family, parent string) botmod.Results {
	return &session{pipe: p, taskID: taskID, family: family, parent: parent}
}

type session struct {
	pipe   *Pipeline
	taskID int64
	family string
	parent string
}

func (s *session) PushBinary(ctx context.Context, name string, data []byte, tags []string) error {
	sha256, err := s.pipe.store.UploadFile(ctx, name, data, s.parent)
	if err != nil {
		return err
	}
	return s.record(ctx, model.ResultBinary, name, sha256, tags)
}

func (s *session) PushConfig(ctx context.Context, configType string, cfg map[string]any, tags []string) error {
	sha256, err := s.pipe.store.UploadConfig(ctx, s.family, configType, cfg, s.parent)
	if err != nil {
		return err
	}
	return s.record(ctx, model.ResultConfig, configType, sha256, tags)
}

func (s *session) PushBlob(ctx context.Context, name, blobType, content string, tags []string) error {
	sha256, err := s.pipe.store.UploadBlob(ctx, name, blobType, content, s.parent)
	if err != nil {
		return err
	}
	return s.record(ctx, model.ResultBlob, name, sha256, tags)
}

// record 打标签并落元数据。标签失败只告警不阻断：
// 制品本体已经入库，元数据缺标签可以事后补。
func (s *session) record(ctx context.Context, typ, name, sha256 string, tags []string) error {
	metrics.GetOrCreateCounter(fmt.Sprintf("cnctrack_artifact_total{type=%q,family=%q}", typ, s.family)).Inc()
	for _, tag := range tags {
		if err := s.pipe.store.AddTag(ctx, sha256, tag); err != nil {
			s.pipe.log.Warn("制品打标签失败", slog.String("sha256", sha256),
				slog.String("tag", tag), slog.Any("error", err))
		}
	}

	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	ret := &model.Result{
		TaskID:     s.taskID,
		Type:       typ,
		Name:       name,
		SHA256:     sha256,
		Tags:       raw,
		UploadTime: time.Now(),
	}

	return s.pipe.db.WithContext(ctx).Create(ret).Error
}
