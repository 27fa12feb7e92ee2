package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/cryptox"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/dbx"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/diffx"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/metrics"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/ancestry"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/audit"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/auth"
	sc "github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/config"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/repositories/repomanager"
)

// MergeService merges one branch into another. The decision ladder runs
// against the lowest common ancestor of the two heads:
//
//	base == source head  ->  UP_TO_DATE, nothing to do
//	base == target head  ->  FAST_FORWARD, target adopts the source content
//	overlapping edits    ->  CONFLICT, nothing written
//	otherwise            ->  MERGED, source content wins on the target
//
// A CONFLICT is a first-class outcome the caller must resolve, not an
// error. Every attempt that writes runs inside a serializable transaction
// so a concurrent commit on either branch restarts the whole decision.
type MergeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	audit       audit.Sink
	metrics     *metrics.Metrics
}

func NewMergeService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config, sink audit.Sink, m *metrics.Metrics) *MergeService {
	return &MergeService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		audit:       sink,
		metrics:     m,
	}
}

// Merge merges sourceBranch into targetBranch on the given artifact.
func (s *MergeService) Merge(ctx context.Context, actorToken, artifactID, sourceBranch, targetBranch, description string) (*models.MergeResult, error) {
	actor, err := auth.ActorFromToken(actorToken, []byte(s.config.SecretKey))
	if err != nil {
		return nil, err
	}
	if sourceBranch == targetBranch {
		return nil, fmt.Errorf("merging %q into itself: %w", sourceBranch, common.ErrSelfMerge)
	}

	started := time.Now()
	var result *models.MergeResult

	err = runSerializableTx(ctx, s.db, s.metrics.MergeRetriesTotal.Inc, func(ctx context.Context, tx dbx.DBTX) error {
		result, err = s.mergeTx(ctx, tx, artifactID, sourceBranch, targetBranch, description, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMerge(string(result.Status), time.Since(started))
	if result.Status == models.MergeConflict {
		s.metrics.ConflictsTotal.Add(float64(len(result.Conflicts)))
	}

	event := audit.Event{
		Type:       audit.EventBranchMerged,
		ArtifactID: artifactID,
		Branch:     targetBranch,
		Actor:      actor.Label(),
		At:         time.Now(),
		Details: map[string]string{
			"source_branch": sourceBranch,
			"status":        string(result.Status),
			"conflicts":     strconv.Itoa(len(result.Conflicts)),
		},
	}
	if result.NewVersion != nil {
		event.VersionID = result.NewVersion.ID
	}
	s.audit.Emit(ctx, event)

	return result, nil
}

func (s *MergeService) mergeTx(ctx context.Context, tx dbx.DBTX, artifactID, sourceBranch, targetBranch, description string, actor models.Actor) (*models.MergeResult, error) {
	artifactRepo := s.repomanager.Artifacts(tx)
	versionRepo := s.repomanager.Versions(tx)

	artifact, err := artifactRepo.GetByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	sourceHead, err := versionRepo.GetHead(ctx, artifactID, sourceBranch)
	if err != nil {
		return nil, fmt.Errorf("source branch %q: %w", sourceBranch, err)
	}
	targetHead, err := versionRepo.GetHead(ctx, artifactID, targetBranch)
	if err != nil {
		return nil, fmt.Errorf("target branch %q: %w", targetBranch, err)
	}

	resolver := ancestry.NewResolver(versionRepo)
	baseID, err := resolver.FindCommonAncestor(ctx, artifactID, sourceHead.ID, targetHead.ID)
	if err != nil {
		return nil, err
	}
	if baseID == "" {
		return nil, fmt.Errorf("branches %q and %q: %w", sourceBranch, targetBranch, common.ErrNoCommonAncestor)
	}

	result := &models.MergeResult{MergeBaseID: baseID}

	// Target already contains everything from the source.
	if baseID == sourceHead.ID {
		result.Status = models.MergeUpToDate
		return result, nil
	}

	newVersion := func(parentID string) *models.Version {
		return &models.Version{
			ID:                uuid.New().String(),
			ArtifactID:        artifactID,
			Branch:            targetBranch,
			VersionNumber:     targetHead.VersionNumber + 1,
			Content:           sourceHead.Content,
			ContentHash:       cryptox.ContentDigest(sourceHead.Content),
			ParentVersionID:   &parentID,
			ChangeDescription: description,
			ChangedBy:         actor.Label(),
			CreatedAt:         time.Now(),
		}
	}

	// Target has not moved since the fork; adopt the source head wholesale.
	// The new version descends from the source head, keeping the ancestry
	// linear, so no merge provenance is recorded.
	if baseID == targetHead.ID {
		result.Status = models.MergeFastForward
		result.NewVersion = newVersion(sourceHead.ID)
	} else {
		base, err := versionRepo.GetByID(ctx, artifactID, baseID)
		if err != nil {
			return nil, err
		}

		diffStarted := time.Now()
		baseToSource := diffx.ComputeLineDiff(base.Content, sourceHead.Content)
		s.metrics.RecordDiff(time.Since(diffStarted))

		diffStarted = time.Now()
		baseToTarget := diffx.ComputeLineDiff(base.Content, targetHead.Content)
		s.metrics.RecordDiff(time.Since(diffStarted))

		result.SourceStats = models.BranchStats{AddedLines: baseToSource.AddedLines, RemovedLines: baseToSource.RemovedLines}
		result.TargetStats = models.BranchStats{AddedLines: baseToTarget.AddedLines, RemovedLines: baseToTarget.RemovedLines}

		result.Conflicts = diffx.DetectConflicts(baseToSource, baseToTarget)
		if len(result.Conflicts) > 0 {
			result.Status = models.MergeConflict
			return result, nil
		}

		result.Status = models.MergeMerged
		merged := newVersion(targetHead.ID)
		merged.MergeBaseID = &baseID
		merged.SecondParentID = &sourceHead.ID
		result.NewVersion = merged
	}

	if err := versionRepo.Insert(ctx, result.NewVersion); err != nil {
		return nil, err
	}
	if artifact.CurrentBranch == targetBranch {
		if err := artifactRepo.SetCurrentVersion(ctx, artifactID, result.NewVersion.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}
