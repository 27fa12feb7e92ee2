package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/cryptox"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/dbx"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/metrics"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/audit"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/auth"
	sc "github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/config"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/repositories/repomanager"
)

// BranchService implements branch lifecycle and version bookkeeping:
// artifact registration, branch creation and deletion, direct commits,
// rollbacks and history reads. Merging lives in MergeService.
type BranchService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	audit       audit.Sink
	metrics     *metrics.Metrics
}

func NewBranchService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config, sink audit.Sink, m *metrics.Metrics) *BranchService {
	return &BranchService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		audit:       sink,
		metrics:     m,
	}
}

func (s *BranchService) actor(token string) (models.Actor, error) {
	return auth.ActorFromToken(token, []byte(s.config.SecretKey))
}

// CreateArtifact registers a manuscript and writes its first version on the
// main branch.
func (s *BranchService) CreateArtifact(ctx context.Context, actorToken, title, content, description string) (*models.Artifact, *models.Version, error) {
	actor, err := s.actor(actorToken)
	if err != nil {
		return nil, nil, err
	}

	artifact := &models.Artifact{
		ID:            uuid.New().String(),
		Title:         title,
		CurrentBranch: common.DefaultBranch,
		CreatedAt:     time.Now(),
	}

	version := &models.Version{
		ID:                uuid.New().String(),
		ArtifactID:        artifact.ID,
		Branch:            common.DefaultBranch,
		VersionNumber:     1,
		Content:           content,
		ContentHash:       cryptox.ContentDigest(content),
		ChangeDescription: description,
		ChangedBy:         actor.Label(),
		CreatedAt:         time.Now(),
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Artifacts(tx).Create(ctx, artifact); err != nil {
			return err
		}
		if err := s.repomanager.Versions(tx).Insert(ctx, version); err != nil {
			return err
		}
		return s.repomanager.Artifacts(tx).SetCurrentVersion(ctx, artifact.ID, version.ID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating artifact: %w", err)
	}
	artifact.CurrentVersionID = &version.ID

	s.metrics.CommitsTotal.WithLabelValues(common.DefaultBranch).Inc()
	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventVersionCommitted,
		ArtifactID: artifact.ID,
		Branch:     common.DefaultBranch,
		VersionID:  version.ID,
		Actor:      actor.Label(),
		At:         time.Now(),
	})

	return artifact, version, nil
}

// CreateBranch forks a new branch from an existing version. The new branch
// starts at version number 1 with the fork point's content.
func (s *BranchService) CreateBranch(ctx context.Context, actorToken, artifactID, branch, fromVersionID, description string) (*models.Version, error) {
	actor, err := s.actor(actorToken)
	if err != nil {
		return nil, err
	}
	if !common.ValidBranchName(branch) {
		return nil, fmt.Errorf("branch %q: %w", branch, common.ErrInvalidBranchName)
	}

	var version *models.Version

	err = runSerializableTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Artifacts(tx).GetByID(ctx, artifactID); err != nil {
			return err
		}

		versionRepo := s.repomanager.Versions(tx)

		// A deleted branch's rows are retained, so its name stays occupied.
		occupied, err := versionRepo.BranchExists(ctx, artifactID, branch)
		if err != nil {
			return err
		}
		if occupied {
			return fmt.Errorf("branch %q: %w", branch, common.ErrBranchAlreadyExists)
		}

		source, err := versionRepo.GetByID(ctx, artifactID, fromVersionID)
		if err != nil {
			return err
		}

		version = &models.Version{
			ID:                uuid.New().String(),
			ArtifactID:        artifactID,
			Branch:            branch,
			VersionNumber:     1,
			Content:           source.Content,
			ContentHash:       source.ContentHash,
			ParentVersionID:   &source.ID,
			ChangeDescription: description,
			ChangedBy:         actor.Label(),
			CreatedAt:         time.Now(),
		}
		return versionRepo.Insert(ctx, version)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BranchesCreatedTotal.Inc()
	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventBranchCreated,
		ArtifactID: artifactID,
		Branch:     branch,
		VersionID:  version.ID,
		Actor:      actor.Label(),
		At:         time.Now(),
		Details:    map[string]string{"from_version": fromVersionID},
	})

	return version, nil
}

// ListBranches returns every visible branch of the artifact with its head.
func (s *BranchService) ListBranches(ctx context.Context, artifactID string) ([]*models.BranchHead, error) {
	if _, err := s.repomanager.Artifacts(s.db).GetByID(ctx, artifactID); err != nil {
		return nil, err
	}

	return s.repomanager.Versions(s.db).ListHeads(ctx, artifactID)
}

// DeleteBranch logically deletes a branch. Its version rows are retained
// and the name stays occupied forever. Reserved branches cannot be deleted.
func (s *BranchService) DeleteBranch(ctx context.Context, actorToken, artifactID, branch string) error {
	actor, err := s.actor(actorToken)
	if err != nil {
		return err
	}
	if common.ReservedBranch(branch) {
		return fmt.Errorf("branch %q: %w", branch, common.ErrReservedBranch)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Artifacts(tx).GetByID(ctx, artifactID); err != nil {
			return err
		}

		versionRepo := s.repomanager.Versions(tx)

		// Only a visible branch can be deleted; a second delete is a miss.
		if _, err := versionRepo.GetHead(ctx, artifactID, branch); err != nil {
			return err
		}
		return versionRepo.MarkBranchDeleted(ctx, artifactID, branch, actor.Label())
	})
	if err != nil {
		return err
	}

	s.metrics.BranchesDeletedTotal.Inc()
	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventBranchDeleted,
		ArtifactID: artifactID,
		Branch:     branch,
		Actor:      actor.Label(),
		At:         time.Now(),
	})
	return nil
}

// Commit appends a new version on an existing branch. Committing never
// creates a branch implicitly: an unknown branch is a not-found error.
func (s *BranchService) Commit(ctx context.Context, actorToken, artifactID, branch, content, description string) (*models.Version, error) {
	actor, err := s.actor(actorToken)
	if err != nil {
		return nil, err
	}

	version, err := s.appendVersion(ctx, artifactID, branch, content, description, actor, nil, nil)
	if err != nil {
		return nil, err
	}

	s.metrics.CommitsTotal.WithLabelValues(branch).Inc()
	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventVersionCommitted,
		ArtifactID: artifactID,
		Branch:     branch,
		VersionID:  version.ID,
		Actor:      actor.Label(),
		At:         time.Now(),
	})
	return version, nil
}

// Rollback appends a new version whose content equals an earlier version of
// the branch. History is never rewritten; the rollback itself is a version.
func (s *BranchService) Rollback(ctx context.Context, actorToken, artifactID, branch, targetVersionID string) (*models.Version, error) {
	actor, err := s.actor(actorToken)
	if err != nil {
		return nil, err
	}

	target, err := s.repomanager.Versions(s.db).GetByID(ctx, artifactID, targetVersionID)
	if err != nil {
		return nil, err
	}
	if target.EffectiveBranch() != branch {
		return nil, fmt.Errorf("version %s is not on branch %q: %w", targetVersionID, branch, common.ErrVersionNotFound)
	}

	description := fmt.Sprintf("rollback to version %d", target.VersionNumber)
	version, err := s.appendVersion(ctx, artifactID, branch, target.Content, description, actor, nil, nil)
	if err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventVersionRolledBack,
		ArtifactID: artifactID,
		Branch:     branch,
		VersionID:  version.ID,
		Actor:      actor.Label(),
		At:         time.Now(),
		Details:    map[string]string{"target_version": targetVersionID},
	})
	return version, nil
}

// appendVersion writes the next version on a branch inside a serializable
// transaction. The unique (artifact, branch, number) index backstops two
// writers that both observed the same head.
func (s *BranchService) appendVersion(ctx context.Context, artifactID, branch, content, description string, actor models.Actor, mergeBaseID, secondParentID *string) (*models.Version, error) {
	var version *models.Version

	err := runSerializableTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		artifactRepo := s.repomanager.Artifacts(tx)
		versionRepo := s.repomanager.Versions(tx)

		artifact, err := artifactRepo.GetByID(ctx, artifactID)
		if err != nil {
			return err
		}

		head, err := versionRepo.GetHead(ctx, artifactID, branch)
		if err != nil {
			return err
		}

		version = &models.Version{
			ID:                uuid.New().String(),
			ArtifactID:        artifactID,
			Branch:            branch,
			VersionNumber:     head.VersionNumber + 1,
			Content:           content,
			ContentHash:       cryptox.ContentDigest(content),
			ParentVersionID:   &head.ID,
			MergeBaseID:       mergeBaseID,
			SecondParentID:    secondParentID,
			ChangeDescription: description,
			ChangedBy:         actor.Label(),
			CreatedAt:         time.Now(),
		}
		if err := versionRepo.Insert(ctx, version); err != nil {
			return err
		}

		if artifact.CurrentBranch == branch {
			return artifactRepo.SetCurrentVersion(ctx, artifactID, version.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// History returns a branch's versions, oldest first.
func (s *BranchService) History(ctx context.Context, artifactID, branch string) ([]*models.Version, error) {
	versionRepo := s.repomanager.Versions(s.db)

	if _, err := versionRepo.GetHead(ctx, artifactID, branch); err != nil {
		return nil, err
	}
	return versionRepo.ListByBranch(ctx, artifactID, branch)
}

// GetVersion fetches one version and verifies its content digest. A
// mismatch means the stored snapshot was corrupted.
func (s *BranchService) GetVersion(ctx context.Context, artifactID, versionID string) (*models.Version, error) {
	version, err := s.repomanager.Versions(s.db).GetByID(ctx, artifactID, versionID)
	if err != nil {
		return nil, err
	}
	if !cryptox.VerifyContent(version.Content, version.ContentHash) {
		return nil, fmt.Errorf("version %s: %w", versionID, common.ErrDigestMismatch)
	}
	return version, nil
}
