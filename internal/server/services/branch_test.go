package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/cryptox"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/metrics"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/audit"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/auth"
	sc "github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/config"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/repositories/repomanager"
)

const baseDocument = "A\nB\nC\nD\n"

// --- helpers ---

type testEnv struct {
	db      *sql.DB
	mock    sqlmock.Sqlmock
	rm      *repomanager.MemoryRepositoryManager
	cfg     *sc.Config
	sink    *audit.RecordingSink
	metrics *metrics.Metrics

	branches *BranchService
	merges   *MergeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:      db,
		mock:    mock,
		rm:      repomanager.NewMemoryRepositoryManager(),
		cfg:     &sc.Config{SecretKey: "k", TokenValidityDuration: time.Hour},
		sink:    audit.NewRecordingSink(),
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}
	env.branches = NewBranchService(db, env.rm, env.cfg, env.sink, env.metrics)
	env.merges = NewMergeService(db, env.rm, env.cfg, env.sink, env.metrics)
	return env
}

// expectTx queues one committed transaction on the mock. The in-memory
// repositories ignore the handle; only the begin/commit pair is observed.
func (e *testEnv) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

func (e *testEnv) expectRolledBackTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}

func (e *testEnv) token(t *testing.T, id, name string) string {
	t.Helper()
	token, err := auth.GenerateActorToken(models.Actor{ID: id, DisplayName: name}, []byte(e.cfg.SecretKey), e.cfg.TokenValidityDuration)
	require.NoError(t, err)
	return token
}

// seedArtifact registers a manuscript with baseDocument as main v1.
func (e *testEnv) seedArtifact(t *testing.T) (*models.Artifact, *models.Version, string) {
	t.Helper()
	token := e.token(t, "u-1", "Dr. Chen")
	e.expectTx()
	artifact, v1, err := e.branches.CreateArtifact(context.Background(), token, "Study of D", baseDocument, "initial draft")
	require.NoError(t, err)
	return artifact, v1, token
}

func eventsOfType(sink *audit.RecordingSink, et audit.EventType) []audit.Event {
	var out []audit.Event
	for _, e := range sink.Events() {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

// --- artifact creation ---

func TestCreateArtifact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	artifact, v1, _ := env.seedArtifact(t)

	assert.Equal(t, common.DefaultBranch, artifact.CurrentBranch)
	require.NotNil(t, artifact.CurrentVersionID)
	assert.Equal(t, v1.ID, *artifact.CurrentVersionID)

	assert.Equal(t, int64(1), v1.VersionNumber)
	assert.Nil(t, v1.ParentVersionID)
	assert.Equal(t, cryptox.ContentDigest(baseDocument), v1.ContentHash)
	assert.Equal(t, "Dr. Chen", v1.ChangedBy)

	got, err := env.branches.GetVersion(ctx, artifact.ID, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, baseDocument, got.Content)

	events := eventsOfType(env.sink, audit.EventVersionCommitted)
	require.Len(t, events, 1)
	assert.Equal(t, v1.ID, events[0].VersionID)
}

func TestCreateArtifact_BadToken(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.branches.CreateArtifact(context.Background(), "garbage", "t", "c", "d")
	require.Error(t, err)
	require.NoError(t, env.mock.ExpectationsWereMet(), "no transaction should start for a bad token")
}

// --- branch creation ---

func TestCreateBranch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, v1, token := env.seedArtifact(t)

	env.expectTx()
	branch, err := env.branches.CreateBranch(ctx, token, artifact.ID, "revision-2", v1.ID, "reviewer pass")
	require.NoError(t, err)

	assert.Equal(t, "revision-2", branch.Branch)
	assert.Equal(t, int64(1), branch.VersionNumber)
	assert.Equal(t, baseDocument, branch.Content)
	require.NotNil(t, branch.ParentVersionID)
	assert.Equal(t, v1.ID, *branch.ParentVersionID)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.BranchesCreatedTotal))
	require.Len(t, eventsOfType(env.sink, audit.EventBranchCreated), 1)
}

func TestCreateBranch_InvalidName(t *testing.T) {
	env := newTestEnv(t)
	artifact, v1, token := env.seedArtifact(t)

	for _, name := range []string{"", "has space", "semi;colon", "uniçode"} {
		_, err := env.branches.CreateBranch(context.Background(), token, artifact.ID, name, v1.ID, "")
		assert.ErrorIs(t, err, common.ErrInvalidBranchName, "name %q", name)
	}
	require.NoError(t, env.mock.ExpectationsWereMet(), "invalid names must be rejected before storage")
}

func TestCreateBranch_AlreadyExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, v1, token := env.seedArtifact(t)

	env.expectTx()
	_, err := env.branches.CreateBranch(ctx, token, artifact.ID, "revision-2", v1.ID, "")
	require.NoError(t, err)

	env.expectRolledBackTx()
	_, err = env.branches.CreateBranch(ctx, token, artifact.ID, "revision-2", v1.ID, "")
	assert.ErrorIs(t, err, common.ErrBranchAlreadyExists)
}

func TestCreateBranch_UnknownArtifact(t *testing.T) {
	env := newTestEnv(t)
	_, _, token := env.seedArtifact(t)

	env.expectRolledBackTx()
	_, err := env.branches.CreateBranch(context.Background(), token, "nope", "revision-2", "v", "")
	assert.ErrorIs(t, err, common.ErrArtifactNotFound)
}

func TestCreateBranch_UnknownSourceVersion(t *testing.T) {
	env := newTestEnv(t)
	artifact, _, token := env.seedArtifact(t)

	env.expectRolledBackTx()
	_, err := env.branches.CreateBranch(context.Background(), token, artifact.ID, "revision-2", "missing", "")
	assert.ErrorIs(t, err, common.ErrVersionNotFound)
}

// --- commits ---

func TestCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, v1, token := env.seedArtifact(t)

	env.expectTx()
	v2, err := env.branches.Commit(ctx, token, artifact.ID, "main", "A\nB\nC\nD\nE\n", "added conclusion")
	require.NoError(t, err)

	assert.Equal(t, int64(2), v2.VersionNumber)
	require.NotNil(t, v2.ParentVersionID)
	assert.Equal(t, v1.ID, *v2.ParentVersionID)
	assert.Equal(t, cryptox.ContentDigest("A\nB\nC\nD\nE\n"), v2.ContentHash)

	// main is the current branch, so the artifact pointer follows the head
	got, err := env.rm.Artifacts(nil).GetByID(ctx, artifact.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentVersionID)
	assert.Equal(t, v2.ID, *got.CurrentVersionID)

	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.CommitsTotal.WithLabelValues("main")))
}

func TestCommit_UnknownBranchIsNotCreated(t *testing.T) {
	env := newTestEnv(t)
	artifact, _, token := env.seedArtifact(t)

	env.expectRolledBackTx()
	_, err := env.branches.Commit(context.Background(), token, artifact.ID, "never-created", "x", "")
	assert.ErrorIs(t, err, common.ErrBranchNotFound)
}

func TestCommit_BadToken(t *testing.T) {
	env := newTestEnv(t)
	artifact, _, _ := env.seedArtifact(t)

	_, err := env.branches.Commit(context.Background(), "garbage", artifact.ID, "main", "x", "")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

// --- listing ---

func TestListBranches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, v1, token := env.seedArtifact(t)

	env.expectTx()
	_, err := env.branches.CreateBranch(ctx, token, artifact.ID, "rebuttal", v1.ID, "")
	require.NoError(t, err)

	heads, err := env.branches.ListBranches(ctx, artifact.ID)
	require.NoError(t, err)
	require.Len(t, heads, 2)

	byName := map[string]*models.BranchHead{}
	for _, h := range heads {
		byName[h.Name] = h
	}
	require.Contains(t, byName, "main")
	require.Contains(t, byName, "rebuttal")
	assert.True(t, byName["main"].IsReserved)
	assert.True(t, byName["rebuttal"].IsReserved)
	assert.Equal(t, v1.ID, byName["main"].HeadVersionID)
}

// --- deletion ---

func TestDeleteBranch_Reserved(t *testing.T) {
	env := newTestEnv(t)
	artifact, _, token := env.seedArtifact(t)

	for _, name := range []string{"main", "rebuttal", "camera-ready"} {
		err := env.branches.DeleteBranch(context.Background(), token, artifact.ID, name)
		assert.ErrorIs(t, err, common.ErrReservedBranch, "branch %q", name)
	}
	require.NoError(t, env.mock.ExpectationsWereMet(), "reserved names must be rejected before storage")
}

func TestDeleteBranch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, v1, token := env.seedArtifact(t)

	env.expectTx()
	_, err := env.branches.CreateBranch(ctx, token, artifact.ID, "revision-2", v1.ID, "")
	require.NoError(t, err)

	env.expectTx()
	require.NoError(t, env.branches.DeleteBranch(ctx, token, artifact.ID, "revision-2"))

	heads, err := env.branches.ListBranches(ctx, artifact.ID)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.Equal(t, "main", heads[0].Name)

	_, err = env.branches.History(ctx, artifact.ID, "revision-2")
	assert.ErrorIs(t, err, common.ErrBranchNotFound)

	// rows are retained, the name stays occupied forever
	env.expectRolledBackTx()
	_, err = env.branches.CreateBranch(ctx, token, artifact.ID, "revision-2", v1.ID, "")
	assert.ErrorIs(t, err, common.ErrBranchAlreadyExists)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.BranchesDeletedTotal))
	require.Len(t, eventsOfType(env.sink, audit.EventBranchDeleted), 1)
}

func TestDeleteBranch_Twice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, v1, token := env.seedArtifact(t)

	env.expectTx()
	_, err := env.branches.CreateBranch(ctx, token, artifact.ID, "revision-2", v1.ID, "")
	require.NoError(t, err)

	env.expectTx()
	require.NoError(t, env.branches.DeleteBranch(ctx, token, artifact.ID, "revision-2"))

	env.expectRolledBackTx()
	err = env.branches.DeleteBranch(ctx, token, artifact.ID, "revision-2")
	assert.ErrorIs(t, err, common.ErrBranchNotFound)
}

// --- rollback ---

func TestRollback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, v1, token := env.seedArtifact(t)

	env.expectTx()
	_, err := env.branches.Commit(ctx, token, artifact.ID, "main", "A\nB\nC\nD\nE\n", "")
	require.NoError(t, err)

	env.expectTx()
	v3, err := env.branches.Rollback(ctx, token, artifact.ID, "main", v1.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(3), v3.VersionNumber, "rollback appends, it never rewrites")
	assert.Equal(t, baseDocument, v3.Content)
	assert.Equal(t, "rollback to version 1", v3.ChangeDescription)

	require.Len(t, eventsOfType(env.sink, audit.EventVersionRolledBack), 1)
}

func TestRollback_VersionOnOtherBranch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, v1, token := env.seedArtifact(t)

	env.expectTx()
	branchV1, err := env.branches.CreateBranch(ctx, token, artifact.ID, "revision-2", v1.ID, "")
	require.NoError(t, err)

	_, err = env.branches.Rollback(ctx, token, artifact.ID, "main", branchV1.ID)
	assert.ErrorIs(t, err, common.ErrVersionNotFound)
}

// --- history and reads ---

func TestHistory_OldestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, _, token := env.seedArtifact(t)

	env.expectTx()
	_, err := env.branches.Commit(ctx, token, artifact.ID, "main", "v2 text\n", "")
	require.NoError(t, err)
	env.expectTx()
	_, err = env.branches.Commit(ctx, token, artifact.ID, "main", "v3 text\n", "")
	require.NoError(t, err)

	history, err := env.branches.History(ctx, artifact.ID, "main")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, v := range history {
		assert.Equal(t, int64(i+1), v.VersionNumber)
	}
}

func TestGetVersion_DigestMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifact, _, _ := env.seedArtifact(t)

	corrupt := &models.Version{
		ID:            "corrupt",
		ArtifactID:    artifact.ID,
		Branch:        "scratch",
		VersionNumber: 1,
		Content:       "what was stored",
		ContentHash:   cryptox.ContentDigest("what was hashed"),
	}
	require.NoError(t, env.rm.Versions(nil).Insert(ctx, corrupt))

	_, err := env.branches.GetVersion(ctx, artifact.ID, "corrupt")
	assert.ErrorIs(t, err, common.ErrDigestMismatch)
}
