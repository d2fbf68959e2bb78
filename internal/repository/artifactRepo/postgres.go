package artifactRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"artifact-review/internal/model/artifact"
)

const uniqueViolation = "23505"

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *Postgres) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const artifactColumns = `id, name, description, created_by, organization_id, share_token,
	is_deleted, deleted_at, deleted_by, created_at, updated_at`

func scanArtifact(row pgx.Row) (*artifact.Artifact, error) {
	var a artifact.Artifact
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.CreatedBy, &a.OrganizationID, &a.ShareToken,
		&a.IsDeleted, &a.DeletedAt, &a.DeletedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const versionColumns = `id, artifact_id, number, file_type, entry_point, size, status, error_message,
	name, upload_handle, released_at, created_by, is_deleted, deleted_at, deleted_by, created_at, updated_at`

func scanVersion(row pgx.Row) (*artifact.Version, error) {
	var (
		v                                artifact.Version
		fileType                         string
		entryPoint, status, uploadHandle *string
	)
	err := row.Scan(&v.ID, &v.ArtifactID, &v.Number, &fileType, &entryPoint, &v.Size, &status, &v.ErrorMessage,
		&v.Name, &uploadHandle, &v.ReleasedAt, &v.CreatedBy, &v.IsDeleted, &v.DeletedAt, &v.DeletedBy, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if v.FileType, err = artifact.ParseFileType(fileType); err != nil {
		return nil, fmt.Errorf("version %s: %w", v.ID, err)
	}
	if entryPoint != nil {
		v.EntryPoint = *entryPoint
	}
	if status != nil {
		v.Status = artifact.Status(*status)
	}
	if uploadHandle != nil {
		v.UploadHandle = *uploadHandle
	}
	return &v, nil
}

const fileColumns = `id, version_id, path, blob_handle, mime_type, size, is_deleted, deleted_at, deleted_by, created_at`

func scanFile(row pgx.Row) (*artifact.File, error) {
	var f artifact.File
	err := row.Scan(&f.ID, &f.VersionID, &f.Path, &f.BlobHandle, &f.MimeType, &f.Size,
		&f.IsDeleted, &f.DeletedAt, &f.DeletedBy, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

const grantColumns = `id, artifact_id, email, user_id, invited_by, invited_at, status, is_deleted, deleted_at, deleted_by`

func scanGrant(row pgx.Row) (*artifact.ReviewerGrant, error) {
	var g artifact.ReviewerGrant
	err := row.Scan(&g.ID, &g.ArtifactID, &g.Email, &g.UserID, &g.InvitedBy, &g.InvitedAt, &g.Status,
		&g.IsDeleted, &g.DeletedAt, &g.DeletedBy)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func one[T any](item *T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Postgres) CreateArtifact(ctx context.Context, a *artifact.Artifact, v *artifact.Version, f *artifact.File) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO artifacts (id, name, description, created_by, organization_id, share_token, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.Name, a.Description, a.CreatedBy, a.OrganizationID, a.ShareToken, a.CreatedAt, a.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		v.ArtifactID = a.ID
		return insertVersion(ctx, tx, v, f)
	})
}

// insertVersion takes the next number from the artifact's counter. The
// UPDATE holds the artifact row lock until commit, so concurrent inserts for
// one artifact queue behind each other and never see the same number.
func insertVersion(ctx context.Context, tx pgx.Tx, v *artifact.Version, f *artifact.File) error {
	err := tx.QueryRow(ctx,
		`UPDATE artifacts SET version_seq = version_seq + 1, updated_at = $2
		 WHERE id = $1 AND NOT is_deleted
		 RETURNING version_seq`,
		v.ArtifactID, v.CreatedAt).Scan(&v.Number)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrGone
	}
	if err != nil {
		return fmt.Errorf("allocate version number: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO artifact_versions (id, artifact_id, number, file_type, entry_point, size, status,
		     error_message, name, upload_handle, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.ID, v.ArtifactID, v.Number, v.FileType.String(), nullString(v.EntryPoint), v.Size,
		nullString(string(v.Status)), v.ErrorMessage, v.Name, nullString(v.UploadHandle), v.CreatedBy,
		v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if f == nil {
		return nil
	}
	f.VersionID = v.ID
	return insertFile(ctx, tx, f)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertFile(ctx context.Context, db execer, f *artifact.File) error {
	_, err := db.Exec(ctx,
		`INSERT INTO artifact_files (id, version_id, path, blob_handle, mime_type, size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.VersionID, f.Path, f.BlobHandle, f.MimeType, f.Size, f.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (r *Postgres) GetArtifact(ctx context.Context, id uuid.UUID) (*artifact.Artifact, error) {
	return one(scanArtifact(r.pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`, id)))
}

func (r *Postgres) GetArtifactByShareToken(ctx context.Context, token string) (*artifact.Artifact, error) {
	return one(scanArtifact(r.pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE share_token = $1`, token)))
}

func (r *Postgres) ListArtifactsByOwner(ctx context.Context, owner uuid.UUID) ([]*artifact.Artifact, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+artifactColumns+` FROM artifacts
		 WHERE created_by = $1 AND NOT is_deleted
		 ORDER BY updated_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanArtifact)
}

func (r *Postgres) UpdateArtifactDetails(ctx context.Context, id uuid.UUID, name string, description *string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE artifacts SET name = $2, description = $3, updated_at = $4
		 WHERE id = $1 AND NOT is_deleted`,
		id, name, description, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGone
	}
	return nil
}

// SoftDeleteArtifact cascades one level at a time. Rows that were already
// deleted keep their original stamps.
func (r *Postgres) SoftDeleteArtifact(ctx context.Context, id, by uuid.UUID, at time.Time) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE artifacts SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3
			 WHERE id = $1 AND NOT is_deleted`,
			id, at, by)
		if err != nil {
			return fmt.Errorf("delete artifact: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrGone
		}

		rows, err := tx.Query(ctx,
			`UPDATE artifact_versions SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3
			 WHERE artifact_id = $1 AND NOT is_deleted
			 RETURNING id`,
			id, at, by)
		if err != nil {
			return fmt.Errorf("delete versions: %w", err)
		}
		versionIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return fmt.Errorf("delete versions: %w", err)
		}
		if len(versionIDs) == 0 {
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE artifact_files SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3
			 WHERE version_id = ANY($1) AND NOT is_deleted`,
			versionIDs, at, by)
		if err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		return nil
	})
}

func (r *Postgres) AddVersion(ctx context.Context, v *artifact.Version, f *artifact.File) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		return insertVersion(ctx, tx, v, f)
	})
}

func (r *Postgres) GetVersion(ctx context.Context, id uuid.UUID) (*artifact.Version, error) {
	return one(scanVersion(r.pool.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM artifact_versions WHERE id = $1`, id)))
}

func (r *Postgres) GetVersionByNumber(ctx context.Context, artifactID uuid.UUID, number int) (*artifact.Version, error) {
	return one(scanVersion(r.pool.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM artifact_versions WHERE artifact_id = $1 AND number = $2`,
		artifactID, number)))
}

func (r *Postgres) ListActiveVersions(ctx context.Context, artifactID uuid.UUID) ([]*artifact.Version, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM artifact_versions
		 WHERE artifact_id = $1 AND NOT is_deleted
		 ORDER BY number DESC`, artifactID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVersion)
}

func (r *Postgres) ListVersionsByStatus(ctx context.Context, status artifact.Status, before time.Time) ([]*artifact.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM artifact_versions
		 WHERE status = $1 AND updated_at < $2 AND NOT is_deleted
		 ORDER BY updated_at`
	if status == artifact.StatusReady {
		query = `SELECT ` + versionColumns + ` FROM artifact_versions
		 WHERE (status = $1 OR status IS NULL) AND updated_at < $2 AND NOT is_deleted
		 ORDER BY updated_at`
	}
	rows, err := r.pool.Query(ctx, query, string(status), before)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVersion)
}

func (r *Postgres) MarkVersionProcessing(ctx context.Context, id uuid.UUID, uploadHandle string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE artifact_versions SET status = $2, upload_handle = $3, updated_at = $4
		 WHERE id = $1 AND status = $5 AND NOT is_deleted`,
		id, string(artifact.StatusProcessing), uploadHandle, at, string(artifact.StatusUploading))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	v, err := r.GetVersion(ctx, id)
	if err != nil {
		return false, err
	}
	if v == nil || v.IsDeleted {
		return false, ErrGone
	}
	return false, nil
}

func (r *Postgres) updateVersion(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGone
	}
	return nil
}

func (r *Postgres) MarkVersionReady(ctx context.Context, id uuid.UUID, entryPoint string, size int64, at time.Time) error {
	return r.updateVersion(ctx,
		`UPDATE artifact_versions SET status = $2, entry_point = $3, size = $4, error_message = NULL, updated_at = $5
		 WHERE id = $1 AND NOT is_deleted`,
		id, string(artifact.StatusReady), entryPoint, size, at)
}

func (r *Postgres) MarkVersionError(ctx context.Context, id uuid.UUID, from artifact.Status, message string, at time.Time) (bool, error) {
	guard := `status = $5`
	if from == artifact.StatusReady {
		guard = `(status = $5 OR status IS NULL)`
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE artifact_versions SET status = $2, error_message = $3, updated_at = $4
		 WHERE id = $1 AND `+guard,
		id, string(artifact.StatusError), message, at, string(from))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	v, err := r.GetVersion(ctx, id)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, ErrGone
	}
	return false, nil
}

func (r *Postgres) ListUnreleasedFailures(ctx context.Context, before time.Time) ([]*artifact.Version, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM artifact_versions
		 WHERE status = $1 AND released_at IS NULL AND updated_at < $2 AND NOT is_deleted
		 ORDER BY updated_at`, string(artifact.StatusError), before)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVersion)
}

func (r *Postgres) MarkVersionReleased(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateVersion(ctx,
		`UPDATE artifact_versions SET released_at = $2, upload_handle = NULL WHERE id = $1`,
		id, at)
}

func (r *Postgres) UpdateVersionName(ctx context.Context, id uuid.UUID, name *string, at time.Time) error {
	return r.updateVersion(ctx,
		`UPDATE artifact_versions SET name = $2, updated_at = $3 WHERE id = $1 AND NOT is_deleted`,
		id, name, at)
}

func (r *Postgres) SoftDeleteVersion(ctx context.Context, id, by uuid.UUID, at time.Time) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		var artifactID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT artifact_id FROM artifact_versions WHERE id = $1 AND NOT is_deleted`, id).Scan(&artifactID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGone
		}
		if err != nil {
			return err
		}

		// serialize against other deletes and inserts on the same artifact
		if _, err := tx.Exec(ctx, `SELECT 1 FROM artifacts WHERE id = $1 FOR UPDATE`, artifactID); err != nil {
			return fmt.Errorf("lock artifact: %w", err)
		}

		var active int
		err = tx.QueryRow(ctx,
			`SELECT count(*) FROM artifact_versions WHERE artifact_id = $1 AND NOT is_deleted`,
			artifactID).Scan(&active)
		if err != nil {
			return err
		}
		if active <= 1 {
			return ErrLastVersion
		}

		tag, err := tx.Exec(ctx,
			`UPDATE artifact_versions SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3
			 WHERE id = $1 AND NOT is_deleted`,
			id, at, by)
		if err != nil {
			return fmt.Errorf("delete version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrGone
		}

		_, err = tx.Exec(ctx,
			`UPDATE artifact_files SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3
			 WHERE version_id = $1 AND NOT is_deleted`,
			id, at, by)
		if err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		return nil
	})
}

func (r *Postgres) CreateFile(ctx context.Context, f *artifact.File) error {
	return insertFile(ctx, r.pool, f)
}

func (r *Postgres) GetFileByPath(ctx context.Context, versionID uuid.UUID, path string) (*artifact.File, error) {
	return one(scanFile(r.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM artifact_files
		 WHERE version_id = $1 AND path = $2 AND NOT is_deleted`,
		versionID, path)))
}

func (r *Postgres) ListFiles(ctx context.Context, versionID uuid.UUID) ([]*artifact.File, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+fileColumns+` FROM artifact_files
		 WHERE version_id = $1 AND NOT is_deleted
		 ORDER BY path`, versionID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanFile)
}

func (r *Postgres) SoftDeleteFiles(ctx context.Context, versionID, by uuid.UUID, at time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE artifact_files SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3
		 WHERE version_id = $1 AND NOT is_deleted`,
		versionID, at, by)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *Postgres) CountFilesByBlob(ctx context.Context, handle string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM artifact_files WHERE blob_handle = $1 AND NOT is_deleted`, handle).Scan(&n)
	return n, err
}

func (r *Postgres) CreateGrant(ctx context.Context, g *artifact.ReviewerGrant) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO artifact_reviewers (id, artifact_id, email, user_id, invited_by, invited_at, status)
		 SELECT $1::uuid, $2::uuid, $3::text, $4::uuid, $5::uuid, $6::timestamptz, $7::text
		 WHERE EXISTS (SELECT 1 FROM artifacts WHERE id = $2 AND NOT is_deleted)`,
		g.ID, g.ArtifactID, g.Email, g.UserID, g.InvitedBy, g.InvitedAt, string(g.Status))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGone
	}
	return nil
}

func (r *Postgres) GetGrant(ctx context.Context, id uuid.UUID) (*artifact.ReviewerGrant, error) {
	return one(scanGrant(r.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM artifact_reviewers WHERE id = $1`, id)))
}

func (r *Postgres) FindActiveGrant(ctx context.Context, artifactID uuid.UUID, email string) (*artifact.ReviewerGrant, error) {
	return one(scanGrant(r.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM artifact_reviewers
		 WHERE artifact_id = $1 AND email = $2 AND NOT is_deleted`,
		artifactID, email)))
}

func (r *Postgres) ListActiveGrants(ctx context.Context, artifactID uuid.UUID) ([]*artifact.ReviewerGrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM artifact_reviewers
		 WHERE artifact_id = $1 AND NOT is_deleted
		 ORDER BY invited_at`, artifactID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanGrant)
}

func (r *Postgres) HasAcceptedGrant(ctx context.Context, artifactID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM artifact_reviewers
		     WHERE artifact_id = $1 AND user_id = $2 AND status = $3 AND NOT is_deleted)`,
		artifactID, userID, string(artifact.GrantAccepted)).Scan(&exists)
	return exists, err
}

func (r *Postgres) SoftDeleteGrant(ctx context.Context, id, by uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE artifact_reviewers SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3
		 WHERE id = $1 AND NOT is_deleted`,
		id, at, by)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGone
	}
	return nil
}

func (r *Postgres) LinkPendingGrants(ctx context.Context, email string, userID uuid.UUID, _ time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE artifact_reviewers SET user_id = $2, status = $3
		 WHERE email = $1 AND status = $4 AND NOT is_deleted`,
		email, userID, string(artifact.GrantAccepted), string(artifact.GrantPending))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
